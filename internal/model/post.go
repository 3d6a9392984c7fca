package model

import "time"

// Post is a blog article. Tags and Comments are stored inside the post document;
// the owner is referenced by UserID and populated into User on read paths.
//
// User is nil when the owner could not be resolved (e.g. an update pointed the
// post at an account that no longer exists).
type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	ImageURL   string    `json:"imageURL,omitempty"`
	Tags       []string  `json:"tags"`
	UserID     string    `json:"userId"`
	User       *User     `json:"user,omitempty"`
	ViewsCount int       `json:"viewsCount"`
	Comments   []Comment `json:"comments"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Comment is embedded in a Post and has no lifecycle of its own.
//
// FullName is a snapshot of the author's name at the moment the comment was
// written. Renaming the account later does not rewrite old comments.
type Comment struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Text     string `json:"text"`
}
