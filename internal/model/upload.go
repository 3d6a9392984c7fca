package model

import "time"

// Upload records a file accepted by POST /upload.
//
// Key is the generated storage name (what the /uploads/ URL points at);
// OriginalName is whatever the client called the file and is kept only as metadata.
type Upload struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}
