// Package model defines the data structures used throughout the application.
// Handlers encode these directly, so the json tags are the API's field names.
package model

import "time"

// User represents a registered account.
//
// PasswordHash carries the `json:"-"` tag, so encoding/json never writes it.
// Every response that embeds a User (register, login, me, populated post owners)
// is stripped of the hash without the handler doing anything.
//
// Accounts created through GitHub sign-in have an empty PasswordHash; bcrypt
// rejects an empty hash, so those accounts cannot log in with a password.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatarURL,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
