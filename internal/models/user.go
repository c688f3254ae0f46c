package models

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a community member's public profile.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	City      string    `bson:"city,omitempty" json:"city,omitempty"`
	Tags      []string  `bson:"tags" json:"tags"`
	AvatarURL string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Role      Role      `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user may review reports.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credential maps a normalized email to the user it signs in as.
// Internal only - never returned in JSON responses.
type Credential struct {
	Email        string `bson:"email" json:"email"`
	UserID       string `bson:"user_id" json:"user_id"`
	PasswordHash string `bson:"password_hash" json:"password_hash"`
}
