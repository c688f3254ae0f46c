package models

import (
	"time"
)

// ConnectionStatus is the lifecycle state of a Connection.
// Valid values: "active", "completed", "cancelled".
type ConnectionStatus string

const (
	ConnectionActive    ConnectionStatus = "active"
	ConnectionCompleted ConnectionStatus = "completed"
	ConnectionCancelled ConnectionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionActive, ConnectionCompleted, ConnectionCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s ConnectionStatus) Terminal() bool {
	return s == ConnectionCompleted || s == ConnectionCancelled
}

// Connection links two members negotiating around one post. StarterID is the
// member who made first contact.
type Connection struct {
	ID        string           `bson:"_id" json:"id"`
	PostID    string           `bson:"post_id" json:"post_id"`
	StarterID string           `bson:"starter_id" json:"starter_id"`
	PartnerID string           `bson:"partner_id" json:"partner_id"`
	Status    ConnectionStatus `bson:"status" json:"status"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time        `bson:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is the starter or the partner.
func (c Connection) HasParticipant(userID string) bool {
	return userID != "" && (c.StarterID == userID || c.PartnerID == userID)
}

// Joins reports whether the connection is about postID between a and b, in
// either direction.
func (c Connection) Joins(postID, a, b string) bool {
	if c.PostID != postID {
		return false
	}
	return (c.StarterID == a && c.PartnerID == b) || (c.StarterID == b && c.PartnerID == a)
}

// Counterpart returns the participant that is not userID.
func (c Connection) Counterpart(userID string) (string, bool) {
	switch userID {
	case c.StarterID:
		return c.PartnerID, true
	case c.PartnerID:
		return c.StarterID, true
	}
	return "", false
}
