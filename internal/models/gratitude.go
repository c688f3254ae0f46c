package models

import (
	"time"
)

// GratitudeNote is a one-way thank-you attached to a completed connection.
type GratitudeNote struct {
	ID           string    `bson:"_id" json:"id"`
	ConnectionID string    `bson:"connection_id" json:"connection_id"`
	FromUserID   string    `bson:"from_user_id" json:"from_user_id"`
	ToUserID     string    `bson:"to_user_id" json:"to_user_id"`
	Text         string    `bson:"text" json:"text"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
