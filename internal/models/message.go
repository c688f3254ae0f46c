package models

import (
	"time"
)

// Message is a single entry in a connection's thread. The thread itself is
// not stored; it is the messages of one connection ordered by CreatedAt.
type Message struct {
	ID           string    `bson:"_id" json:"id"`
	ConnectionID string    `bson:"connection_id" json:"connection_id"`
	SenderID     string    `bson:"sender_id" json:"sender_id"`
	Body         string    `bson:"body" json:"body"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
