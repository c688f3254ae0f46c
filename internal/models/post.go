package models

import (
	"time"
)

type PostType string

const (
	PostTypeOffer   PostType = "offer"
	PostTypeRequest PostType = "request"
)

// Valid reports whether t is one of the known post types.
func (t PostType) Valid() bool {
	return t == PostTypeOffer || t == PostTypeRequest
}

// ServicePost is an offer of help or a request for it. Posts are immutable
// once published.
type ServicePost struct {
	ID          string    `bson:"_id" json:"id"`
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	Type        PostType  `bson:"type" json:"type"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Tags        []string  `bson:"tags" json:"tags"`
	City        string    `bson:"city" json:"city"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// HasTag reports whether tag is one of the post's tags.
func (p ServicePost) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
