package models

import (
	"time"
)

type ReportStatus string

const (
	ReportOpen   ReportStatus = "open"
	ReportClosed ReportStatus = "closed"
)

// Report flags a user or a post for admin review. Status only moves from
// open to closed.
type Report struct {
	ID           string       `bson:"_id" json:"id"`
	ReporterID   string       `bson:"reporter_id" json:"reporter_id"`
	TargetUserID string       `bson:"target_user_id,omitempty" json:"target_user_id,omitempty"`
	TargetPostID string       `bson:"target_post_id,omitempty" json:"target_post_id,omitempty"`
	Reason       string       `bson:"reason" json:"reason"`
	Status       ReportStatus `bson:"status" json:"status"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}
