package model

import (
	"time"
)

// Session is one interval of a child's engagement with one piece of content.
// Rows are append-only; a session is closed exactly once.
type Session struct {
	ID              string      `db:"id" json:"id"`
	ChildID         string      `db:"child_id" json:"childId"`
	StartTime       time.Time   `db:"start_time" json:"startTime"`
	EndTime         *time.Time  `db:"end_time" json:"endTime,omitempty"`
	DurationSeconds int64       `db:"duration_seconds" json:"duration"`
	ContentType     ContentType `db:"content_type" json:"contentType"`
	Subject         *Subject    `db:"subject" json:"subject,omitempty"`
	ContentID       *string     `db:"content_id" json:"contentId,omitempty"`
	PointsEarned    int         `db:"points_earned" json:"pointsEarned"`
}

func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

type CreateSessionParams struct {
	ChildID     string
	StartTime   time.Time
	ContentType ContentType
	Subject     *Subject
	ContentID   *string
}

type CloseSessionParams struct {
	ID              string
	EndTime         time.Time
	DurationSeconds int64
	PointsEarned    int
}
