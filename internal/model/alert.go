package model

import (
	"encoding/json"
	"time"
)

type Alert struct {
	ID         string           `db:"id" json:"id"`
	ChildID    string           `db:"child_id" json:"childId"`
	Type       AlertType        `db:"type" json:"type"`
	Severity   Severity         `db:"severity" json:"severity"`
	Message    LocalizedText    `db:"message" json:"-"`
	Guidance   LocalizedText    `db:"guidance" json:"-"`
	Source     AlertSource      `db:"source" json:"source"`
	Metadata   *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Status     AlertStatus      `db:"status" json:"status"`
	ResolvedBy *string          `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time       `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// MarshalJSON exposes both the localized maps and the flat bilingual fields
// existing clients read.
func (a Alert) MarshalJSON() ([]byte, error) {
	type alias Alert
	return json.Marshal(struct {
		alias
		Messages       LocalizedText `json:"messages"`
		Message        string        `json:"message"`
		MessageAr      string        `json:"messageAr"`
		Guidance       LocalizedText `json:"guidance"`
		GuidanceText   string        `json:"guidanceText"`
		GuidanceTextAr string        `json:"guidanceTextAr"`
	}{
		alias:          alias(a),
		Messages:       a.Message,
		Message:        a.Message.Get(LocaleEnglish),
		MessageAr:      a.Message.Get(LocaleArabic),
		Guidance:       a.Guidance,
		GuidanceText:   a.Guidance.Get(LocaleEnglish),
		GuidanceTextAr: a.Guidance.Get(LocaleArabic),
	})
}

type CreateAlertParams struct {
	ChildID  string
	Type     AlertType
	Severity Severity
	Message  LocalizedText
	Guidance LocalizedText
	Source   AlertSource
	Metadata *json.RawMessage
}

// AlertFilter narrows a child's alert list. Zero Limit means no limit.
type AlertFilter struct {
	Status AlertStatus
	Type   AlertType
	Limit  int
	Offset int
}

type TransitionAlertParams struct {
	ID         string
	To         AlertStatus
	ResolvedBy string
	ResolvedAt time.Time
}
