package model

import (
	"github.com/lib/pq"
)

// ChildProfile is the engine's read-only projection of a child profile.
type ChildProfile struct {
	ID                string             `db:"id" json:"id"`
	Name              string             `db:"name" json:"name"`
	AgeBand           *string            `db:"age_band" json:"ageBand,omitempty"`
	ParentID          string             `db:"parent_id" json:"-"`
	EducatorIDs       pq.StringArray     `db:"educator_ids" json:"-"`
	Locale            Locale             `db:"locale" json:"locale"`
	DailyLimitMinutes *int               `db:"daily_limit_minutes" json:"dailyLimitMinutes,omitempty"`
	ContentFilter     ContentFilterLevel `db:"content_filter" json:"contentFilter"`
}

// LimitMinutes returns the configured daily limit or fallback when unset.
func (c *ChildProfile) LimitMinutes(fallback int) int {
	if c.DailyLimitMinutes == nil || *c.DailyLimitMinutes <= 0 {
		return fallback
	}
	return *c.DailyLimitMinutes
}

func (c *ChildProfile) PreferredLocale() Locale {
	if c.Locale == LocaleArabic || c.Locale == LocaleEnglish {
		return c.Locale
	}
	return DefaultLocale
}

func (c *ChildProfile) HasEducator(userID string) bool {
	for _, id := range c.EducatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}
