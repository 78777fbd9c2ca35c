package service

import (
	"fmt"
	"time"

	"github.com/brightpath/safety-engine/internal/model"
)

// BudgetDecision is the outcome of comparing a child's local-day usage with
// the daily limit. It never vetoes a session close.
type BudgetDecision struct {
	ChildID      string    `json:"childId"`
	Day          string    `json:"day"`
	DayStart     time.Time `json:"dayStart"`
	UsedSeconds  int64     `json:"usedSeconds"`
	LimitMinutes int       `json:"limitMinutes"`
	LimitSeconds int64     `json:"limitSeconds"`
	Exceeded     bool      `json:"exceeded"`
	AlertID      *string   `json:"alertId,omitempty"`
	Debounced    bool      `json:"debounced,omitempty"`
}

// EvaluateBudget is exceeded only when usage is strictly over the limit.
func EvaluateBudget(usedSeconds int64, limitMinutes int) BudgetDecision {
	limitSeconds := int64(limitMinutes) * 60
	return BudgetDecision{
		UsedSeconds:  usedSeconds,
		LimitMinutes: limitMinutes,
		LimitSeconds: limitSeconds,
		Exceeded:     usedSeconds > limitSeconds,
	}
}

func budgetAlertRequest(childID string, limitMinutes int, decision BudgetDecision) RaiseAlertRequest {
	return RaiseAlertRequest{
		ChildID:  childID,
		Type:     model.AlertTypeExcessiveGaming,
		Severity: model.SeverityMedium,
		Message: model.NewLocalizedText(
			fmt.Sprintf("You've reached your daily time limit of %d minutes. Great job learning today!", limitMinutes),
			fmt.Sprintf("لقد وصلت إلى الحد اليومي للوقت وهو %d دقيقة. عمل رائع في التعلم اليوم!", limitMinutes),
		),
		Source: model.AlertSourceTimeTracker,
		Metadata: map[string]any{
			"day":          decision.Day,
			"usedSeconds":  decision.UsedSeconds,
			"limitMinutes": limitMinutes,
		},
	}
}

// localDay returns the [start, end) bounds of the calendar day containing t
// in loc. DST days are 23 or 25 hours long.
func localDay(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

const dayKeyLayout = "2006-01-02"
