package service

import (
	"sort"
	"time"

	"github.com/brightpath/safety-engine/internal/config"
	"github.com/brightpath/safety-engine/internal/model"
)

const (
	DashboardStatusHealthy   = "healthy"
	DashboardStatusAttention = "attention"
)

type ChildSummary struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	AgeBand           *string                  `json:"ageBand,omitempty"`
	Locale            model.Locale             `json:"locale"`
	DailyLimitMinutes int                      `json:"dailyLimitMinutes"`
	ContentFilter     model.ContentFilterLevel `json:"contentFilter"`
}

// DashboardStats durations are whole minutes, rounded down.
type DashboardStats struct {
	TotalTime          int64 `json:"totalTime"`
	TodayTime          int64 `json:"todayTime"`
	SessionCount       int   `json:"sessionCount"`
	AverageSessionTime int64 `json:"averageSessionTime"`
	AlertCount         int   `json:"alertCount"`
	ActiveAlertCount   int   `json:"activeAlertCount"`
}

// DashboardBreakdown values are seconds.
type DashboardBreakdown struct {
	BySubject     map[string]int64 `json:"bySubject"`
	ByContentType map[string]int64 `json:"byContentType"`
	Daily         map[string]int64 `json:"daily"`
}

type DashboardSnapshot struct {
	Child          ChildSummary       `json:"child"`
	GeneratedAt    time.Time          `json:"generatedAt"`
	WindowStart    time.Time          `json:"windowStart"`
	WindowDays     int                `json:"windowDays"`
	Status         string             `json:"status"`
	Statistics     DashboardStats     `json:"statistics"`
	Breakdown      DashboardBreakdown `json:"breakdown"`
	Alerts         []model.Alert      `json:"alerts"`
	RecentSessions []model.Session    `json:"recentSessions"`
}

type SnapshotInput struct {
	Profile             *model.ChildProfile
	Sessions            []model.Session
	Alerts              []model.Alert
	Now                 time.Time
	WindowDays          int
	Location            *time.Location
	DefaultLimitMinutes int
}

// BuildSnapshot aggregates sessions and alerts already selected for the
// window. It does not filter by time and never mutates its input.
func BuildSnapshot(in SnapshotInput) *DashboardSnapshot {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	todayStart, _ := localDay(in.Now, loc)

	sessions := make([]model.Session, len(in.Sessions))
	copy(sessions, in.Sessions)
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	alerts := make([]model.Alert, len(in.Alerts))
	copy(alerts, in.Alerts)
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})

	breakdown := DashboardBreakdown{
		BySubject:     map[string]int64{},
		ByContentType: map[string]int64{},
		Daily:         map[string]int64{},
	}
	var total, today int64
	for _, s := range sessions {
		total += s.DurationSeconds
		if !s.StartTime.Before(todayStart) {
			today += s.DurationSeconds
		}
		if s.Subject != nil {
			breakdown.BySubject[string(*s.Subject)] += s.DurationSeconds
		}
		breakdown.ByContentType[string(s.ContentType)] += s.DurationSeconds
		if s.DurationSeconds > 0 {
			breakdown.Daily[s.StartTime.In(loc).Format(dayKeyLayout)] += s.DurationSeconds
		}
	}

	stats := DashboardStats{
		TotalTime:    total / 60,
		TodayTime:    today / 60,
		SessionCount: len(sessions),
		AlertCount:   len(alerts),
	}
	if len(sessions) > 0 {
		stats.AverageSessionTime = total / int64(len(sessions)) / 60
	}
	for _, a := range alerts {
		if a.Status == model.AlertStatusActive {
			stats.ActiveAlertCount++
		}
	}

	status := DashboardStatusHealthy
	if stats.ActiveAlertCount > 0 {
		status = DashboardStatusAttention
	}

	recent := sessions
	if len(recent) > config.DashboardRecentSessions {
		recent = recent[:config.DashboardRecentSessions]
	}

	snapshot := &DashboardSnapshot{
		GeneratedAt:    in.Now,
		WindowStart:    in.Now.AddDate(0, 0, -in.WindowDays),
		WindowDays:     in.WindowDays,
		Status:         status,
		Statistics:     stats,
		Breakdown:      breakdown,
		Alerts:         alerts,
		RecentSessions: recent,
	}
	if in.Profile != nil {
		snapshot.Child = ChildSummary{
			ID:                in.Profile.ID,
			Name:              in.Profile.Name,
			AgeBand:           in.Profile.AgeBand,
			Locale:            in.Profile.PreferredLocale(),
			DailyLimitMinutes: in.Profile.LimitMinutes(in.DefaultLimitMinutes),
			ContentFilter:     in.Profile.ContentFilter,
		}
	}
	return snapshot
}
