package service

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/sse"
)

type sessionFixture struct {
	sessions  *mockSessionRepo
	alerts    *mockAlertRepo
	profiles  *mockProfileRepo
	locker    *fakeLocker
	publisher *fakePublisher
	svc       *SessionService
	loc       *time.Location
	now       time.Time
}

func newSessionFixture(debounce bool) *sessionFixture {
	loc := time.FixedZone("AST", 3*60*60)
	f := &sessionFixture{
		sessions:  new(mockSessionRepo),
		alerts:    new(mockAlertRepo),
		profiles:  new(mockProfileRepo),
		locker:    &fakeLocker{},
		publisher: &fakePublisher{},
		loc:       loc,
		now:       time.Date(2026, 5, 10, 18, 0, 0, 0, loc),
	}
	alertSvc := NewAlertService(f.locker, f.alerts, f.profiles, f.publisher, nil, fastRetry())
	f.svc = NewSessionService(f.locker, f.sessions, f.profiles, alertSvc, nil, SessionServiceConfig{
		DefaultDailyLimitMinutes: 60,
		BudgetAlertDebounce:      debounce,
		Location:                 loc,
		Retry:                    fastRetry(),
	})
	f.svc.now = fixedClock(f.now)
	alertSvc.now = fixedClock(f.now)
	return f
}

func (f *sessionFixture) dayBounds() (time.Time, time.Time) {
	start := time.Date(2026, 5, 10, 0, 0, 0, 0, f.loc)
	return start, start.AddDate(0, 0, 1)
}

func openSession(start time.Time) *model.Session {
	return &model.Session{
		ID:          "session-1",
		ChildID:     testChildID,
		StartTime:   start,
		ContentType: model.ContentTypeGame,
	}
}

func closedFrom(s *model.Session, end time.Time, points int) *model.Session {
	out := *s
	out.EndTime = &end
	out.DurationSeconds = int64(end.Sub(s.StartTime) / time.Second)
	out.PointsEarned = points
	return &out
}

func TestSessionService_StartSession(t *testing.T) {
	t.Run("child starts a session", func(t *testing.T) {
		f := newSessionFixture(false)
		subject := model.SubjectPhysics
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("FindOpenByChildID", mock.Anything, testChildID).Return(nil, nil)
		f.sessions.On("Create", mock.Anything, model.CreateSessionParams{
			ChildID:     testChildID,
			StartTime:   f.now,
			ContentType: model.ContentTypeQuest,
			Subject:     &subject,
		}).Return(&model.Session{ID: "session-1", ChildID: testChildID, StartTime: f.now, ContentType: model.ContentTypeQuest}, nil)

		session, err := f.svc.StartSession(context.Background(), childCaller(), StartSessionRequest{
			ContentType: model.ContentTypeQuest,
			Subject:     &subject,
		})
		require.NoError(t, err)
		assert.Equal(t, "session-1", session.ID)
		assert.True(t, session.IsOpen())
		assert.Equal(t, 1, f.locker.calls)
	})

	t.Run("second open session is rejected", func(t *testing.T) {
		f := newSessionFixture(false)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("FindOpenByChildID", mock.Anything, testChildID).Return(openSession(f.now.Add(-time.Minute)), nil)

		_, err := f.svc.StartSession(context.Background(), childCaller(), StartSessionRequest{ContentType: model.ContentTypeGame})
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionAlreadyOpen))
		f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unique index race maps to already open", func(t *testing.T) {
		f := newSessionFixture(false)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("FindOpenByChildID", mock.Anything, testChildID).Return(nil, nil)
		f.sessions.On("Create", mock.Anything, mock.Anything).Return(nil, &pq.Error{Code: "23505"})

		_, err := f.svc.StartSession(context.Background(), childCaller(), StartSessionRequest{ContentType: model.ContentTypeGame})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionAlreadyOpen))
	})

	tests := []struct {
		name   string
		caller *model.Caller
		req    StartSessionRequest
		code   apperrors.ErrorCode
	}{
		{"guardian cannot start", parentCaller(), StartSessionRequest{ChildID: testChildID, ContentType: model.ContentTypeGame}, apperrors.ErrCodeForbidden},
		{"child cannot start for another child", childCaller(), StartSessionRequest{ChildID: otherChildID, ContentType: model.ContentTypeGame}, apperrors.ErrCodeForbidden},
		{"missing content type", childCaller(), StartSessionRequest{}, apperrors.ErrCodeMissingRequired},
		{"unknown content type", childCaller(), StartSessionRequest{ContentType: "movie"}, apperrors.ErrCodeInvalidInput},
		{"unknown subject", childCaller(), StartSessionRequest{ContentType: model.ContentTypeGame, Subject: subjectPtr("history")}, apperrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(false)
			_, err := f.svc.StartSession(context.Background(), tt.caller, tt.req)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, 0, f.locker.calls)
		})
	}
}

func subjectPtr(s string) *model.Subject {
	subject := model.Subject(s)
	return &subject
}

func TestSessionService_EndSession(t *testing.T) {
	t.Run("duration is whole seconds and budget is under limit", func(t *testing.T) {
		f := newSessionFixture(false)
		open := openSession(f.now.Add(-50*time.Second - 900*time.Millisecond))
		closed := closedFrom(open, f.now, 5)
		dayStart, dayEnd := f.dayBounds()

		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, model.CloseSessionParams{
			ID: "session-1", EndTime: f.now, DurationSeconds: 50, PointsEarned: 5,
		}).Return(closed, nil)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("SumDurationBetween", mock.Anything, testChildID, dayStart, dayEnd).Return(int64(3550), nil)

		result, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 5)
		require.NoError(t, err)
		assert.EqualValues(t, 50, result.Session.DurationSeconds)
		assert.False(t, result.Budget.Exceeded)
		assert.EqualValues(t, 3600, result.Budget.LimitSeconds)
		assert.Equal(t, "2026-05-10", result.Budget.Day)
		assert.Nil(t, result.Alert)
		f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.types())
	})

	t.Run("going over the limit raises exactly one alert", func(t *testing.T) {
		f := newSessionFixture(false)
		open := openSession(f.now.Add(-200 * time.Second))
		closed := closedFrom(open, f.now, 0)
		dayStart, dayEnd := f.dayBounds()

		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, mock.Anything).Return(closed, nil)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("SumDurationBetween", mock.Anything, testChildID, dayStart, dayEnd).Return(int64(3700), nil)

		var captured model.CreateAlertParams
		f.alerts.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(1).(model.CreateAlertParams) }).
			Return(&model.Alert{ID: "alert-7", ChildID: testChildID, Type: model.AlertTypeExcessiveGaming, Severity: model.SeverityMedium}, nil)

		result, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		require.NoError(t, err)
		assert.True(t, result.Budget.Exceeded)
		require.NotNil(t, result.Budget.AlertID)
		assert.Equal(t, "alert-7", *result.Budget.AlertID)

		f.alerts.AssertNumberOfCalls(t, "Create", 1)
		assert.Equal(t, model.AlertTypeExcessiveGaming, captured.Type)
		assert.Equal(t, model.SeverityMedium, captured.Severity)
		assert.Equal(t, model.AlertSourceTimeTracker, captured.Source)
		assert.Contains(t, captured.Message.Get(model.LocaleEnglish), "60 minutes")
		assert.Contains(t, captured.Message.Get(model.LocaleArabic), "60")
		assert.Contains(t, captured.Guidance.Get(model.LocaleEnglish), "Take a break")
		assert.Equal(t, []string{sse.EventAlertRaised}, f.publisher.types())
	})

	t.Run("exactly at the limit is not exceeded", func(t *testing.T) {
		f := newSessionFixture(false)
		open := openSession(f.now.Add(-100 * time.Second))
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, mock.Anything).Return(closedFrom(open, f.now, 0), nil)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(3600), nil)

		result, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		require.NoError(t, err)
		assert.False(t, result.Budget.Exceeded)
	})

	t.Run("profile limit overrides the default", func(t *testing.T) {
		f := newSessionFixture(false)
		limit := 120
		profile := testProfile()
		profile.DailyLimitMinutes = &limit
		open := openSession(f.now.Add(-100 * time.Second))
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, mock.Anything).Return(closedFrom(open, f.now, 0), nil)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(profile, nil)
		f.sessions.On("SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(3700), nil)

		result, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		require.NoError(t, err)
		assert.False(t, result.Budget.Exceeded)
		assert.EqualValues(t, 7200, result.Budget.LimitSeconds)
	})

	t.Run("debounce suppresses a second alert on the same day", func(t *testing.T) {
		f := newSessionFixture(true)
		open := openSession(f.now.Add(-100 * time.Second))
		dayStart, _ := f.dayBounds()
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, mock.Anything).Return(closedFrom(open, f.now, 0), nil)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(4000), nil)
		f.alerts.On("CountByChildTypeSince", mock.Anything, testChildID, model.AlertTypeExcessiveGaming, dayStart).Return(1, nil)

		result, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		require.NoError(t, err)
		assert.True(t, result.Budget.Exceeded)
		assert.True(t, result.Budget.Debounced)
		assert.Nil(t, result.Alert)
		f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("already closed session", func(t *testing.T) {
		f := newSessionFixture(false)
		closed := closedFrom(openSession(f.now.Add(-time.Hour)), f.now.Add(-time.Minute), 0)
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(closed, nil)

		_, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyClosed))
		f.sessions.AssertNotCalled(t, "Close", mock.Anything, mock.Anything)
		f.sessions.AssertNotCalled(t, "SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, 0, f.locker.calls)
	})

	t.Run("concurrent close loses the conditional update", func(t *testing.T) {
		f := newSessionFixture(false)
		open := openSession(f.now.Add(-time.Minute))
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, mock.Anything).Return(nil, nil)

		_, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyClosed))
		f.sessions.AssertNotCalled(t, "SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("another child's session is not found", func(t *testing.T) {
		f := newSessionFixture(false)
		foreign := openSession(f.now.Add(-time.Minute))
		foreign.ChildID = otherChildID
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(foreign, nil)

		_, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("missing session", func(t *testing.T) {
		f := newSessionFixture(false)
		f.sessions.On("FindByID", mock.Anything, "nope").Return(nil, nil)

		_, err := f.svc.EndSession(context.Background(), childCaller(), "nope", 0)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("negative points", func(t *testing.T) {
		f := newSessionFixture(false)
		_, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", -1)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("guardians cannot end sessions", func(t *testing.T) {
		f := newSessionFixture(false)
		_, err := f.svc.EndSession(context.Background(), parentCaller(), "session-1", 0)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
	})

	t.Run("transient failure retries the whole unit", func(t *testing.T) {
		f := newSessionFixture(false)
		open := openSession(f.now.Add(-30 * time.Second))
		f.sessions.On("FindByID", mock.Anything, "session-1").Return(open, nil)
		f.sessions.On("Close", mock.Anything, mock.Anything).Return(closedFrom(open, f.now, 0), nil)
		f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
		f.sessions.On("SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(int64(0), &pq.Error{Code: "40001"}).Once()
		f.sessions.On("SumDurationBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(int64(30), nil).Once()

		result, err := f.svc.EndSession(context.Background(), childCaller(), "session-1", 0)
		require.NoError(t, err)
		assert.EqualValues(t, 30, result.Budget.UsedSeconds)
		assert.Equal(t, 2, f.locker.calls)
		f.sessions.AssertNumberOfCalls(t, "Close", 2)
	})
}

func TestSessionService_EvaluateDailyBudget(t *testing.T) {
	f := newSessionFixture(false)
	f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)
	// 01:30 local on May 11 belongs to May 11, not to the UTC day of May 10.
	asOf := time.Date(2026, 5, 10, 22, 30, 0, 0, time.UTC)
	dayStart := time.Date(2026, 5, 11, 0, 0, 0, 0, f.loc)
	f.sessions.On("SumDurationBetween", mock.Anything, testChildID, dayStart, dayStart.AddDate(0, 0, 1)).Return(int64(4000), nil)

	decision, err := f.svc.EvaluateDailyBudget(context.Background(), parentCaller(), testChildID, asOf)
	require.NoError(t, err)
	assert.True(t, decision.Exceeded)
	assert.Equal(t, "2026-05-11", decision.Day)
	assert.Nil(t, decision.AlertID)
	f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	_, err = f.svc.EvaluateDailyBudget(context.Background(), strangerParent(), testChildID, asOf)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
}

func TestSessionService_GetSession(t *testing.T) {
	f := newSessionFixture(false)
	session := openSession(f.now.Add(-time.Minute))
	f.sessions.On("FindByID", mock.Anything, "session-1").Return(session, nil)
	f.profiles.On("FindByID", mock.Anything, testChildID).Return(testProfile(), nil)

	got, err := f.svc.GetSession(context.Background(), childCaller(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.ID)

	got, err = f.svc.GetSession(context.Background(), parentCaller(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.ID)

	_, err = f.svc.GetSession(context.Background(), &model.Caller{ID: otherChildID, Role: model.RoleChild}, "session-1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestEvaluateBudget(t *testing.T) {
	tests := []struct {
		used     int64
		limit    int
		exceeded bool
	}{
		{3700, 60, true},
		{3550, 60, false},
		{3600, 60, false},
		{3601, 60, true},
		{0, 1, false},
	}
	for _, tt := range tests {
		d := EvaluateBudget(tt.used, tt.limit)
		assert.Equal(t, tt.exceeded, d.Exceeded, "used=%d limit=%d", tt.used, tt.limit)
		assert.EqualValues(t, tt.limit*60, d.LimitSeconds)
	}
}

func TestLocalDay_DST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	start, end := localDay(time.Date(2026, 3, 8, 12, 0, 0, 0, loc), loc)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}
