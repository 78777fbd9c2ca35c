package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/brightpath/safety-engine/internal/database"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/repository"
	"github.com/brightpath/safety-engine/internal/sse"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindOpenByChildID(ctx context.Context, childID string) (*model.Session, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindByChildIDBetween(ctx context.Context, childID string, from, to time.Time) ([]model.Session, error) {
	args := m.Called(ctx, childID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) SumDurationBetween(ctx context.Context, childID string, from, to time.Time) (int64, error) {
	args := m.Called(ctx, childID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Close(ctx context.Context, params model.CloseSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockAlertRepo struct {
	mock.Mock
}

func (m *mockAlertRepo) FindByID(ctx context.Context, id string) (*model.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func (m *mockAlertRepo) ListByChildID(ctx context.Context, childID string, filter model.AlertFilter) ([]model.Alert, error) {
	args := m.Called(ctx, childID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *mockAlertRepo) FindByChildIDBetween(ctx context.Context, childID string, from, to time.Time) ([]model.Alert, error) {
	args := m.Called(ctx, childID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *mockAlertRepo) CountByChildTypeSince(ctx context.Context, childID string, alertType model.AlertType, since time.Time) (int, error) {
	args := m.Called(ctx, childID, alertType, since)
	return args.Int(0), args.Error(1)
}

func (m *mockAlertRepo) Create(ctx context.Context, params model.CreateAlertParams) (*model.Alert, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func (m *mockAlertRepo) Transition(ctx context.Context, params model.TransitionAlertParams) (*model.Alert, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func (m *mockAlertRepo) WithTx(tx *sqlx.Tx) repository.AlertRepository {
	return m
}

type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.ChildProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChildProfile), args.Error(1)
}

func (m *mockProfileRepo) WithTx(tx *sqlx.Tx) repository.ProfileRepository {
	return m
}

// fakeLocker serializes units per child in memory and counts how often each
// unit ran.
type fakeLocker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *fakeLocker) WithChildLock(ctx context.Context, childID string, fn database.TxFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return l.err
	}
	return fn(nil)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	childID string
	event   sse.Event
}

func (p *fakePublisher) Publish(ctx context.Context, childID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{childID: childID, event: event})
	return p.err
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

// Test fixtures.

const (
	testChildID    = "child-1"
	otherChildID   = "child-2"
	testParentID   = "parent-1"
	testEducatorID = "educator-1"
)

func testProfile() *model.ChildProfile {
	return &model.ChildProfile{
		ID:            testChildID,
		Name:          "Omar",
		ParentID:      testParentID,
		EducatorIDs:   []string{testEducatorID},
		Locale:        model.LocaleArabic,
		ContentFilter: model.ContentFilterModerate,
	}
}

func childCaller() *model.Caller {
	return &model.Caller{ID: testChildID, Role: model.RoleChild}
}

func parentCaller() *model.Caller {
	return &model.Caller{ID: testParentID, Role: model.RoleParent}
}

func strangerParent() *model.Caller {
	return &model.Caller{ID: "parent-9", Role: model.RoleParent, ChildIDs: []string{otherChildID}}
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
