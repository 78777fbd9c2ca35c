package handler

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/brightpath/safety-engine/internal/database"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/repository"
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

type passLocker struct{}

func (passLocker) WithChildLock(ctx context.Context, childID string, fn database.TxFunc) error {
	return fn(nil)
}
