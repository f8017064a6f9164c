package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
)

// === Mock implementations ===

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListOverlapping(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, courtID, startAt, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListByGroupID(ctx context.Context, groupID string) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) Update(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) ListExpiredUnpaid(ctx context.Context, now time.Time) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListOrphaned(ctx context.Context) ([]*reservation.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

// MockGroupRepository implements reservation.GroupRepository
type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) Create(ctx context.Context, tx transaction.Tx, g *reservation.Group) error {
	args := m.Called(ctx, tx, g)
	return args.Error(0)
}

func (m *MockGroupRepository) GetByID(ctx context.Context, id string) (*reservation.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Group), args.Error(1)
}

func (m *MockGroupRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Group, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Group), args.Error(1)
}

func (m *MockGroupRepository) Update(ctx context.Context, tx transaction.Tx, g *reservation.Group) error {
	args := m.Called(ctx, tx, g)
	return args.Error(0)
}

func (m *MockGroupRepository) ListInconsistent(ctx context.Context) ([]*reservation.Group, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Group), args.Error(1)
}

// MockWaitlistRepository implements waitlist.Repository
type MockWaitlistRepository struct {
	mock.Mock
}

func (m *MockWaitlistRepository) Create(ctx context.Context, tx transaction.Tx, e *waitlist.Entry) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

func (m *MockWaitlistRepository) GetByID(ctx context.Context, id string) (*waitlist.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waitlist.Entry), args.Error(1)
}

func (m *MockWaitlistRepository) CountForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) (int, error) {
	args := m.Called(ctx, courtID, startAt, endAt)
	return args.Int(0), args.Error(1)
}

func (m *MockWaitlistRepository) ListPendingForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*waitlist.Entry, error) {
	args := m.Called(ctx, courtID, startAt, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*waitlist.Entry), args.Error(1)
}

func (m *MockWaitlistRepository) ListOpenForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*waitlist.Entry, error) {
	args := m.Called(ctx, courtID, startAt, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*waitlist.Entry), args.Error(1)
}

func (m *MockWaitlistRepository) ListOpenByBlockingReservation(ctx context.Context, reservationID string) ([]*waitlist.Entry, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*waitlist.Entry), args.Error(1)
}

func (m *MockWaitlistRepository) Update(ctx context.Context, tx transaction.Tx, e *waitlist.Entry) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

func (m *MockWaitlistRepository) ListOrphaned(ctx context.Context) ([]*waitlist.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*waitlist.Entry), args.Error(1)
}

// MockLockManager implements LockManager
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) AcquireResourceLock(ctx context.Context, courtID string) (Lock, error) {
	args := m.Called(ctx, courtID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Lock), args.Error(1)
}

// MockLock implements Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// RecordingNotifier は送信された通知を記録するテスト用 Notifier
type RecordingNotifier struct {
	Sent []Notification
}

func (n *RecordingNotifier) Notify(ctx context.Context, notification Notification) error {
	n.Sent = append(n.Sent, notification)
	return nil
}
