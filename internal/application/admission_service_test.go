package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-court-reservation/internal/domain/calendar"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
	redisinfra "github.com/sanosuguru/go-court-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-court-reservation/internal/pricing"
)

// 2026-09-01 は火曜日。固定の現在時刻は営業時間内に置く
var (
	testNow     = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	testStartAt = time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	testEndAt   = time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
)

func newTestCalendar(t *testing.T) *calendar.Calendar {
	cal, err := calendar.New(calendar.Config{
		OpenAt:         "08:00",
		CloseAt:        "17:00",
		ClosedWeekdays: []time.Weekday{time.Sunday},
		Location:       time.UTC,
	})
	require.NoError(t, err)
	return cal
}

type admissionDeps struct {
	txManager   *MockTxManager
	tx          *MockTx
	resRepo     *MockReservationRepository
	groupRepo   *MockGroupRepository
	entryRepo   *MockWaitlistRepository
	lockManager *MockLockManager
	lock        *MockLock
	notifier    *RecordingNotifier
	service     *AdmissionService
}

func newAdmissionDeps(t *testing.T) *admissionDeps {
	txm := new(MockTxManager)
	tx := new(MockTx)
	resRepo := new(MockReservationRepository)
	groupRepo := new(MockGroupRepository)
	entryRepo := new(MockWaitlistRepository)
	lockManager := new(MockLockManager)
	lock := new(MockLock)
	notifier := &RecordingNotifier{}

	service := NewAdmissionService(
		txm, resRepo, groupRepo, entryRepo,
		NewConflictDetector(resRepo), lockManager,
		newTestCalendar(t), pricing.NewHourlyRate(2000), notifier,
	)
	service.nowFn = func() time.Time { return testNow }

	return &admissionDeps{
		txManager: txm, tx: tx, resRepo: resRepo, groupRepo: groupRepo,
		entryRepo: entryRepo, lockManager: lockManager, lock: lock,
		notifier: notifier, service: service,
	}
}

func confirmedReservation(id string) *reservation.Reservation {
	groupID := "group-blocking"
	return &reservation.Reservation{
		ID:              id,
		RequesterID:     "other-user",
		Interval:        reservation.NewInterval("court-1", testStartAt, testEndAt),
		GroupID:         &groupID,
		ApprovalStatus:  reservation.ApprovalApproved,
		PaymentStatus:   reservation.PaymentPaid,
		LifecycleStatus: reservation.LifecycleActive,
	}
}

func provisionalReservation(id string) *reservation.Reservation {
	groupID := "group-blocking"
	return &reservation.Reservation{
		ID:              id,
		RequesterID:     "other-user",
		Interval:        reservation.NewInterval("court-1", testStartAt, testEndAt),
		GroupID:         &groupID,
		ApprovalStatus:  reservation.ApprovalPending,
		PaymentStatus:   reservation.PaymentUnpaid,
		LifecycleStatus: reservation.LifecycleActive,
	}
}

func TestAdmissionService_AttemptBooking_Reserved(t *testing.T) {
	deps := newAdmissionDeps(t)
	ctx := context.Background()

	// Setup mocks
	deps.lockManager.On("AcquireResourceLock", ctx, "court-1").Return(deps.lock, nil)
	deps.lock.On("Release", ctx).Return(nil)
	deps.resRepo.On("ListOverlapping", ctx, "court-1", testStartAt, testEndAt).
		Return([]*reservation.Reservation{}, nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.tx.On("Rollback").Return(nil)
	deps.tx.On("Commit").Return(nil)
	deps.groupRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*reservation.Group")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*reservation.Group).ID = "group-new"
		}).Return(nil)
	deps.resRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*reservation.Reservation")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*reservation.Reservation).ID = "reservation-new"
		}).Return(nil)

	// Execute
	outcome, err := deps.service.AttemptBooking(ctx, AttemptBookingInput{
		RequesterID: "user-1",
		CourtID:     "court-1",
		StartAt:     testStartAt,
		EndAt:       testEndAt,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, OutcomeReserved, outcome.Kind)
	require.NotNil(t, outcome.Reservation)
	assert.Equal(t, reservation.ApprovalPending, outcome.Reservation.ApprovalStatus)
	assert.Equal(t, reservation.PaymentUnpaid, outcome.Reservation.PaymentStatus)
	assert.Equal(t, 2000, outcome.Reservation.Amount)
	// 営業時間内の申込みなので期限は now + 1時間
	require.NotNil(t, outcome.Reservation.PaymentDeadline)
	assert.Equal(t, testNow.Add(time.Hour), *outcome.Reservation.PaymentDeadline)

	require.Len(t, deps.notifier.Sent, 1)
	assert.Equal(t, EventReservationCreated, deps.notifier.Sent[0].EventKind)
	deps.lockManager.AssertExpectations(t)
	deps.resRepo.AssertExpectations(t)
}

func TestAdmissionService_AttemptBooking_SlotConfirmed(t *testing.T) {
	deps := newAdmissionDeps(t)
	ctx := context.Background()

	deps.lockManager.On("AcquireResourceLock", ctx, "court-1").Return(deps.lock, nil)
	deps.lock.On("Release", ctx).Return(nil)
	deps.resRepo.On("ListOverlapping", ctx, "court-1", testStartAt, testEndAt).
		Return([]*reservation.Reservation{confirmedReservation("blocking-1")}, nil)

	outcome, err := deps.service.AttemptBooking(ctx, AttemptBookingInput{
		RequesterID: "user-1",
		CourtID:     "court-1",
		StartAt:     testStartAt,
		EndAt:       testEndAt,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSlotConfirmed, outcome.Kind)
	assert.Nil(t, outcome.Reservation)
	assert.Nil(t, outcome.WaitlistEntry)
	// 申込み拒否なので通知も永続化もされない
	assert.Empty(t, deps.notifier.Sent)
	deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
}

func TestAdmissionService_AttemptBooking_Waitlisted(t *testing.T) {
	deps := newAdmissionDeps(t)
	ctx := context.Background()

	blocking := provisionalReservation("provisional-1")
	deps.lockManager.On("AcquireResourceLock", ctx, "court-1").Return(deps.lock, nil)
	deps.lock.On("Release", ctx).Return(nil)
	deps.resRepo.On("ListOverlapping", ctx, "court-1", testStartAt, testEndAt).
		Return([]*reservation.Reservation{blocking}, nil)
	// 既存エントリが2件（終端含む）なので新しい Position は 3
	deps.entryRepo.On("CountForInterval", ctx, "court-1", testStartAt, testEndAt).Return(2, nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.tx.On("Rollback").Return(nil)
	deps.tx.On("Commit").Return(nil)
	deps.entryRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*waitlist.Entry")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*waitlist.Entry).ID = "entry-new"
		}).Return(nil)

	outcome, err := deps.service.AttemptBooking(ctx, AttemptBookingInput{
		RequesterID: "user-1",
		CourtID:     "court-1",
		StartAt:     testStartAt,
		EndAt:       testEndAt,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeWaitlisted, outcome.Kind)
	require.NotNil(t, outcome.WaitlistEntry)
	assert.Equal(t, 3, outcome.WaitlistEntry.Position)
	assert.Equal(t, "provisional-1", outcome.WaitlistEntry.BlockingReservationID)

	require.Len(t, deps.notifier.Sent, 1)
	assert.Equal(t, EventWaitlistJoined, deps.notifier.Sent[0].EventKind)
}

func TestAdmissionService_AttemptBooking_Busy(t *testing.T) {
	deps := newAdmissionDeps(t)
	ctx := context.Background()

	deps.lockManager.On("AcquireResourceLock", ctx, "court-1").
		Return(nil, redisinfra.ErrLockNotAcquired)

	_, err := deps.service.AttemptBooking(ctx, AttemptBookingInput{
		RequesterID: "user-1",
		CourtID:     "court-1",
		StartAt:     testStartAt,
		EndAt:       testEndAt,
	})

	assert.ErrorIs(t, err, reservation.ErrBusy)
}

func TestAdmissionService_AttemptBooking_Validation(t *testing.T) {
	deps := newAdmissionDeps(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   AttemptBookingInput
		wantErr error
	}{
		{
			"申込者ID未指定",
			AttemptBookingInput{CourtID: "court-1", StartAt: testStartAt, EndAt: testEndAt},
			reservation.ErrRequesterIDRequired,
		},
		{
			"コートID未指定",
			AttemptBookingInput{RequesterID: "user-1", StartAt: testStartAt, EndAt: testEndAt},
			reservation.ErrCourtIDRequired,
		},
		{
			"終了が開始より前",
			AttemptBookingInput{RequesterID: "user-1", CourtID: "court-1", StartAt: testEndAt, EndAt: testStartAt},
			reservation.ErrInvalidInterval,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deps.service.AttemptBooking(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	// 入力検証で弾かれるのでロックは取得されない
	deps.lockManager.AssertNotCalled(t, "AcquireResourceLock", mock.Anything, mock.Anything)
}

func TestAdmissionService_AttemptBooking_ExistingGroup(t *testing.T) {
	t.Run("終端状態のグループへは追加できない", func(t *testing.T) {
		deps := newAdmissionDeps(t)
		ctx := context.Background()

		groupID := "group-terminal"
		terminal := reservation.NewGroup("user-1", testNow)
		terminal.ID = groupID
		terminal.ApprovalStatus = reservation.ApprovalRejected

		deps.lockManager.On("AcquireResourceLock", ctx, "court-1").Return(deps.lock, nil)
		deps.lock.On("Release", ctx).Return(nil)
		deps.resRepo.On("ListOverlapping", ctx, "court-1", testStartAt, testEndAt).
			Return([]*reservation.Reservation{}, nil)
		deps.groupRepo.On("GetByID", ctx, groupID).Return(terminal, nil)

		_, err := deps.service.AttemptBooking(ctx, AttemptBookingInput{
			RequesterID: "user-1",
			CourtID:     "court-1",
			StartAt:     testStartAt,
			EndAt:       testEndAt,
			GroupID:     &groupID,
		})
		assert.ErrorIs(t, err, reservation.ErrAlreadyTerminal)
	})

	t.Run("承認済みグループへの追加明細は状態を引き継ぐ", func(t *testing.T) {
		deps := newAdmissionDeps(t)
		ctx := context.Background()

		groupID := "group-approved"
		approved := reservation.NewGroup("user-1", testNow)
		approved.ID = groupID
		approved.ApprovalStatus = reservation.ApprovalApproved

		deps.lockManager.On("AcquireResourceLock", ctx, "court-1").Return(deps.lock, nil)
		deps.lock.On("Release", ctx).Return(nil)
		deps.resRepo.On("ListOverlapping", ctx, "court-1", testStartAt, testEndAt).
			Return([]*reservation.Reservation{}, nil)
		deps.groupRepo.On("GetByID", ctx, groupID).Return(approved, nil)
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.tx.On("Rollback").Return(nil)
		deps.tx.On("Commit").Return(nil)
		deps.resRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*reservation.Reservation")).Return(nil)

		outcome, err := deps.service.AttemptBooking(ctx, AttemptBookingInput{
			RequesterID: "user-1",
			CourtID:     "court-1",
			StartAt:     testStartAt,
			EndAt:       testEndAt,
			GroupID:     &groupID,
		})

		require.NoError(t, err)
		// カスケード不変条件: 明細の承認状態はグループと一致する
		assert.Equal(t, reservation.ApprovalApproved, outcome.Reservation.ApprovalStatus)
		// 既存グループは新規作成されない
		deps.groupRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAdmissionService_CheckInAndComplete(t *testing.T) {
	deps := newAdmissionDeps(t)
	ctx := context.Background()

	res := confirmedReservation("reservation-1")

	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.tx.On("Rollback").Return(nil)
	deps.tx.On("Commit").Return(nil)
	deps.resRepo.On("GetByIDForUpdate", ctx, deps.tx, "reservation-1").Return(res, nil)
	deps.resRepo.On("Update", ctx, deps.tx, res).Return(nil)

	checked, err := deps.service.CheckInReservation(ctx, "reservation-1")
	require.NoError(t, err)
	assert.Equal(t, reservation.LifecycleCheckedIn, checked.LifecycleStatus)

	completed, err := deps.service.CompleteReservation(ctx, "reservation-1")
	require.NoError(t, err)
	assert.Equal(t, reservation.LifecycleCompleted, completed.LifecycleStatus)
}
