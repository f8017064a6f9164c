package handler

import (
	"context"
	"time"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
)

// AdmissionServiceInterface は受付サービスのインターフェース
type AdmissionServiceInterface interface {
	AttemptBooking(ctx context.Context, input application.AttemptBookingInput) (*application.BookingOutcome, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	CheckInReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	CompleteReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	GetWaitlistForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*waitlist.Entry, error)
}

// GroupServiceInterface はグループサービスのインターフェース
type GroupServiceInterface interface {
	ApproveGroup(ctx context.Context, groupID string) (*application.GroupTransitionResult, error)
	RejectGroup(ctx context.Context, groupID, reason string) (*application.GroupTransitionResult, error)
	RecordPayment(ctx context.Context, groupID string) (*application.GroupTransitionResult, error)
	CancelGroup(ctx context.Context, groupID string) (*application.GroupTransitionResult, error)
	AttachPaymentProof(ctx context.Context, groupID, ref string) (*reservation.Group, error)
	GrantNoExpiry(ctx context.Context, groupID string) (*reservation.Group, error)
	GetGroup(ctx context.Context, groupID string) (*reservation.Group, error)
}

// SweepServiceInterface は自動失効スイープのインターフェース
type SweepServiceInterface interface {
	RunExpirationSweep(ctx context.Context, now time.Time) (*application.SweepResult, error)
}

// ReconcileServiceInterface は整合性リコンサイラーのインターフェース
type ReconcileServiceInterface interface {
	RunReconciliation(ctx context.Context) (*application.ReconcileResult, error)
}
