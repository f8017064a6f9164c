package waitlist

import (
	"time"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
)

// Status はウェイトリストエントリの状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusNotified  Status = "notified"
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Entry は仮状態の予約に押さえられた時間帯への申込み（ウェイトリストエントリ）を表す
// Position は同一コート・同一時間帯のキュー内で単調増加する表示用の順序であり、
// 繰り上げは全 Pending エントリへの一斉通知・先払い勝ちで行われる
type Entry struct {
	ID                    string
	RequesterID           string
	Interval              reservation.Interval
	BlockingReservationID string
	Position              int
	Status                Status
	NotifiedAt            *time.Time
	PaymentDeadline       *time.Time
	PromotedReservationID *string
	AuditNote             *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewEntry は新しいウェイトリストエントリを作成する
func NewEntry(requesterID string, iv reservation.Interval, blockingReservationID string, position int, now time.Time) *Entry {
	return &Entry{
		RequesterID:           requesterID,
		Interval:              iv,
		BlockingReservationID: blockingReservationID,
		Position:              position,
		Status:                StatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// MarkNotified は繰り上げ通知済みにする
// 繰り上げで作成された予約IDと支払期限を記録する
func (e *Entry) MarkNotified(promotedReservationID string, paymentDeadline, now time.Time) error {
	if e.Status != StatusPending {
		return ErrNotPending
	}
	notifiedAt := now
	deadline := paymentDeadline
	e.Status = StatusNotified
	e.NotifiedAt = &notifiedAt
	e.PaymentDeadline = &deadline
	e.PromotedReservationID = &promotedReservationID
	e.UpdatedAt = now
	return nil
}

// Convert は繰り上げ予約が確定したことを記録する
func (e *Entry) Convert(now time.Time) error {
	if e.Status != StatusNotified {
		return ErrNotNotified
	}
	e.Status = StatusConverted
	e.UpdatedAt = now
	return nil
}

// Cancel はエントリを取り消す（ブロック元の予約が確定した場合など）
func (e *Entry) Cancel(now time.Time) error {
	if e.IsClosed() {
		return ErrAlreadyClosed
	}
	e.Status = StatusCancelled
	e.UpdatedAt = now
	return nil
}

// Expire は繰り上げ後に支払期限を過ぎたエントリを失効させる
func (e *Entry) Expire(now time.Time) error {
	if e.IsClosed() {
		return ErrAlreadyClosed
	}
	e.Status = StatusExpired
	e.UpdatedAt = now
	return nil
}

// IsClosed はエントリが終端状態かを返す
func (e *Entry) IsClosed() bool {
	switch e.Status {
	case StatusConverted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}
