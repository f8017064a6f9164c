package reservation

import "time"

// ApprovalStatus は承認状態を表す
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// PaymentStatus は支払状態を表す
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// LifecycleStatus は予約のライフサイクル状態を表す
type LifecycleStatus string

const (
	LifecycleActive    LifecycleStatus = "active"
	LifecycleCheckedIn LifecycleStatus = "checked_in"
	LifecycleCompleted LifecycleStatus = "completed"
	LifecycleCancelled LifecycleStatus = "cancelled"
	LifecycleExpired   LifecycleStatus = "expired"
)

// Reservation は1つの時間帯に対する1リクエスターの予約エンティティを表す
type Reservation struct {
	ID                    string
	RequesterID           string
	Interval              Interval
	GroupID               *string
	ApprovalStatus        ApprovalStatus
	PaymentStatus         PaymentStatus
	LifecycleStatus       LifecycleStatus
	PaymentDeadline       *time.Time
	OriginWaitlistEntryID *string
	Amount                int
	AuditNote             *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewReservation は新しい予約を作成する（承認待ち・未払い）
func NewReservation(requesterID string, iv Interval, groupID *string, amount int, paymentDeadline time.Time, now time.Time) *Reservation {
	deadline := paymentDeadline
	return &Reservation{
		RequesterID:     requesterID,
		Interval:        iv,
		GroupID:         groupID,
		ApprovalStatus:  ApprovalPending,
		PaymentStatus:   PaymentUnpaid,
		LifecycleStatus: LifecycleActive,
		PaymentDeadline: &deadline,
		Amount:          amount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsConfirmed は予約が確定済みかを返す
// 確定済み = 承認済み かつ 支払済み かつ ライフサイクルが有効系。
// 確定済みの予約だけが他の申込みを完全にブロックする
func (r *Reservation) IsConfirmed() bool {
	if r.ApprovalStatus != ApprovalApproved || r.PaymentStatus != PaymentPaid {
		return false
	}
	switch r.LifecycleStatus {
	case LifecycleActive, LifecycleCheckedIn, LifecycleCompleted:
		return true
	}
	return false
}

// IsTerminal は予約が終端状態（却下・キャンセル・期限切れ）かを返す
func (r *Reservation) IsTerminal() bool {
	if r.ApprovalStatus == ApprovalRejected {
		return true
	}
	switch r.LifecycleStatus {
	case LifecycleCancelled, LifecycleExpired:
		return true
	}
	return false
}

// IsProvisional は予約が仮状態（確定でも終端でもない）かを返す
// 仮状態の予約は他の申込みをブロックせず、ウェイトリストへ誘導する
func (r *Reservation) IsProvisional() bool {
	return !r.IsConfirmed() && !r.IsTerminal()
}

// Expire は支払期限切れの予約を失効させる
func (r *Reservation) Expire(now time.Time) error {
	if r.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if r.LifecycleStatus != LifecycleActive || r.PaymentStatus != PaymentUnpaid {
		return ErrNotExpirable
	}
	r.LifecycleStatus = LifecycleExpired
	r.UpdatedAt = now
	return nil
}

// CheckIn はチェックインを記録する（確定済みの予約のみ）
func (r *Reservation) CheckIn(now time.Time) error {
	if !r.IsConfirmed() {
		return ErrNotConfirmed
	}
	if r.LifecycleStatus != LifecycleActive {
		return ErrAlreadyTerminal
	}
	r.LifecycleStatus = LifecycleCheckedIn
	r.UpdatedAt = now
	return nil
}

// Complete は利用完了を記録する
func (r *Reservation) Complete(now time.Time) error {
	if r.LifecycleStatus != LifecycleCheckedIn {
		return ErrNotCheckedIn
	}
	r.LifecycleStatus = LifecycleCompleted
	r.UpdatedAt = now
	return nil
}

// MarkOrphaned は参照先グループを失った予約を監査メモ付きで取り消す
// リコンサイラー専用。削除はせず、監査のため記録を残す
func (r *Reservation) MarkOrphaned(note string, now time.Time) error {
	if r.IsTerminal() {
		return ErrAlreadyTerminal
	}
	r.LifecycleStatus = LifecycleCancelled
	r.AuditNote = &note
	r.UpdatedAt = now
	return nil
}
