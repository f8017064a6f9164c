package reservation

import "time"

// GroupTransition はグループ状態遷移の種類を表す
type GroupTransition string

const (
	TransitionApprove GroupTransition = "approve"
	TransitionReject  GroupTransition = "reject"
	TransitionPay     GroupTransition = "pay"
	TransitionCancel  GroupTransition = "cancel"
)

// Group は同時に申し込まれた予約のまとまり（予約グループ）を表す
// 承認状態・支払状態はグループが唯一の書き込み元であり、
// 明細（LineItems）の対応フィールドは Apply のカスケードでのみ更新される
type Group struct {
	ID              string
	RequesterID     string
	ApprovalStatus  ApprovalStatus
	PaymentStatus   PaymentStatus
	NoExpiry        bool
	PaymentProofRef *string
	RejectReason    *string
	CancelledAt     *time.Time
	LineItems       []*Reservation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewGroup は新しい予約グループを作成する（承認待ち・未払い）
func NewGroup(requesterID string, now time.Time) *Group {
	return &Group{
		RequesterID:    requesterID,
		ApprovalStatus: ApprovalPending,
		PaymentStatus:  PaymentUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsTerminal はグループが終端状態かを返す
func (g *Group) IsTerminal() bool {
	return g.ApprovalStatus == ApprovalRejected || g.CancelledAt != nil
}

// IsExemptFromExpiry はグループが自動失効の対象外かを返す
// 運営者付与の無期限フラグ・支払証憑の添付・承認済みのいずれかで免除される
func (g *Group) IsExemptFromExpiry() bool {
	return g.NoExpiry || g.PaymentProofRef != nil || g.ApprovalStatus == ApprovalApproved
}

// Apply はグループへの状態遷移を適用し、全明細へカスケードする
// 遷移が期待する状態を既に離れている場合は ErrAlreadyTerminal を返す
// （リトライを安全にするため、呼び出し側はこれを no-op 成功として扱う）
func (g *Group) Apply(tr GroupTransition, reason *string, now time.Time) error {
	switch tr {
	case TransitionApprove:
		if g.IsTerminal() || g.ApprovalStatus != ApprovalPending {
			return ErrAlreadyTerminal
		}
		g.ApprovalStatus = ApprovalApproved
	case TransitionReject:
		if g.IsTerminal() {
			return ErrAlreadyTerminal
		}
		g.ApprovalStatus = ApprovalRejected
		g.RejectReason = reason
	case TransitionPay:
		if g.IsTerminal() || g.PaymentStatus == PaymentPaid {
			return ErrAlreadyTerminal
		}
		g.PaymentStatus = PaymentPaid
	case TransitionCancel:
		if g.IsTerminal() {
			return ErrAlreadyTerminal
		}
		cancelledAt := now
		g.CancelledAt = &cancelledAt
	default:
		return ErrUnknownTransition
	}
	g.UpdatedAt = now
	g.cascade(tr, now)
	return nil
}

// cascade はグループの状態を全明細へ反映する
// 明細の承認・支払状態はここ以外から書き換えてはならない（カスケード不変条件）
func (g *Group) cascade(tr GroupTransition, now time.Time) {
	for _, item := range g.LineItems {
		switch tr {
		case TransitionApprove, TransitionReject:
			item.ApprovalStatus = g.ApprovalStatus
		case TransitionPay:
			item.PaymentStatus = g.PaymentStatus
		case TransitionCancel:
			if !item.IsTerminal() {
				item.LifecycleStatus = LifecycleCancelled
			}
		}
		item.UpdatedAt = now
	}
}

// Rederive は明細の承認・支払状態をグループから再導出する
// リコンサイラー専用の修復パスで、変更があった場合に true を返す
func (g *Group) Rederive(item *Reservation, now time.Time) bool {
	changed := false
	if item.ApprovalStatus != g.ApprovalStatus {
		item.ApprovalStatus = g.ApprovalStatus
		changed = true
	}
	if item.PaymentStatus != g.PaymentStatus {
		item.PaymentStatus = g.PaymentStatus
		changed = true
	}
	if changed {
		item.UpdatedAt = now
	}
	return changed
}

// AttachPaymentProof は支払証憑への参照を添付する
// 中身は解釈せず、自動失効の免除判定にのみ使う
func (g *Group) AttachPaymentProof(ref string, now time.Time) error {
	if g.IsTerminal() {
		return ErrAlreadyTerminal
	}
	g.PaymentProofRef = &ref
	g.UpdatedAt = now
	return nil
}

// GrantNoExpiry は運営者による無期限フラグを付与する
func (g *Group) GrantNoExpiry(now time.Time) error {
	if g.IsTerminal() {
		return ErrAlreadyTerminal
	}
	g.NoExpiry = true
	g.UpdatedAt = now
	return nil
}
