package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
	redisinfra "github.com/sanosuguru/go-court-reservation/internal/infrastructure/redis"
)

// GroupService は予約グループの状態遷移を司るアプリケーションサービス
// グループ更新・全明細へのカスケード・ウェイトリスト連鎖を
// ひとつのトランザクションで適用する（部分適用は許さない）
type GroupService struct {
	txManager    transaction.Manager
	groups       reservation.GroupRepository
	reservations reservation.Repository
	resolver     *WaitlistResolver
	lockManager  LockManager
	notifier     Notifier
	nowFn        func() time.Time
}

// GroupTransitionResult はグループ遷移で変化したエンティティの集合を表す
type GroupTransitionResult struct {
	// AlreadyTerminal は遷移が期待する状態を既に離れており
	// no-op として成功扱いになったことを表す
	AlreadyTerminal      bool
	Group                *reservation.Group
	Promoted             []*reservation.Reservation
	RejectedReservations []*reservation.Reservation
	ClosedEntries        []*waitlist.Entry
}

// NewGroupService は新しいグループサービスを作成する
func NewGroupService(
	txm transaction.Manager,
	gr reservation.GroupRepository,
	rr reservation.Repository,
	resolver *WaitlistResolver,
	lm LockManager,
	notifier Notifier,
) *GroupService {
	return &GroupService{
		txManager:    txm,
		groups:       gr,
		reservations: rr,
		resolver:     resolver,
		lockManager:  lm,
		notifier:     notifier,
		nowFn:        time.Now,
	}
}

// ApproveGroup はグループを承認する
func (s *GroupService) ApproveGroup(ctx context.Context, groupID string) (*GroupTransitionResult, error) {
	return s.ApplyGroupTransition(ctx, groupID, reservation.TransitionApprove, nil)
}

// RejectGroup はグループを却下する
func (s *GroupService) RejectGroup(ctx context.Context, groupID, reason string) (*GroupTransitionResult, error) {
	return s.ApplyGroupTransition(ctx, groupID, reservation.TransitionReject, &reason)
}

// RecordPayment はグループの支払いを記録する
func (s *GroupService) RecordPayment(ctx context.Context, groupID string) (*GroupTransitionResult, error) {
	return s.ApplyGroupTransition(ctx, groupID, reservation.TransitionPay, nil)
}

// CancelGroup はグループを取り消す
func (s *GroupService) CancelGroup(ctx context.Context, groupID string) (*GroupTransitionResult, error) {
	return s.ApplyGroupTransition(ctx, groupID, reservation.TransitionCancel, nil)
}

// ApplyGroupTransition はグループへの状態遷移を適用する
// グループ更新・明細カスケード・ウェイトリスト連鎖を同一トランザクションで
// コミットし、触れたエンティティの集合を返す
func (s *GroupService) ApplyGroupTransition(ctx context.Context, groupID string, tr reservation.GroupTransition, reason *string) (*GroupTransitionResult, error) {
	// ロック対象のコートを知るため、まず通常読みする
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	result, notifications, err := s.applyLocked(ctx, g, tr, reason)
	if err != nil {
		return nil, err
	}
	// 通知はロック解放後・コミット後にのみ送る
	sendAll(ctx, s.notifier, notifications)
	return result, nil
}

// applyLocked は関係する全コートのロックを保持したまま遷移を適用する
func (s *GroupService) applyLocked(ctx context.Context, g *reservation.Group, tr reservation.GroupTransition, reason *string) (*GroupTransitionResult, []Notification, error) {
	locks, err := s.acquireCourtLocks(ctx, courtIDsOf(g))
	if err != nil {
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, nil, reservation.ErrBusy
		}
		return nil, nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	defer releaseLocks(ctx, locks)

	now := s.nowFn()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// ロック下で読み直す
	fresh, err := s.groups.GetByIDForUpdate(ctx, tx, g.ID)
	if err != nil {
		return nil, nil, err
	}

	// 遷移前に仮状態だった明細を記録し、遷移後の解決対象を判定する
	wasProvisional := make(map[string]bool, len(fresh.LineItems))
	for _, item := range fresh.LineItems {
		wasProvisional[item.ID] = item.IsProvisional()
	}

	if err := fresh.Apply(tr, reason, now); err != nil {
		if errors.Is(err, reservation.ErrAlreadyTerminal) {
			return &GroupTransitionResult{AlreadyTerminal: true, Group: fresh}, nil, nil
		}
		return nil, nil, err
	}

	if err := s.groups.Update(ctx, tx, fresh); err != nil {
		return nil, nil, err
	}
	for _, item := range fresh.LineItems {
		if err := s.reservations.Update(ctx, tx, item); err != nil {
			return nil, nil, err
		}
	}

	result := &GroupTransitionResult{Group: fresh}
	resolution := &ResolutionResult{}
	for _, item := range fresh.LineItems {
		if !wasProvisional[item.ID] {
			continue
		}
		switch {
		case item.IsConfirmed():
			rr, err := s.resolver.ResolveConfirmed(ctx, tx, item, now)
			if err != nil {
				return nil, nil, err
			}
			resolution.merge(rr)
		case item.IsTerminal():
			rr, err := s.resolver.ResolveReleased(ctx, tx, item, now)
			if err != nil {
				return nil, nil, err
			}
			resolution.merge(rr)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	result.Promoted = resolution.Promoted
	result.RejectedReservations = resolution.RejectedReservations
	result.ClosedEntries = resolution.ClosedEntries

	notifications := append(s.transitionNotifications(fresh, tr), resolution.Notifications...)
	return result, notifications, nil
}

// AttachPaymentProof は支払証憑への参照をグループに添付する
func (s *GroupService) AttachPaymentProof(ctx context.Context, groupID, ref string) (*reservation.Group, error) {
	return s.updateGroup(ctx, groupID, func(g *reservation.Group, now time.Time) error {
		return g.AttachPaymentProof(ref, now)
	})
}

// GrantNoExpiry は運営者による無期限フラグをグループに付与する
func (s *GroupService) GrantNoExpiry(ctx context.Context, groupID string) (*reservation.Group, error) {
	return s.updateGroup(ctx, groupID, func(g *reservation.Group, now time.Time) error {
		return g.GrantNoExpiry(now)
	})
}

// GetGroup はIDからグループを明細込みで取得する
func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*reservation.Group, error) {
	return s.groups.GetByID(ctx, groupID)
}

// updateGroup は状態遷移を伴わないグループ属性の更新を行う
func (s *GroupService) updateGroup(ctx context.Context, groupID string, mutate func(*reservation.Group, time.Time) error) (*reservation.Group, error) {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	g, err := s.groups.GetByIDForUpdate(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	if err := mutate(g, s.nowFn()); err != nil {
		return nil, err
	}
	if err := s.groups.Update(ctx, tx, g); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return g, nil
}

// acquireCourtLocks は複数コートのロックを昇順で取得する
// 途中で失敗した場合は取得済みのロックをすべて解放する
func (s *GroupService) acquireCourtLocks(ctx context.Context, courtIDs []string) ([]Lock, error) {
	locks := make([]Lock, 0, len(courtIDs))
	for _, id := range courtIDs {
		lock, err := s.lockManager.AcquireResourceLock(ctx, id)
		if err != nil {
			releaseLocks(ctx, locks)
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

// releaseLocks は取得と逆順でロックを解放する
func releaseLocks(ctx context.Context, locks []Lock) {
	for i := len(locks) - 1; i >= 0; i-- {
		_ = locks[i].Release(ctx)
	}
}

func (s *GroupService) transitionNotifications(g *reservation.Group, tr reservation.GroupTransition) []Notification {
	kind := map[reservation.GroupTransition]string{
		reservation.TransitionApprove: EventGroupApproved,
		reservation.TransitionReject:  EventGroupRejected,
		reservation.TransitionPay:     EventGroupPaid,
		reservation.TransitionCancel:  EventGroupCancelled,
	}[tr]
	payload := map[string]any{"group_id": g.ID}
	if g.RejectReason != nil {
		payload["reason"] = *g.RejectReason
	}
	return []Notification{{RequesterID: g.RequesterID, EventKind: kind, Payload: payload}}
}
