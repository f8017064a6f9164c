package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/logger"
)

// ErrSweepInProgress は別のスイープが実行中であることを表す
var ErrSweepInProgress = errors.New("別のスイープが実行中です")

// SweepService は支払期限切れの予約を失効させる定期処理を司る
// 1件ごとに独立したトランザクションで処理し、失敗した件は
// ログに残して次回のスイープで再試行する
type SweepService struct {
	txManager    transaction.Manager
	reservations reservation.Repository
	groups       reservation.GroupRepository
	resolver     *WaitlistResolver
	lockManager  LockManager
	notifier     Notifier
	runMu        sync.Mutex
}

// NewSweepService は新しいスイープサービスを作成する
func NewSweepService(
	txm transaction.Manager,
	rr reservation.Repository,
	gr reservation.GroupRepository,
	resolver *WaitlistResolver,
	lm LockManager,
	notifier Notifier,
) *SweepService {
	return &SweepService{
		txManager:    txm,
		reservations: rr,
		groups:       gr,
		resolver:     resolver,
		lockManager:  lm,
		notifier:     notifier,
	}
}

// SweepResult はスイープ1回分の処理件数を表す
type SweepResult struct {
	Expired           int
	Promoted          int
	CancelledWaitlist int
}

// RunExpirationSweep は支払期限を過ぎた未払い予約を失効させ、
// 解放された時間帯のウェイトリスト連鎖を駆動する
// 冪等であり、変更がなければ2回目の実行は {0,0,0} を返す
// スイープは同時に1回しか走らない。ワーカーの定期実行と手動実行が
// 重なった場合、後から来た方は ErrSweepInProgress を返して何もしない
func (s *SweepService) RunExpirationSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	if !s.runMu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.runMu.Unlock()

	candidates, err := s.reservations.ListExpiredUnpaid(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	result := &SweepResult{}
	// 免除判定はグループ単位で一度だけ評価する
	exemptCache := make(map[string]bool)

	for _, res := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		notifications, err := s.sweepOne(ctx, res, now, exemptCache, result)
		if err != nil {
			// 1件の失敗はスイープ全体を止めない。次回のスイープで再試行する
			logger.Error("失効処理に失敗",
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
			continue
		}
		sendAll(ctx, s.notifier, notifications)
	}
	return result, nil
}

// sweepOne は1件の予約を独立トランザクションで失効させる
func (s *SweepService) sweepOne(ctx context.Context, res *reservation.Reservation, now time.Time, exemptCache map[string]bool, result *SweepResult) ([]Notification, error) {
	if res.GroupID != nil {
		exempt, err := s.isExempt(ctx, *res.GroupID, exemptCache)
		if err != nil {
			return nil, err
		}
		if exempt {
			return nil, nil
		}
	}

	lock, err := s.lockManager.AcquireResourceLock(ctx, res.Interval.CourtID)
	if err != nil {
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	defer lock.Release(ctx)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// ロック下で読み直し、まだ失効対象であることを確認する
	fresh, err := s.reservations.GetByIDForUpdate(ctx, tx, res.ID)
	if err != nil {
		if errors.Is(err, reservation.ErrReservationNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if fresh.PaymentDeadline == nil || !fresh.PaymentDeadline.Before(now) {
		return nil, nil
	}
	if err := fresh.Expire(now); err != nil {
		// 並行処理で既に状態が変わっていた場合は no-op
		if errors.Is(err, reservation.ErrAlreadyTerminal) || errors.Is(err, reservation.ErrNotExpirable) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.reservations.Update(ctx, tx, fresh); err != nil {
		return nil, err
	}

	resolution, err := s.resolver.ResolveReleased(ctx, tx, fresh, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	result.Expired++
	result.Promoted += len(resolution.Promoted)
	result.CancelledWaitlist += len(resolution.ClosedEntries)

	notifications := append([]Notification{{
		RequesterID: fresh.RequesterID,
		EventKind:   EventReservationExpired,
		Payload: map[string]any{
			"reservation_id": fresh.ID,
			"court_id":       fresh.Interval.CourtID,
			"start_at":       fresh.Interval.StartAt,
			"end_at":         fresh.Interval.EndAt,
		},
	}}, resolution.Notifications...)
	return notifications, nil
}

// isExempt はグループが自動失効の免除対象かを返す
func (s *SweepService) isExempt(ctx context.Context, groupID string, cache map[string]bool) (bool, error) {
	if exempt, ok := cache[groupID]; ok {
		return exempt, nil
	}
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, reservation.ErrGroupNotFound) {
			// 孤児予約はリコンサイラーの担当。スイープでは免除しない
			cache[groupID] = false
			return false, nil
		}
		return false, err
	}
	exempt := g.IsExemptFromExpiry()
	cache[groupID] = exempt
	return exempt, nil
}
