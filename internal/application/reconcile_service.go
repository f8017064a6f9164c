package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/logger"
)

// ReconcileService はグループと明細・ウェイトリストの整合性を検査し修復する
// 主たる整合性維持の仕組みはロックとトランザクションであり、
// これは多層防御のための安全網。削除は決して行わない
type ReconcileService struct {
	txManager    transaction.Manager
	groups       reservation.GroupRepository
	reservations reservation.Repository
	entries      waitlist.Repository
	nowFn        func() time.Time
}

// NewReconcileService は新しいリコンサイルサービスを作成する
func NewReconcileService(
	txm transaction.Manager,
	gr reservation.GroupRepository,
	rr reservation.Repository,
	wr waitlist.Repository,
) *ReconcileService {
	return &ReconcileService{
		txManager:    txm,
		groups:       gr,
		reservations: rr,
		entries:      wr,
		nowFn:        time.Now,
	}
}

// ReconcileResult はリコンサイル1回分の処理件数を表す
type ReconcileResult struct {
	Repaired int
	Flagged  int
}

// RunReconciliation は整合性検査と修復を冪等に実行する
// カスケード不変条件の違反はグループから再導出して修復し、
// 参照先を失った孤児レコードは監査メモ付きで終端状態にする
func (s *ReconcileService) RunReconciliation(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	if err := s.repairInconsistentGroups(ctx, result); err != nil {
		return result, err
	}
	if err := s.flagOrphanedReservations(ctx, result); err != nil {
		return result, err
	}
	if err := s.flagOrphanedEntries(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// repairInconsistentGroups はグループと明細の状態が食い違うものを修復する
// 正しい導出元はグループなので、修復は一意に定まり自動で行える
func (s *ReconcileService) repairInconsistentGroups(ctx context.Context, result *ReconcileResult) error {
	groups, err := s.groups.ListInconsistent(ctx)
	if err != nil {
		return fmt.Errorf("不整合グループの取得に失敗: %w", err)
	}

	for _, g := range groups {
		if err := s.repairGroup(ctx, g.ID, result); err != nil {
			logger.Error("グループ修復に失敗",
				zap.String("group_id", g.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *ReconcileService) repairGroup(ctx context.Context, groupID string, result *ReconcileResult) error {
	now := s.nowFn()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	g, err := s.groups.GetByIDForUpdate(ctx, tx, groupID)
	if err != nil {
		if errors.Is(err, reservation.ErrGroupNotFound) {
			return nil
		}
		return err
	}

	repaired := 0
	for _, item := range g.LineItems {
		beforeApproval := item.ApprovalStatus
		beforePayment := item.PaymentStatus
		if !g.Rederive(item, now) {
			continue
		}
		logger.Warn("整合性違反を検出: 明細の状態をグループから再導出",
			zap.String("group_id", g.ID),
			zap.String("reservation_id", item.ID),
			zap.String("before_approval", string(beforeApproval)),
			zap.String("before_payment", string(beforePayment)),
			zap.String("after_approval", string(item.ApprovalStatus)),
			zap.String("after_payment", string(item.PaymentStatus)),
		)
		note := fmt.Sprintf("reconciler: グループ %s から状態を再導出 (%s/%s -> %s/%s)",
			g.ID, beforeApproval, beforePayment, item.ApprovalStatus, item.PaymentStatus)
		item.AuditNote = &note
		if err := s.reservations.Update(ctx, tx, item); err != nil {
			return err
		}
		repaired++
	}
	if repaired == 0 {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	result.Repaired += repaired
	return nil
}

// flagOrphanedReservations は存在しないグループを参照する予約を
// 監査メモ付きで取り消す（グループなし＝旧データの予約は対象外）
func (s *ReconcileService) flagOrphanedReservations(ctx context.Context, result *ReconcileResult) error {
	orphans, err := s.reservations.ListOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("孤児予約の取得に失敗: %w", err)
	}

	for _, res := range orphans {
		if err := s.flagReservation(ctx, res, result); err != nil {
			logger.Error("孤児予約の処理に失敗",
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *ReconcileService) flagReservation(ctx context.Context, res *reservation.Reservation, result *ReconcileResult) error {
	now := s.nowFn()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	fresh, err := s.reservations.GetByIDForUpdate(ctx, tx, res.ID)
	if err != nil {
		if errors.Is(err, reservation.ErrReservationNotFound) {
			return nil
		}
		return err
	}

	groupID := ""
	if fresh.GroupID != nil {
		groupID = *fresh.GroupID
	}
	logger.Warn("整合性違反を検出: 予約の参照先グループが存在しない",
		zap.String("reservation_id", fresh.ID),
		zap.String("group_id", groupID),
		zap.String("lifecycle_status", string(fresh.LifecycleStatus)),
	)

	note := fmt.Sprintf("reconciler: 参照先グループ %s が存在しないため取り消し", groupID)
	if err := fresh.MarkOrphaned(note, now); err != nil {
		if errors.Is(err, reservation.ErrAlreadyTerminal) {
			return nil
		}
		return err
	}
	if err := s.reservations.Update(ctx, tx, fresh); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	result.Flagged++
	return nil
}

// flagOrphanedEntries はブロック元予約を失ったエントリを失効させる
func (s *ReconcileService) flagOrphanedEntries(ctx context.Context, result *ReconcileResult) error {
	orphans, err := s.entries.ListOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("孤児エントリの取得に失敗: %w", err)
	}

	for _, e := range orphans {
		if err := s.flagEntry(ctx, e, result); err != nil {
			logger.Error("孤児エントリの処理に失敗",
				zap.String("waitlist_entry_id", e.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *ReconcileService) flagEntry(ctx context.Context, e *waitlist.Entry, result *ReconcileResult) error {
	now := s.nowFn()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	logger.Warn("整合性違反を検出: エントリのブロック元予約が存在しない",
		zap.String("waitlist_entry_id", e.ID),
		zap.String("blocking_reservation_id", e.BlockingReservationID),
		zap.String("status", string(e.Status)),
	)

	if err := e.Expire(now); err != nil {
		if errors.Is(err, waitlist.ErrAlreadyClosed) {
			return nil
		}
		return err
	}
	note := fmt.Sprintf("reconciler: ブロック元予約 %s が存在しないため失効", e.BlockingReservationID)
	e.AuditNote = &note
	if err := s.entries.Update(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	result.Flagged++
	return nil
}
