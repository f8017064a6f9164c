package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-court-reservation/internal/domain/calendar"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
	redisinfra "github.com/sanosuguru/go-court-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-court-reservation/internal/pricing"
)

// AdmissionService は予約申込みの受付を司るアプリケーションサービス
// 競合判定から予約作成・ウェイトリスト登録までを
// コート単位のロックとトランザクションの中で直列に実行する
type AdmissionService struct {
	txManager    transaction.Manager
	reservations reservation.Repository
	groups       reservation.GroupRepository
	entries      waitlist.Repository
	detector     *ConflictDetector
	lockManager  LockManager
	calendar     *calendar.Calendar
	oracle       pricing.Oracle
	notifier     Notifier
	nowFn        func() time.Time
}

// NewAdmissionService は新しい受付サービスを作成する
func NewAdmissionService(
	txm transaction.Manager,
	rr reservation.Repository,
	gr reservation.GroupRepository,
	wr waitlist.Repository,
	detector *ConflictDetector,
	lm LockManager,
	cal *calendar.Calendar,
	oracle pricing.Oracle,
	notifier Notifier,
) *AdmissionService {
	return &AdmissionService{
		txManager:    txm,
		reservations: rr,
		groups:       gr,
		entries:      wr,
		detector:     detector,
		lockManager:  lm,
		calendar:     cal,
		oracle:       oracle,
		notifier:     notifier,
		nowFn:        time.Now,
	}
}

// AttemptBookingInput は予約申込みの入力を表す
type AttemptBookingInput struct {
	RequesterID string
	CourtID     string
	StartAt     time.Time
	EndAt       time.Time
	GroupID     *string
}

// OutcomeKind は申込み結果の種類を表す
type OutcomeKind string

const (
	// OutcomeReserved は予約が作成されたことを表す
	OutcomeReserved OutcomeKind = "reserved"
	// OutcomeWaitlisted はウェイトリストに登録されたことを表す
	// 拒否ではなく、正常な結果のひとつ
	OutcomeWaitlisted OutcomeKind = "waitlisted"
	// OutcomeSlotConfirmed は確定済み予約に押さえられており申込み不可を表す
	OutcomeSlotConfirmed OutcomeKind = "slot_confirmed"
)

// BookingOutcome は申込みの結果を表す
type BookingOutcome struct {
	Kind          OutcomeKind
	Reservation   *reservation.Reservation
	Group         *reservation.Group
	WaitlistEntry *waitlist.Entry
}

// AttemptBooking は予約申込みを処理する
// 確定済み予約と競合 → SlotConfirmed、仮予約と競合 → ウェイトリスト登録、
// 競合なし → 予約作成。判定規則は申込者の属性によらず一律
func (s *AdmissionService) AttemptBooking(ctx context.Context, input AttemptBookingInput) (*BookingOutcome, error) {
	if input.RequesterID == "" {
		return nil, reservation.ErrRequesterIDRequired
	}
	iv := reservation.NewInterval(input.CourtID, input.StartAt, input.EndAt)
	if err := iv.Validate(); err != nil {
		return nil, err
	}

	outcome, notifications, err := s.attemptLocked(ctx, input, iv)
	if err != nil {
		return nil, err
	}
	// 通知はロック解放後・コミット後にのみ送る
	sendAll(ctx, s.notifier, notifications)
	return outcome, nil
}

// attemptLocked はコートロックを保持したまま申込み判定と永続化を行う
func (s *AdmissionService) attemptLocked(ctx context.Context, input AttemptBookingInput, iv reservation.Interval) (*BookingOutcome, []Notification, error) {
	lock, err := s.lockManager.AcquireResourceLock(ctx, iv.CourtID)
	if err != nil {
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, nil, reservation.ErrBusy
		}
		return nil, nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	defer lock.Release(ctx)

	now := s.nowFn()

	blocking, err := s.detector.FindBlocking(ctx, iv, input.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if blocking != nil {
		return &BookingOutcome{Kind: OutcomeSlotConfirmed}, nil, nil
	}

	provisional, err := s.detector.FindProvisional(ctx, iv, input.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if len(provisional) == 0 {
		return s.createReservation(ctx, input, iv, now)
	}
	// 最も早く作成された仮予約をブロック元としてキューに入れる
	return s.enqueueWaitlist(ctx, input, iv, provisional[0], now)
}

func (s *AdmissionService) createReservation(ctx context.Context, input AttemptBookingInput, iv reservation.Interval, now time.Time) (*BookingOutcome, []Notification, error) {
	var group *reservation.Group
	newGroup := false
	if input.GroupID != nil {
		existing, err := s.groups.GetByID(ctx, *input.GroupID)
		if err != nil {
			return nil, nil, err
		}
		if existing.IsTerminal() {
			return nil, nil, reservation.ErrAlreadyTerminal
		}
		group = existing
	} else {
		group = reservation.NewGroup(input.RequesterID, now)
		newGroup = true
	}

	amount := s.oracle.Price(iv.CourtID, iv.StartAt, iv.EndAt)
	deadline := calendar.PaymentDeadline(now, s.calendar)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if newGroup {
		if err := s.groups.Create(ctx, tx, group); err != nil {
			return nil, nil, err
		}
	}

	res := reservation.NewReservation(input.RequesterID, iv, &group.ID, amount, deadline, now)
	// 既存グループへの追加時もグループの状態を引き継ぐ（カスケード不変条件）
	res.ApprovalStatus = group.ApprovalStatus
	res.PaymentStatus = group.PaymentStatus
	if err := s.reservations.Create(ctx, tx, res); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	group.LineItems = append(group.LineItems, res)

	notifications := []Notification{{
		RequesterID: input.RequesterID,
		EventKind:   EventReservationCreated,
		Payload: map[string]any{
			"reservation_id":   res.ID,
			"group_id":         group.ID,
			"court_id":         iv.CourtID,
			"start_at":         iv.StartAt,
			"end_at":           iv.EndAt,
			"amount":           amount,
			"payment_deadline": deadline,
		},
	}}
	return &BookingOutcome{Kind: OutcomeReserved, Reservation: res, Group: group}, notifications, nil
}

func (s *AdmissionService) enqueueWaitlist(ctx context.Context, input AttemptBookingInput, iv reservation.Interval, blocking *reservation.Reservation, now time.Time) (*BookingOutcome, []Notification, error) {
	count, err := s.entries.CountForInterval(ctx, iv.CourtID, iv.StartAt, iv.EndAt)
	if err != nil {
		return nil, nil, fmt.Errorf("エントリ数の取得に失敗: %w", err)
	}

	entry := waitlist.NewEntry(input.RequesterID, iv, blocking.ID, count+1, now)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.entries.Create(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	notifications := []Notification{{
		RequesterID: input.RequesterID,
		EventKind:   EventWaitlistJoined,
		Payload: map[string]any{
			"waitlist_entry_id": entry.ID,
			"court_id":          iv.CourtID,
			"start_at":          iv.StartAt,
			"end_at":            iv.EndAt,
			"position":          entry.Position,
		},
	}}
	return &BookingOutcome{Kind: OutcomeWaitlisted, WaitlistEntry: entry}, notifications, nil
}

// GetReservation はIDから予約を取得する
func (s *AdmissionService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

// CheckInReservation は確定済み予約をチェックイン済みにする
func (s *AdmissionService) CheckInReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.updateReservation(ctx, id, func(res *reservation.Reservation, now time.Time) error {
		return res.CheckIn(now)
	})
}

// CompleteReservation はチェックイン済み予約を完了にする
func (s *AdmissionService) CompleteReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.updateReservation(ctx, id, func(res *reservation.Reservation, now time.Time) error {
		return res.Complete(now)
	})
}

// updateReservation は単一予約のライフサイクル更新を行う
func (s *AdmissionService) updateReservation(ctx context.Context, id string, mutate func(*reservation.Reservation, time.Time) error) (*reservation.Reservation, error) {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	res, err := s.reservations.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(res, s.nowFn()); err != nil {
		return nil, err
	}
	if err := s.reservations.Update(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return res, nil
}

// GetWaitlistForInterval は指定時間帯の未終端エントリを Position 順に返す
func (s *AdmissionService) GetWaitlistForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*waitlist.Entry, error) {
	return s.entries.ListOpenForInterval(ctx, courtID, startAt, endAt)
}

// sendAll は通知を送信する。送信失敗は記録するだけで業務結果には影響させない
func sendAll(ctx context.Context, notifier Notifier, notifications []Notification) {
	if notifier == nil {
		return
	}
	for _, n := range notifications {
		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warn("通知送信に失敗",
				zap.String("requester_id", n.RequesterID),
				zap.String("event_kind", n.EventKind),
				zap.Error(err),
			)
		}
	}
}
