package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sanosuguru/go-court-reservation/internal/config"
	"github.com/sanosuguru/go-court-reservation/internal/domain/calendar"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
	"github.com/sanosuguru/go-court-reservation/internal/pricing"
)

// WaitlistResolver はブロック元予約の解決時にウェイトリストを処理する
// すべてのメソッドは呼び出し元のトランザクション内で実行されることを前提とし、
// 通知はコミット後に送るため結果として返すだけで送信はしない
type WaitlistResolver struct {
	reservations reservation.Repository
	groups       reservation.GroupRepository
	entries      waitlist.Repository
	calendar     *calendar.Calendar
	oracle       pricing.Oracle
	policy       config.PromotionPolicy
}

// NewWaitlistResolver は新しいリゾルバーを作成する
func NewWaitlistResolver(
	rr reservation.Repository,
	gr reservation.GroupRepository,
	wr waitlist.Repository,
	cal *calendar.Calendar,
	oracle pricing.Oracle,
	policy config.PromotionPolicy,
) *WaitlistResolver {
	return &WaitlistResolver{
		reservations: rr,
		groups:       gr,
		entries:      wr,
		calendar:     cal,
		oracle:       oracle,
		policy:       policy,
	}
}

// ResolutionResult は解決処理で変化したエンティティの集合を表す
type ResolutionResult struct {
	Promoted             []*reservation.Reservation
	RejectedReservations []*reservation.Reservation
	ClosedEntries        []*waitlist.Entry
	Notifications        []Notification
}

func (r *ResolutionResult) merge(other *ResolutionResult) {
	r.Promoted = append(r.Promoted, other.Promoted...)
	r.RejectedReservations = append(r.RejectedReservations, other.RejectedReservations...)
	r.ClosedEntries = append(r.ClosedEntries, other.ClosedEntries...)
	r.Notifications = append(r.Notifications, other.Notifications...)
}

// ResolveConfirmed は予約が確定済みへ遷移した際のウェイトリスト処理を行う
// 繰り上げ由来なら元エントリを転換済みにし、同一時間帯で競合していた
// 未終端エントリをすべて取り消す。繰り上げ済みの競合予約は敗退として却下する
func (w *WaitlistResolver) ResolveConfirmed(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, now time.Time) (*ResolutionResult, error) {
	result := &ResolutionResult{}

	if res.OriginWaitlistEntryID != nil {
		if err := w.convertOrigin(ctx, tx, res, now, result); err != nil {
			return nil, err
		}
	}

	losers, err := w.collectOpenRivals(ctx, res)
	if err != nil {
		return nil, err
	}

	for _, e := range losers {
		if err := e.Cancel(now); err != nil {
			// 並行処理で既に閉じられたエントリはスキップ
			if errors.Is(err, waitlist.ErrAlreadyClosed) {
				continue
			}
			return nil, err
		}
		if err := w.entries.Update(ctx, tx, e); err != nil {
			return nil, err
		}
		result.ClosedEntries = append(result.ClosedEntries, e)
		result.Notifications = append(result.Notifications, Notification{
			RequesterID: e.RequesterID,
			EventKind:   EventWaitlistCancelled,
			Payload: map[string]any{
				"waitlist_entry_id": e.ID,
				"court_id":          e.Interval.CourtID,
				"start_at":          e.Interval.StartAt,
				"end_at":            e.Interval.EndAt,
			},
		})

		// 既に繰り上げられていたエントリの予約は敗退として却下する
		if e.PromotedReservationID != nil {
			if err := w.rejectPromoted(ctx, tx, *e.PromotedReservationID, now, result); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// ResolveReleased は予約が否定的に解決（却下・キャンセル・失効）された際の
// ウェイトリスト処理を行う。解放された時間帯の受付中エントリを一斉に繰り上げる
// （全員へ通知し、最初に支払いを完了した者が勝つ方式）
func (w *WaitlistResolver) ResolveReleased(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, now time.Time) (*ResolutionResult, error) {
	result := &ResolutionResult{}

	if res.OriginWaitlistEntryID != nil {
		if err := w.closeOrigin(ctx, tx, res, now, result); err != nil {
			return nil, err
		}
	}

	pending, err := w.collectPendingCandidates(ctx, res)
	if err != nil {
		return nil, err
	}
	// strict 方式は Position 先頭の1件のみ繰り上げる
	if w.policy == config.PromotionStrict && len(pending) > 1 {
		sort.SliceStable(pending, func(i, j int) bool { return pending[i].Position < pending[j].Position })
		pending = pending[:1]
	}

	for _, e := range pending {
		promoted, err := w.promote(ctx, tx, e, now)
		if err != nil {
			return nil, err
		}
		result.Promoted = append(result.Promoted, promoted)
		result.Notifications = append(result.Notifications, Notification{
			RequesterID: e.RequesterID,
			EventKind:   EventWaitlistPromoted,
			Payload: map[string]any{
				"waitlist_entry_id": e.ID,
				"reservation_id":    promoted.ID,
				"court_id":          e.Interval.CourtID,
				"start_at":          e.Interval.StartAt,
				"end_at":            e.Interval.EndAt,
				"payment_deadline":  *promoted.PaymentDeadline,
			},
		})
	}
	return result, nil
}

// promote はエントリから新しい予約（承認待ち・未払い）と単独明細のグループを作成する
func (w *WaitlistResolver) promote(ctx context.Context, tx transaction.Tx, e *waitlist.Entry, now time.Time) (*reservation.Reservation, error) {
	group := reservation.NewGroup(e.RequesterID, now)
	if err := w.groups.Create(ctx, tx, group); err != nil {
		return nil, fmt.Errorf("繰り上げグループの作成に失敗: %w", err)
	}

	amount := w.oracle.Price(e.Interval.CourtID, e.Interval.StartAt, e.Interval.EndAt)
	deadline := calendar.PaymentDeadline(now, w.calendar)
	promoted := reservation.NewReservation(e.RequesterID, e.Interval, &group.ID, amount, deadline, now)
	promoted.OriginWaitlistEntryID = &e.ID
	if err := w.reservations.Create(ctx, tx, promoted); err != nil {
		return nil, fmt.Errorf("繰り上げ予約の作成に失敗: %w", err)
	}

	if err := e.MarkNotified(promoted.ID, deadline, now); err != nil {
		return nil, err
	}
	if err := w.entries.Update(ctx, tx, e); err != nil {
		return nil, err
	}
	return promoted, nil
}

// convertOrigin は繰り上げ由来の予約が確定した際、元エントリを転換済みにする
func (w *WaitlistResolver) convertOrigin(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, now time.Time, result *ResolutionResult) error {
	e, err := w.entries.GetByID(ctx, *res.OriginWaitlistEntryID)
	if err != nil {
		if errors.Is(err, waitlist.ErrEntryNotFound) {
			return nil
		}
		return err
	}
	if e.Status != waitlist.StatusNotified {
		return nil
	}
	if err := e.Convert(now); err != nil {
		return err
	}
	if err := w.entries.Update(ctx, tx, e); err != nil {
		return err
	}
	result.ClosedEntries = append(result.ClosedEntries, e)
	result.Notifications = append(result.Notifications, Notification{
		RequesterID: e.RequesterID,
		EventKind:   EventWaitlistConverted,
		Payload: map[string]any{
			"waitlist_entry_id": e.ID,
			"reservation_id":    res.ID,
		},
	})
	return nil
}

// closeOrigin は繰り上げ由来の予約が否定的に解決された際、元エントリを閉じる
// 失効による解決ならエントリも失効、それ以外は取り消しとして記録する
func (w *WaitlistResolver) closeOrigin(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, now time.Time, result *ResolutionResult) error {
	e, err := w.entries.GetByID(ctx, *res.OriginWaitlistEntryID)
	if err != nil {
		if errors.Is(err, waitlist.ErrEntryNotFound) {
			return nil
		}
		return err
	}
	if e.IsClosed() {
		return nil
	}
	if res.LifecycleStatus == reservation.LifecycleExpired {
		err = e.Expire(now)
	} else {
		err = e.Cancel(now)
	}
	if err != nil {
		return err
	}
	if err := w.entries.Update(ctx, tx, e); err != nil {
		return err
	}
	result.ClosedEntries = append(result.ClosedEntries, e)
	return nil
}

// collectOpenRivals は確定した予約と競合する未終端エントリを集める
// ブロック元として直接紐づくものと、同一時間帯のものの和集合
// （元エントリ自身は除く）
func (w *WaitlistResolver) collectOpenRivals(ctx context.Context, res *reservation.Reservation) ([]*waitlist.Entry, error) {
	byBlocking, err := w.entries.ListOpenByBlockingReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("ブロック元エントリの取得に失敗: %w", err)
	}
	byInterval, err := w.entries.ListOpenForInterval(ctx, res.Interval.CourtID, res.Interval.StartAt, res.Interval.EndAt)
	if err != nil {
		return nil, fmt.Errorf("同一時間帯エントリの取得に失敗: %w", err)
	}

	seen := make(map[string]struct{})
	var rivals []*waitlist.Entry
	for _, e := range append(byBlocking, byInterval...) {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		if res.OriginWaitlistEntryID != nil && e.ID == *res.OriginWaitlistEntryID {
			continue
		}
		rivals = append(rivals, e)
	}
	return rivals, nil
}

// collectPendingCandidates は解放された予約に対して繰り上げ対象となる
// 受付中エントリを集める。同一時間帯のものと、解放された予約をブロック元と
// するものの和集合。登録時のブロック元は最初に重なった仮予約であり、
// エントリ自身の時間帯と一致するとは限らないため両方を引く
func (w *WaitlistResolver) collectPendingCandidates(ctx context.Context, res *reservation.Reservation) ([]*waitlist.Entry, error) {
	byInterval, err := w.entries.ListPendingForInterval(ctx, res.Interval.CourtID, res.Interval.StartAt, res.Interval.EndAt)
	if err != nil {
		return nil, fmt.Errorf("受付中エントリの取得に失敗: %w", err)
	}
	byBlocking, err := w.entries.ListOpenByBlockingReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("ブロック元エントリの取得に失敗: %w", err)
	}

	seen := make(map[string]struct{})
	var candidates []*waitlist.Entry
	for _, e := range append(byInterval, byBlocking...) {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		// 通知済み・終端のエントリは繰り上げ対象外
		if e.Status != waitlist.StatusPending {
			continue
		}
		if res.OriginWaitlistEntryID != nil && e.ID == *res.OriginWaitlistEntryID {
			continue
		}
		candidates = append(candidates, e)
	}
	return candidates, nil
}

// rejectPromoted は敗退した繰り上げ予約をグループごと却下する
// グループ経由で却下することでカスケード不変条件を維持する
func (w *WaitlistResolver) rejectPromoted(ctx context.Context, tx transaction.Tx, reservationID string, now time.Time, result *ResolutionResult) error {
	rival, err := w.reservations.GetByIDForUpdate(ctx, tx, reservationID)
	if err != nil {
		if errors.Is(err, reservation.ErrReservationNotFound) {
			return nil
		}
		return err
	}
	if rival.IsTerminal() {
		return nil
	}
	if rival.GroupID == nil {
		return fmt.Errorf("繰り上げ予約 %s にグループがありません: %w", rival.ID, reservation.ErrGroupNotFound)
	}

	g, err := w.groups.GetByIDForUpdate(ctx, tx, *rival.GroupID)
	if err != nil {
		return err
	}
	reason := "先に支払いを完了した申込みがあったため却下"
	if err := g.Apply(reservation.TransitionReject, &reason, now); err != nil {
		if errors.Is(err, reservation.ErrAlreadyTerminal) {
			return nil
		}
		return err
	}
	if err := w.groups.Update(ctx, tx, g); err != nil {
		return err
	}
	for _, item := range g.LineItems {
		if err := w.reservations.Update(ctx, tx, item); err != nil {
			return err
		}
		result.RejectedReservations = append(result.RejectedReservations, item)
		result.Notifications = append(result.Notifications, Notification{
			RequesterID: item.RequesterID,
			EventKind:   EventGroupRejected,
			Payload: map[string]any{
				"reservation_id": item.ID,
				"group_id":       g.ID,
				"reason":         reason,
			},
		})
	}
	return nil
}
