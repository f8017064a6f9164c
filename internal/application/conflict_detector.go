package application

import (
	"context"
	"fmt"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
)

// ConflictDetector は候補時間帯と既存予約の競合を分類する
// 比較は常に絶対時刻の半開区間で行い、日付またぎの時間帯も正しく判定する
type ConflictDetector struct {
	reservations reservation.Repository
}

// NewConflictDetector は新しい競合検出器を作成する
func NewConflictDetector(rr reservation.Repository) *ConflictDetector {
	return &ConflictDetector{reservations: rr}
}

// FindBlocking は候補時間帯と交差する確定済み予約のうち最初のものを返す
// 存在しなければ nil を返す
func (d *ConflictDetector) FindBlocking(ctx context.Context, iv reservation.Interval, excludeGroupID *string) (*reservation.Reservation, error) {
	overlapping, err := d.reservations.ListOverlapping(ctx, iv.CourtID, iv.StartAt, iv.EndAt)
	if err != nil {
		return nil, fmt.Errorf("交差予約の取得に失敗: %w", err)
	}
	for _, r := range overlapping {
		if excluded(r, excludeGroupID) {
			continue
		}
		if r.IsConfirmed() {
			return r, nil
		}
	}
	return nil, nil
}

// FindProvisional は候補時間帯と交差する仮状態（未確定・未終端）の予約を
// 作成時刻順に返す
func (d *ConflictDetector) FindProvisional(ctx context.Context, iv reservation.Interval, excludeGroupID *string) ([]*reservation.Reservation, error) {
	overlapping, err := d.reservations.ListOverlapping(ctx, iv.CourtID, iv.StartAt, iv.EndAt)
	if err != nil {
		return nil, fmt.Errorf("交差予約の取得に失敗: %w", err)
	}
	var result []*reservation.Reservation
	for _, r := range overlapping {
		if excluded(r, excludeGroupID) {
			continue
		}
		if r.IsProvisional() {
			result = append(result, r)
		}
	}
	return result, nil
}

func excluded(r *reservation.Reservation, excludeGroupID *string) bool {
	return excludeGroupID != nil && r.GroupID != nil && *r.GroupID == *excludeGroupID
}
