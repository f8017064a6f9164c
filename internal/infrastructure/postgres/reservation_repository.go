package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
)

const reservationColumns = `id, requester_id, court_id, start_at, end_at, group_id, approval_status, payment_status, lifecycle_status, payment_deadline, origin_waitlist_entry_id, amount, audit_note, created_at, updated_at`

type reservationRow struct {
	ID                    string     `db:"id"`
	RequesterID           string     `db:"requester_id"`
	CourtID               string     `db:"court_id"`
	StartAt               time.Time  `db:"start_at"`
	EndAt                 time.Time  `db:"end_at"`
	GroupID               *string    `db:"group_id"`
	ApprovalStatus        string     `db:"approval_status"`
	PaymentStatus         string     `db:"payment_status"`
	LifecycleStatus       string     `db:"lifecycle_status"`
	PaymentDeadline       *time.Time `db:"payment_deadline"`
	OriginWaitlistEntryID *string    `db:"origin_waitlist_entry_id"`
	Amount                int        `db:"amount"`
	AuditNote             *string    `db:"audit_note"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

func toReservationEntity(row *reservationRow) *reservation.Reservation {
	return &reservation.Reservation{
		ID:          row.ID,
		RequesterID: row.RequesterID,
		Interval: reservation.Interval{
			CourtID: row.CourtID,
			StartAt: row.StartAt,
			EndAt:   row.EndAt,
		},
		GroupID:               row.GroupID,
		ApprovalStatus:        reservation.ApprovalStatus(row.ApprovalStatus),
		PaymentStatus:         reservation.PaymentStatus(row.PaymentStatus),
		LifecycleStatus:       reservation.LifecycleStatus(row.LifecycleStatus),
		PaymentDeadline:       row.PaymentDeadline,
		OriginWaitlistEntryID: row.OriginWaitlistEntryID,
		Amount:                row.Amount,
		AuditNote:             row.AuditNote,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	query := `INSERT INTO reservations (requester_id, court_id, start_at, end_at, group_id, approval_status, payment_status, lifecycle_status, payment_deadline, origin_waitlist_entry_id, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query,
		res.RequesterID, res.Interval.CourtID, res.Interval.StartAt, res.Interval.EndAt,
		res.GroupID, string(res.ApprovalStatus), string(res.PaymentStatus), string(res.LifecycleStatus),
		res.PaymentDeadline, res.OriginWaitlistEntryID, res.Amount, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID); err != nil {
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toReservationEntity(&row), nil
}

func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	sqlxTx := UnwrapTx(tx)
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	if err := sqlxTx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toReservationEntity(&row), nil
}

// ListOverlapping は指定時間帯と交差する予約を作成時刻順に取得する
// 半開区間 [start_at, end_at) 同士の交差判定を絶対時刻で行う
func (r *ReservationRepository) ListOverlapping(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE court_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, courtID, startAt, endAt); err != nil {
		return nil, fmt.Errorf("交差予約の取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func (r *ReservationRepository) ListByGroupID(ctx context.Context, groupID string) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE group_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, fmt.Errorf("グループ明細の取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	query := `UPDATE reservations SET approval_status = $1, payment_status = $2, lifecycle_status = $3, payment_deadline = $4, audit_note = $5, updated_at = $6 WHERE id = $7`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(res.ApprovalStatus), string(res.PaymentStatus), string(res.LifecycleStatus),
		res.PaymentDeadline, res.AuditNote, res.UpdatedAt, res.ID,
	)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) ListExpiredUnpaid(ctx context.Context, now time.Time) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE lifecycle_status = 'active' AND payment_status = 'unpaid'
		AND payment_deadline IS NOT NULL AND payment_deadline < $1
		ORDER BY payment_deadline ASC`
	if err := r.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func (r *ReservationRepository) ListOrphaned(ctx context.Context) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations r
		WHERE r.group_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM reservation_groups g WHERE g.id = r.group_id)
		AND r.lifecycle_status NOT IN ('cancelled', 'expired')
		AND r.approval_status <> 'rejected'`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("孤児予約の取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func toReservationEntities(rows []reservationRow) []*reservation.Reservation {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = toReservationEntity(&rows[i])
	}
	return result
}

var _ reservation.Repository = (*ReservationRepository)(nil)
