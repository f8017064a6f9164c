package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
)

const entryColumns = `id, requester_id, court_id, start_at, end_at, blocking_reservation_id, position, status, notified_at, payment_deadline, promoted_reservation_id, audit_note, created_at, updated_at`

type entryRow struct {
	ID                    string     `db:"id"`
	RequesterID           string     `db:"requester_id"`
	CourtID               string     `db:"court_id"`
	StartAt               time.Time  `db:"start_at"`
	EndAt                 time.Time  `db:"end_at"`
	BlockingReservationID string     `db:"blocking_reservation_id"`
	Position              int        `db:"position"`
	Status                string     `db:"status"`
	NotifiedAt            *time.Time `db:"notified_at"`
	PaymentDeadline       *time.Time `db:"payment_deadline"`
	PromotedReservationID *string    `db:"promoted_reservation_id"`
	AuditNote             *string    `db:"audit_note"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

func toEntryEntity(row *entryRow) *waitlist.Entry {
	return &waitlist.Entry{
		ID:          row.ID,
		RequesterID: row.RequesterID,
		Interval: reservation.Interval{
			CourtID: row.CourtID,
			StartAt: row.StartAt,
			EndAt:   row.EndAt,
		},
		BlockingReservationID: row.BlockingReservationID,
		Position:              row.Position,
		Status:                waitlist.Status(row.Status),
		NotifiedAt:            row.NotifiedAt,
		PaymentDeadline:       row.PaymentDeadline,
		PromotedReservationID: row.PromotedReservationID,
		AuditNote:             row.AuditNote,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

type WaitlistRepository struct{ db *sqlx.DB }

func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) Create(ctx context.Context, tx transaction.Tx, e *waitlist.Entry) error {
	sqlxTx := UnwrapTx(tx)
	query := `INSERT INTO waitlist_entries (requester_id, court_id, start_at, end_at, blocking_reservation_id, position, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query,
		e.RequesterID, e.Interval.CourtID, e.Interval.StartAt, e.Interval.EndAt,
		e.BlockingReservationID, e.Position, string(e.Status), e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return fmt.Errorf("ウェイトリスト順位が重複しています: %w", err)
		}
		return fmt.Errorf("エントリ作成に失敗: %w", err)
	}
	return nil
}

func (r *WaitlistRepository) GetByID(ctx context.Context, id string) (*waitlist.Entry, error) {
	var row entryRow
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, waitlist.ErrEntryNotFound
		}
		return nil, fmt.Errorf("エントリ取得に失敗: %w", err)
	}
	return toEntryEntity(&row), nil
}

// CountForInterval は同一コート・同一時間帯のエントリ総数を返す
// 終端状態のエントリも数え、Position が再利用されないようにする
func (r *WaitlistRepository) CountForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM waitlist_entries WHERE court_id = $1 AND start_at = $2 AND end_at = $3`
	if err := r.db.GetContext(ctx, &count, query, courtID, startAt, endAt); err != nil {
		return 0, fmt.Errorf("エントリ数の取得に失敗: %w", err)
	}
	return count, nil
}

func (r *WaitlistRepository) ListPendingForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*waitlist.Entry, error) {
	var rows []entryRow
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE court_id = $1 AND start_at = $2 AND end_at = $3 AND status = 'pending'
		ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &rows, query, courtID, startAt, endAt); err != nil {
		return nil, fmt.Errorf("受付中エントリの取得に失敗: %w", err)
	}
	return toEntryEntities(rows), nil
}

func (r *WaitlistRepository) ListOpenForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*waitlist.Entry, error) {
	var rows []entryRow
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE court_id = $1 AND start_at = $2 AND end_at = $3 AND status IN ('pending', 'notified')
		ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &rows, query, courtID, startAt, endAt); err != nil {
		return nil, fmt.Errorf("未終端エントリの取得に失敗: %w", err)
	}
	return toEntryEntities(rows), nil
}

func (r *WaitlistRepository) ListOpenByBlockingReservation(ctx context.Context, reservationID string) ([]*waitlist.Entry, error) {
	var rows []entryRow
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE blocking_reservation_id = $1 AND status IN ('pending', 'notified')
		ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &rows, query, reservationID); err != nil {
		return nil, fmt.Errorf("ブロック元エントリの取得に失敗: %w", err)
	}
	return toEntryEntities(rows), nil
}

func (r *WaitlistRepository) Update(ctx context.Context, tx transaction.Tx, e *waitlist.Entry) error {
	sqlxTx := UnwrapTx(tx)
	query := `UPDATE waitlist_entries SET status = $1, notified_at = $2, payment_deadline = $3, promoted_reservation_id = $4, audit_note = $5, updated_at = $6 WHERE id = $7`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(e.Status), e.NotifiedAt, e.PaymentDeadline, e.PromotedReservationID,
		e.AuditNote, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("エントリ更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return waitlist.ErrEntryNotFound
	}
	return nil
}

func (r *WaitlistRepository) ListOrphaned(ctx context.Context) ([]*waitlist.Entry, error) {
	var rows []entryRow
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries e
		WHERE e.status IN ('pending', 'notified')
		AND NOT EXISTS (SELECT 1 FROM reservations res WHERE res.id = e.blocking_reservation_id)`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("孤児エントリの取得に失敗: %w", err)
	}
	return toEntryEntities(rows), nil
}

func toEntryEntities(rows []entryRow) []*waitlist.Entry {
	result := make([]*waitlist.Entry, len(rows))
	for i := range rows {
		result[i] = toEntryEntity(&rows[i])
	}
	return result
}

var _ waitlist.Repository = (*WaitlistRepository)(nil)
