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

const groupColumns = `id, requester_id, approval_status, payment_status, no_expiry, payment_proof_ref, reject_reason, cancelled_at, created_at, updated_at`

type groupRow struct {
	ID              string     `db:"id"`
	RequesterID     string     `db:"requester_id"`
	ApprovalStatus  string     `db:"approval_status"`
	PaymentStatus   string     `db:"payment_status"`
	NoExpiry        bool       `db:"no_expiry"`
	PaymentProofRef *string    `db:"payment_proof_ref"`
	RejectReason    *string    `db:"reject_reason"`
	CancelledAt     *time.Time `db:"cancelled_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func toGroupEntity(row *groupRow, lineItems []*reservation.Reservation) *reservation.Group {
	return &reservation.Group{
		ID:              row.ID,
		RequesterID:     row.RequesterID,
		ApprovalStatus:  reservation.ApprovalStatus(row.ApprovalStatus),
		PaymentStatus:   reservation.PaymentStatus(row.PaymentStatus),
		NoExpiry:        row.NoExpiry,
		PaymentProofRef: row.PaymentProofRef,
		RejectReason:    row.RejectReason,
		CancelledAt:     row.CancelledAt,
		LineItems:       lineItems,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

type GroupRepository struct{ db *sqlx.DB }

func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, tx transaction.Tx, g *reservation.Group) error {
	sqlxTx := UnwrapTx(tx)
	query := `INSERT INTO reservation_groups (requester_id, approval_status, payment_status, no_expiry, payment_proof_ref, reject_reason, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query,
		g.RequesterID, string(g.ApprovalStatus), string(g.PaymentStatus),
		g.NoExpiry, g.PaymentProofRef, g.RejectReason, g.CancelledAt, g.CreatedAt, g.UpdatedAt,
	).Scan(&g.ID); err != nil {
		return fmt.Errorf("グループ作成に失敗: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*reservation.Group, error) {
	var row groupRow
	query := `SELECT ` + groupColumns + ` FROM reservation_groups WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrGroupNotFound
		}
		return nil, fmt.Errorf("グループ取得に失敗: %w", err)
	}
	lineItems, err := r.lineItems(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	return toGroupEntity(&row, lineItems), nil
}

func (r *GroupRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Group, error) {
	sqlxTx := UnwrapTx(tx)
	var row groupRow
	query := `SELECT ` + groupColumns + ` FROM reservation_groups WHERE id = $1 FOR UPDATE`
	if err := sqlxTx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrGroupNotFound
		}
		return nil, fmt.Errorf("グループ取得に失敗: %w", err)
	}
	lineItems, err := r.lineItems(ctx, sqlxTx, id, true)
	if err != nil {
		return nil, err
	}
	return toGroupEntity(&row, lineItems), nil
}

func (r *GroupRepository) Update(ctx context.Context, tx transaction.Tx, g *reservation.Group) error {
	sqlxTx := UnwrapTx(tx)
	query := `UPDATE reservation_groups SET approval_status = $1, payment_status = $2, no_expiry = $3, payment_proof_ref = $4, reject_reason = $5, cancelled_at = $6, updated_at = $7 WHERE id = $8`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(g.ApprovalStatus), string(g.PaymentStatus), g.NoExpiry,
		g.PaymentProofRef, g.RejectReason, g.CancelledAt, g.UpdatedAt, g.ID,
	)
	if err != nil {
		return fmt.Errorf("グループ更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return reservation.ErrGroupNotFound
	}
	return nil
}

// ListInconsistent はグループと明細の承認・支払状態が食い違っている
// グループを明細込みで取得する
func (r *GroupRepository) ListInconsistent(ctx context.Context) ([]*reservation.Group, error) {
	var rows []groupRow
	query := `SELECT DISTINCT g.` + groupColumnsAliased("g") + ` FROM reservation_groups g
		JOIN reservations res ON res.group_id = g.id
		WHERE res.approval_status <> g.approval_status OR res.payment_status <> g.payment_status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("不整合グループの取得に失敗: %w", err)
	}
	result := make([]*reservation.Group, len(rows))
	for i := range rows {
		lineItems, err := r.lineItems(ctx, r.db, rows[i].ID, false)
		if err != nil {
			return nil, err
		}
		result[i] = toGroupEntity(&rows[i], lineItems)
	}
	return result, nil
}

type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// lineItems はグループの明細を作成時刻順に読み込む
// forUpdate が真なら行ロックを取得する（トランザクション内でのみ有効）
func (r *GroupRepository) lineItems(ctx context.Context, q queryer, groupID string, forUpdate bool) ([]*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE group_id = $1 ORDER BY created_at ASC`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var rows []reservationRow
	if err := q.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, fmt.Errorf("グループ明細の取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func groupColumnsAliased(alias string) string {
	return `id, ` + alias + `.requester_id, ` + alias + `.approval_status, ` + alias + `.payment_status, ` + alias + `.no_expiry, ` + alias + `.payment_proof_ref, ` + alias + `.reject_reason, ` + alias + `.cancelled_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

var _ reservation.GroupRepository = (*GroupRepository)(nil)
