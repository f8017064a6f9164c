package reservation

import (
	"context"
	"time"

	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// GetByIDForUpdate は行ロック付きで予約を取得する（トランザクション必須）
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Reservation, error)

	// ListOverlapping は指定時間帯と交差する予約を作成時刻順に取得する
	// 交差判定は絶対時刻の半開区間で行う
	ListOverlapping(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*Reservation, error)

	// ListByGroupID はグループに属する予約一覧を取得する
	ListByGroupID(ctx context.Context, groupID string) ([]*Reservation, error)

	// Update は予約を更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// ListExpiredUnpaid は支払期限を過ぎた有効・未払いの予約を取得する
	ListExpiredUnpaid(ctx context.Context, now time.Time) ([]*Reservation, error)

	// ListOrphaned は存在しないグループを参照している予約を取得する
	// （整合性リコンサイラー用）
	ListOrphaned(ctx context.Context) ([]*Reservation, error)
}

// GroupRepository は予約グループリポジトリのインターフェース
type GroupRepository interface {
	// Create は新しいグループを作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, g *Group) error

	// GetByID はIDからグループを明細込みで取得する
	GetByID(ctx context.Context, id string) (*Group, error)

	// GetByIDForUpdate は行ロック付きでグループを明細込みで取得する（トランザクション必須）
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Group, error)

	// Update はグループを更新する（トランザクション必須、明細は含まない）
	Update(ctx context.Context, tx transaction.Tx, g *Group) error

	// ListInconsistent はグループと明細の承認・支払状態が食い違っている
	// グループを明細込みで取得する（整合性リコンサイラー用）
	ListInconsistent(ctx context.Context) ([]*Group, error)
}
