package waitlist

import (
	"context"
	"time"

	"github.com/sanosuguru/go-court-reservation/internal/domain/transaction"
)

// Repository はウェイトリストリポジトリのインターフェース
type Repository interface {
	// Create は新しいエントリを作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, e *Entry) error

	// GetByID はIDからエントリを取得する
	GetByID(ctx context.Context, id string) (*Entry, error)

	// CountForInterval は同一コート・同一時間帯のエントリ総数を返す
	// Position 採番に使うため、終端状態のエントリも数える
	CountForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) (int, error)

	// ListPendingForInterval は同一コート・同一時間帯の受付中エントリを
	// Position 昇順で取得する
	ListPendingForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*Entry, error)

	// ListOpenForInterval は同一コート・同一時間帯の未終端
	// （pending / notified）エントリを Position 昇順で取得する
	ListOpenForInterval(ctx context.Context, courtID string, startAt, endAt time.Time) ([]*Entry, error)

	// ListOpenByBlockingReservation は指定予約をブロック元とする
	// 未終端（pending / notified）のエントリを取得する
	ListOpenByBlockingReservation(ctx context.Context, reservationID string) ([]*Entry, error)

	// Update はエントリを更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, e *Entry) error

	// ListOrphaned は存在しない予約をブロック元として参照している
	// 未終端エントリを取得する（整合性リコンサイラー用）
	ListOrphaned(ctx context.Context) ([]*Entry, error)
}
