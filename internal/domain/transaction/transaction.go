package transaction

import "context"

// Tx は進行中のトランザクション境界を表す
// 予約・グループ・ウェイトリストへの書き込みはすべてこの境界の中で行う
type Tx interface {
	// Commit は境界内の変更を確定する
	Commit() error
	// Rollback は境界内の変更を破棄する
	Rollback() error
}

// Manager はトランザクション境界を開始するインターフェース
// sqlx などの具体実装をドメイン層から切り離す
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context) (Tx, error)
}
