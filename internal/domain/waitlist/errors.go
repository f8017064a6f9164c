package waitlist

import "errors"

// Waitlist ドメインのエラー定義
var (
	ErrEntryNotFound = errors.New("ウェイトリストエントリが見つかりません")
	ErrNotPending    = errors.New("エントリは受付中ではありません")
	ErrNotNotified   = errors.New("エントリは通知済みではありません")
	ErrAlreadyClosed = errors.New("エントリは既に終端状態です")
)
