package calendar

import "errors"

// Calendar ドメインのエラー定義
var (
	ErrInvalidOperatingWindow = errors.New("営業終了時刻は営業開始時刻より後である必要があります")
)
