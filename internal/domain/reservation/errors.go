package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound = errors.New("予約が見つかりません")
	ErrGroupNotFound       = errors.New("予約グループが見つかりません")
	ErrCourtIDRequired     = errors.New("コートIDは必須です")
	ErrRequesterIDRequired = errors.New("リクエスターIDは必須です")
	ErrInvalidInterval     = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrAlreadyTerminal     = errors.New("既に終端状態のため遷移できません")
	ErrNotExpirable        = errors.New("失効対象の状態ではありません")
	ErrNotConfirmed        = errors.New("予約が確定されていません")
	ErrNotCheckedIn        = errors.New("チェックインされていません")
	ErrUnknownTransition   = errors.New("不明な状態遷移です")
	ErrBusy                = errors.New("リソースが混み合っています。しばらくしてから再試行してください")
)
