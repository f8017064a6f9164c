package pricing

import (
	"time"
)

// Oracle は料金オラクルのインターフェース
// コアは金額計算の中身を知らず、リソースと時間帯に対する金額だけを受け取る
type Oracle interface {
	// Price は指定コート・時間帯の料金を返す
	Price(courtID string, startAt, endAt time.Time) int
}

// HourlyRate は単一時間単価の料金オラクル実装
type HourlyRate struct {
	PerHour int
}

// NewHourlyRate は時間単価ベースのオラクルを作成する
func NewHourlyRate(perHour int) *HourlyRate {
	return &HourlyRate{PerHour: perHour}
}

// Price は分単位で按分した料金を返す
func (h *HourlyRate) Price(courtID string, startAt, endAt time.Time) int {
	minutes := int(endAt.Sub(startAt).Minutes())
	if minutes <= 0 {
		return 0
	}
	return h.PerHour * minutes / 60
}

var _ Oracle = (*HourlyRate)(nil)
