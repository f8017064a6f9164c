package reservation

import "time"

// Interval はコート上の予約時間帯を表す値オブジェクト
// 開始・終了は絶対時刻であり、[StartAt, EndAt) の半開区間として扱う。
// 終了が翌日になる深夜帯も絶対時刻の比較だけで正しく判定できる
type Interval struct {
	CourtID string
	StartAt time.Time
	EndAt   time.Time
}

// NewInterval は新しい時間帯を作成する
func NewInterval(courtID string, startAt, endAt time.Time) Interval {
	return Interval{CourtID: courtID, StartAt: startAt, EndAt: endAt}
}

// Validate は時間帯の妥当性を検証する
func (iv Interval) Validate() error {
	if iv.CourtID == "" {
		return ErrCourtIDRequired
	}
	if !iv.StartAt.Before(iv.EndAt) {
		return ErrInvalidInterval
	}
	return nil
}

// Overlaps は同一コートの時間帯と交差するかを返す
// 半開区間同士の交差判定なので、終了と開始がちょうど接する場合は交差しない
func (iv Interval) Overlaps(other Interval) bool {
	if iv.CourtID != other.CourtID {
		return false
	}
	return iv.StartAt.Before(other.EndAt) && other.StartAt.Before(iv.EndAt)
}

// Duration は時間帯の長さを返す
func (iv Interval) Duration() time.Duration {
	return iv.EndAt.Sub(iv.StartAt)
}
