package calendar

import (
	"fmt"
	"time"
)

// Config は営業カレンダーの設定を表す
type Config struct {
	// OpenAt は営業開始時刻（"15:04" 形式）
	OpenAt string
	// CloseAt は営業終了時刻（"15:04" 形式、OpenAt より後であること）
	CloseAt string
	// ClosedWeekdays は定休日の曜日
	ClosedWeekdays []time.Weekday
	// Holidays は休業日の日付（"2006-01-02" 形式、Location のローカル日付）
	Holidays []string
	// Location はカレンダーのタイムゾーン（nil の場合は time.Local）
	Location *time.Location
}

// Calendar は営業時間・休業日を表すイミュータブルな値オブジェクト
// 呼び出し側が明示的に渡すスナップショットであり、グローバル状態を持たない
type Calendar struct {
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
	closedDays  map[time.Weekday]struct{}
	holidays    map[string]struct{}
	loc         *time.Location
}

// nextOpenSearchLimit は NextOpen が探索する最大日数
// 設定ミスで全日が休業日でも無限ループしないための上限
const nextOpenSearchLimit = 2 * 366

// New は設定からカレンダーを作成する
func New(cfg Config) (*Calendar, error) {
	openHour, openMinute, err := parseTimeOfDay(cfg.OpenAt)
	if err != nil {
		return nil, fmt.Errorf("営業開始時刻の解析に失敗: %w", err)
	}
	closeHour, closeMinute, err := parseTimeOfDay(cfg.CloseAt)
	if err != nil {
		return nil, fmt.Errorf("営業終了時刻の解析に失敗: %w", err)
	}
	if closeHour*60+closeMinute <= openHour*60+openMinute {
		return nil, ErrInvalidOperatingWindow
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	closedDays := make(map[time.Weekday]struct{}, len(cfg.ClosedWeekdays))
	for _, wd := range cfg.ClosedWeekdays {
		closedDays[wd] = struct{}{}
	}

	holidays := make(map[string]struct{}, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("休業日の解析に失敗 (%s): %w", h, err)
		}
		holidays[h] = struct{}{}
	}

	return &Calendar{
		openHour:    openHour,
		openMinute:  openMinute,
		closeHour:   closeHour,
		closeMinute: closeMinute,
		closedDays:  closedDays,
		holidays:    holidays,
		loc:         loc,
	}, nil
}

// IsOperating は指定時刻が営業時間内かを返す
// 営業時間は [開始, 終了) の半開区間として扱う
func (c *Calendar) IsOperating(t time.Time) bool {
	local := t.In(c.loc)
	if !c.isBusinessDay(local) {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	open := c.openHour*60 + c.openMinute
	close := c.closeHour*60 + c.closeMinute
	return minutes >= open && minutes < close
}

// NextOpen は指定時刻より後で最初に訪れる営業開始時刻を返す
// 定休日・休業日はスキップする
func (c *Calendar) NextOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i < nextOpenSearchLimit; i++ {
		candidate := c.openOn(day)
		if candidate.After(local) && c.isBusinessDay(candidate) {
			return candidate
		}
		day = day.AddDate(0, 0, 1)
	}
	// 探索上限に達した場合は翌日の開始時刻を返す（設定異常）
	return c.openOn(local.AddDate(0, 0, 1))
}

// isBusinessDay は指定日が営業日（定休日・休業日でない）かを返す
func (c *Calendar) isBusinessDay(t time.Time) bool {
	if _, closed := c.closedDays[t.Weekday()]; closed {
		return false
	}
	if _, holiday := c.holidays[t.Format("2006-01-02")]; holiday {
		return false
	}
	return true
}

// openOn は指定日の営業開始時刻を返す
func (c *Calendar) openOn(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.openHour, c.openMinute, 0, 0, c.loc)
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
