package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCalendar(t *testing.T) *Calendar {
	cal, err := New(Config{
		OpenAt:         "08:00",
		CloseAt:        "17:00",
		ClosedWeekdays: []time.Weekday{time.Sunday},
		Holidays:       []string{"2026-09-23"},
		Location:       time.UTC,
	})
	require.NoError(t, err)
	return cal
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"開始時刻の形式が不正", Config{OpenAt: "8am", CloseAt: "17:00"}},
		{"終了時刻の形式が不正", Config{OpenAt: "08:00", CloseAt: "5pm"}},
		{"終了が開始より前", Config{OpenAt: "17:00", CloseAt: "08:00"}},
		{"終了が開始と同時刻", Config{OpenAt: "08:00", CloseAt: "08:00"}},
		{"休業日の形式が不正", Config{OpenAt: "08:00", CloseAt: "17:00", Holidays: []string{"9/23"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCalendar_IsOperating(t *testing.T) {
	cal := createTestCalendar(t)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		// 2026-09-01 は火曜日
		{"営業時間内", time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), true},
		{"営業開始ちょうど", time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC), true},
		{"営業終了ちょうどは営業時間外", time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC), false},
		{"営業終了の1分前", time.Date(2026, 9, 1, 16, 59, 0, 0, time.UTC), true},
		{"早朝は営業時間外", time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC), false},
		{"定休日（日曜）", time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC), false},
		{"休業日", time.Date(2026, 9, 23, 10, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsOperating(tt.at))
		})
	}
}

func TestCalendar_NextOpen(t *testing.T) {
	cal := createTestCalendar(t)

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			"営業時間内なら翌営業日の開始時刻",
			time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			"閉店後なら翌営業日の開始時刻",
			time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			"開店前なら当日の開始時刻",
			time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			// 2026-09-05 は土曜日、翌日の日曜は定休日
			"定休日をスキップする",
			time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC),
		},
		{
			// 2026-09-23 は休業日（水曜）
			"休業日をスキップする",
			time.Date(2026, 9, 22, 18, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 24, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.NextOpen(tt.from))
		})
	}
}

func TestPaymentDeadline(t *testing.T) {
	cal := createTestCalendar(t)

	t.Run("営業時間内なら1時間後", func(t *testing.T) {
		now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, now.Add(time.Hour), PaymentDeadline(now, cal))
	})

	t.Run("閉店後なら翌営業開始の1時間後", func(t *testing.T) {
		now := time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)
		want := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, want, PaymentDeadline(now, cal))
	})

	t.Run("土曜の夜の申込みは月曜朝基準の期限になる", func(t *testing.T) {
		now := time.Date(2026, 9, 5, 22, 0, 0, 0, time.UTC)
		want := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, want, PaymentDeadline(now, cal))
	})

	t.Run("期限は常に基準時刻より後になる", func(t *testing.T) {
		times := []time.Time{
			time.Date(2026, 9, 1, 7, 59, 0, 0, time.UTC),
			time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 1, 16, 59, 0, 0, time.UTC),
			time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 6, 12, 0, 0, 0, time.UTC),
		}
		for _, now := range times {
			assert.True(t, PaymentDeadline(now, cal).After(now), "now=%v", now)
		}
	})
}
