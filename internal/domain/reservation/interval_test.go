package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_Validate(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		courtID string
		startAt time.Time
		endAt   time.Time
		wantErr error
	}{
		{"正常な時間帯", "court-1", base, base.Add(time.Hour), nil},
		{"コートID未指定", "", base, base.Add(time.Hour), ErrCourtIDRequired},
		{"終了が開始と同時刻", "court-1", base, base, ErrInvalidInterval},
		{"終了が開始より前", "court-1", base, base.Add(-time.Hour), ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv := NewInterval(tt.courtID, tt.startAt, tt.endAt)
			err := iv.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestInterval_Overlaps(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	iv := NewInterval("court-1", base, base.Add(2*time.Hour))

	tests := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"完全に重なる", NewInterval("court-1", base, base.Add(2*time.Hour)), true},
		{"部分的に重なる", NewInterval("court-1", base.Add(time.Hour), base.Add(3*time.Hour)), true},
		{"内包される", NewInterval("court-1", base.Add(30*time.Minute), base.Add(time.Hour)), true},
		{"終了と開始が接するだけ", NewInterval("court-1", base.Add(2*time.Hour), base.Add(3*time.Hour)), false},
		{"開始と終了が接するだけ", NewInterval("court-1", base.Add(-time.Hour), base), false},
		{"完全に離れている", NewInterval("court-1", base.Add(5*time.Hour), base.Add(6*time.Hour)), false},
		{"別コートなら重ならない", NewInterval("court-2", base, base.Add(2*time.Hour)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, iv.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(iv))
		})
	}
}

func TestInterval_Overlaps_MidnightCrossing(t *testing.T) {
	// 23:00〜翌01:00 の深夜帯。絶対時刻で判定するため日付またぎでも正しい
	night := NewInterval("court-1",
		time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 2, 1, 0, 0, 0, time.UTC),
	)
	early := NewInterval("court-1",
		time.Date(2026, 9, 2, 0, 30, 0, 0, time.UTC),
		time.Date(2026, 9, 2, 2, 0, 0, 0, time.UTC),
	)
	assert.True(t, night.Overlaps(early))

	nextEvening := NewInterval("court-1",
		time.Date(2026, 9, 2, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 3, 1, 0, 0, 0, time.UTC),
	)
	assert.False(t, night.Overlaps(nextEvening))
}

func TestInterval_Duration(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	iv := NewInterval("court-1", base, base.Add(90*time.Minute))
	assert.Equal(t, 90*time.Minute, iv.Duration())
}
