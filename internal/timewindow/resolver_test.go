package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hongKong(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)
	return loc
}

func TestResolve_BaseInterval(t *testing.T) {
	loc := hongKong(t)
	r, err := NewResolver(8*time.Hour, 24*time.Hour, "", loc)
	require.NoError(t, err)

	now := time.Date(2025, 2, 1, 16, 0, 0, 0, loc)
	w := r.Resolve(now, time.Time{})
	assert.True(t, w.Start.Before(w.End))
	assert.Equal(t, now, w.End)
	assert.Equal(t, 8*time.Hour, w.Duration())
	assert.Equal(t, 8, w.Hours())
	assert.Equal(t, "02/01 08:00 - 02/01 16:00 (Asia/Hong_Kong)", w.Label(loc))
}

func TestResolve_LastRun(t *testing.T) {
	loc := hongKong(t)
	r, err := NewResolver(8*time.Hour, 24*time.Hour, "", loc)
	require.NoError(t, err)
	now := time.Date(2025, 2, 1, 16, 0, 0, 0, loc)

	tests := []struct {
		name    string
		lastRun time.Time
		want    time.Duration
	}{
		{"上次运行在回看上限内", now.Add(-11 * time.Hour), 11 * time.Hour},
		{"上次运行过旧", now.Add(-30 * time.Hour), 8 * time.Hour},
		{"上次运行恰好在上限边界", now.Add(-24 * time.Hour), 8 * time.Hour},
		{"上次运行在未来", now.Add(time.Hour), 8 * time.Hour},
		{"上次运行等于 now", now, 8 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := r.Resolve(now, tt.lastRun)
			assert.True(t, w.Start.Before(w.End))
			assert.Equal(t, tt.want, w.Duration())
		})
	}
}

func TestResolve_BaseClampedToMaxLookback(t *testing.T) {
	r, err := NewResolver(48*time.Hour, 24*time.Hour, "", time.UTC)
	require.NoError(t, err)
	w := r.Resolve(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	assert.Equal(t, 24*time.Hour, w.Duration())
}

func TestResolve_Schedule(t *testing.T) {
	loc := hongKong(t)
	// 每天 09:00、13:00、18:00 运行
	r, err := NewResolver(8*time.Hour, 24*time.Hour, "0 9,13,18 * * *", loc)
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"早上第一次覆盖整个夜间", time.Date(2025, 2, 1, 9, 0, 0, 0, loc), 15 * time.Hour},
		{"启动略有延迟", time.Date(2025, 2, 1, 13, 3, 0, 0, loc), 4 * time.Hour},
		{"启动略早于计划时间", time.Date(2025, 2, 1, 17, 57, 0, 0, loc), 5 * time.Hour},
		{"两次计划之间手动运行", time.Date(2025, 2, 1, 11, 0, 0, 0, loc), 15 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := r.Resolve(tt.now, time.Time{})
			assert.Equal(t, tt.want, w.Duration())
			assert.Equal(t, tt.now, w.End)
		})
	}
}

func TestResolve_ScheduleGapClamped(t *testing.T) {
	// 每天一次，间隔 24h，被截断为 12h
	r, err := NewResolver(8*time.Hour, 12*time.Hour, "0 9 * * *", time.UTC)
	require.NoError(t, err)
	w := r.Resolve(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), time.Time{})
	assert.Equal(t, 12*time.Hour, w.Duration())
}

func TestResolve_WeeklyScheduleClamped(t *testing.T) {
	r, err := NewResolver(8*time.Hour, 24*time.Hour, "0 9 * * 1", time.UTC)
	require.NoError(t, err)
	w := r.Resolve(time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC), time.Time{})
	assert.Equal(t, 24*time.Hour, w.Duration())
}

func TestResolve_ScheduleTooSparseFallsBackToBase(t *testing.T) {
	// 每年一次，推算范围内找不到两次触发
	r, err := NewResolver(8*time.Hour, 24*time.Hour, "0 9 1 1 *", time.UTC)
	require.NoError(t, err)
	w := r.Resolve(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), time.Time{})
	assert.Equal(t, 8*time.Hour, w.Duration())
}

func TestNewResolver_Invalid(t *testing.T) {
	_, err := NewResolver(0, time.Hour, "", time.UTC)
	assert.Error(t, err)
	_, err = NewResolver(time.Hour, 0, "", time.UTC)
	assert.Error(t, err)
	_, err = NewResolver(time.Hour, time.Hour, "not cron", time.UTC)
	assert.Error(t, err)
}
