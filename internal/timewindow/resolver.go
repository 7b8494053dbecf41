package timewindow

import (
	"fmt"
	"time"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/robfig/cron/v3"
)

// launchTolerance 外部调度器启动的延迟容忍，计划时间略晚于 now 也算本次触发
const launchTolerance = 5 * time.Minute

// scheduleSpan 向前推算计划触发时间的范围，覆盖每周一次的计划
const scheduleSpan = 8 * 24 * time.Hour

// maxFirings 推算计划触发时间时的迭代上限
const maxFirings = 20000

type Resolver struct {
	base        time.Duration
	maxLookback time.Duration
	schedule    cron.Schedule
	loc         *time.Location
}

// NewResolver 创建时间窗口解析器，schedule 为空时使用固定的 base 回看时长
func NewResolver(base, maxLookback time.Duration, schedule string, loc *time.Location) (*Resolver, error) {
	if base <= 0 {
		return nil, fmt.Errorf("回看时长必须大于 0")
	}
	if maxLookback <= 0 {
		return nil, fmt.Errorf("最大回看时长必须大于 0")
	}
	if loc == nil {
		loc = time.UTC
	}

	r := &Resolver{base: base, maxLookback: maxLookback, loc: loc}
	if schedule != "" {
		sched, err := cron.ParseStandard(schedule)
		if err != nil {
			return nil, fmt.Errorf("解析 cron 表达式失败: %w", err)
		}
		r.schedule = sched
	}
	return r, nil
}

// Resolve 计算 [Start, End) 区间，End 总是 now。
// lastRun 为零值表示没有上次运行记录；上次运行时间在 (now-maxLookback, now) 内时直接作为起点。
func (r *Resolver) Resolve(now, lastRun time.Time) chat.Window {
	now = now.In(r.loc)
	if !lastRun.IsZero() && lastRun.Before(now) && lastRun.After(now.Add(-r.maxLookback)) {
		return chat.Window{Start: lastRun.In(r.loc), End: now}
	}

	interval := r.Interval(now)
	return chat.Window{Start: now.Add(-interval), End: now}
}

// Interval 返回本次运行的回看时长，已按 maxLookback 截断
func (r *Resolver) Interval(now time.Time) time.Duration {
	interval := r.base
	if r.schedule != nil {
		if gap, ok := r.scheduleGap(now.In(r.loc)); ok {
			interval = gap
		}
	}
	if interval > r.maxLookback {
		interval = r.maxLookback
	}
	return interval
}

// scheduleGap 返回最近两次计划触发时间（不晚于 now+launchTolerance）的间隔，
// 这样凌晨长间隔后的第一次运行会覆盖整个夜间
func (r *Resolver) scheduleGap(now time.Time) (time.Duration, bool) {
	limit := now.Add(launchTolerance)
	var prev, last time.Time
	t := now.Add(-scheduleSpan)
	for i := 0; i < maxFirings; i++ {
		t = r.schedule.Next(t)
		if t.IsZero() || t.After(limit) {
			break
		}
		prev, last = last, t
	}
	if prev.IsZero() || last.IsZero() {
		return 0, false
	}
	gap := last.Sub(prev)
	if gap <= 0 {
		return 0, false
	}
	return gap, true
}
