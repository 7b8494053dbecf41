package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/llm"
	"github.com/fachebot/topic-digest/internal/logger"
	"golang.org/x/time/rate"
)

type state int

const (
	statePending state = iota
	stateRequesting
	stateRetrying
	stateExhausted
	stateBlocked
	stateFallback
	stateSuccess
	stateFailed
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRequesting:
		return "requesting"
	case stateRetrying:
		return "retrying"
	case stateExhausted:
		return "exhausted"
	case stateBlocked:
		return "blocked"
	case stateFallback:
		return "fallback"
	case stateSuccess:
		return "success"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// outcome 一次请求的结果。outcomeNone 用于不需要请求的状态推进
type outcome int

const (
	outcomeNone outcome = iota
	outcomeOK
	outcomeTransient
	outcomeBlocked
)

// machine 单个 chunk 的状态机
type machine struct {
	state        state
	attempts     int // 完整上下文的请求次数
	maxAttempts  int
	fallbackUsed bool
}

func newMachine(maxAttempts int) machine {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if maxAttempts > config.MaxAttemptsLimit {
		maxAttempts = config.MaxAttemptsLimit
	}
	return machine{state: statePending, maxAttempts: maxAttempts}
}

func (m machine) terminal() bool {
	return m.state == stateSuccess || m.state == stateFailed
}

// transition 纯函数，根据当前状态和请求结果计算下一个状态
func transition(m machine, o outcome) machine {
	switch m.state {
	case statePending:
		m.state = stateRequesting

	case stateRequesting, stateRetrying:
		if o == outcomeNone {
			return m
		}
		m.attempts++
		switch o {
		case outcomeOK:
			m.state = stateSuccess
		case outcomeBlocked:
			m.state = stateBlocked
		default:
			if m.attempts < m.maxAttempts {
				m.state = stateRetrying
			} else {
				m.state = stateExhausted
			}
		}

	case stateExhausted, stateBlocked:
		// 回退每个 chunk 只有一次
		if m.fallbackUsed {
			m.state = stateFailed
		} else {
			m.state = stateFallback
			m.fallbackUsed = true
		}

	case stateFallback:
		switch o {
		case outcomeNone:
			return m
		case outcomeOK:
			m.state = stateSuccess
		default:
			m.state = stateFailed
		}
	}
	return m
}

// RunState 整个运行期间共享的 key 游标与计数器，只增不减
type RunState struct {
	Keys              *llm.KeyPool
	Requests          int
	TransientFailures int
	QuotaErrors       int
	BlockedResponses  int
	Fallbacks         int
}

func NewRunState(keys *llm.KeyPool) *RunState {
	return &RunState{Keys: keys}
}

// EngineOptions 摘要引擎参数
type EngineOptions struct {
	MaxAttempts       int
	FallbackMessages  int
	RetryInterval     time.Duration // 首次重试等待
	MaxRetryInterval  time.Duration
	CallTimeout       time.Duration
	RequestsPerMinute int
	VIPName           string
	Language          string
	Temperature       float32
	MaxOutputTokens   int
	Location          *time.Location
}

type Engine struct {
	generator  llm.Generator
	opts       EngineOptions
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
}

func NewEngine(generator llm.Generator, opts EngineOptions) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxRetryInterval <= 0 {
		opts.MaxRetryInterval = time.Minute
	}

	e := &Engine{generator: generator, opts: opts}
	if opts.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	e.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = opts.RetryInterval
		b.Multiplier = 2
		b.RandomizationFactor = 0.2
		b.MaxInterval = opts.MaxRetryInterval
		return b
	}
	return e
}

// TopicInfo chunk 所属话题的上下文
type TopicInfo struct {
	Title  string
	Window chat.Window
}

// attemptResult 一次请求（含 key 轮换）的结果
type attemptResult struct {
	outcome outcome
	text    string
	err     error
}

// Summarize 为单个 chunk 生成摘要。只有 ctx 被取消时返回错误，其余失败体现在 Status 中
func (e *Engine) Summarize(ctx context.Context, rs *RunState, topic TopicInfo, chunk chat.Chunk) (SummaryResult, error) {
	result := SummaryResult{Index: chunk.Index, Total: chunk.Total}

	full := e.request(topic, chunk, chunk.Messages, false)
	reduced := chunk.Messages
	if n := e.opts.FallbackMessages; n > 0 && len(reduced) > n {
		reduced = reduced[len(reduced)-n:]
	}

	bo := e.newBackOff()
	bo.Reset()

	var last attemptResult
	m := transition(newMachine(e.opts.MaxAttempts), outcomeNone)
	for !m.terminal() {
		switch m.state {
		case stateRetrying:
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = e.opts.MaxRetryInterval
			}
			logger.Debugf("[Summarizer] 话题 %q 第 %d/%d 段: %v 后重试 (%d/%d)", topic.Title, chunk.Index, chunk.Total, wait, m.attempts+1, m.maxAttempts)
			if err := sleep(ctx, wait); err != nil {
				return result, err
			}
			fallthrough

		case stateRequesting:
			var err error
			last, err = e.call(ctx, rs, full)
			if err != nil {
				return result, err
			}
			result.Attempts++
			m = transition(m, last.outcome)

		case stateExhausted, stateBlocked:
			logger.Warnf("[Summarizer] 话题 %q 第 %d/%d 段%s, 使用最近 %d 条消息回退重试: %v",
				topic.Title, chunk.Index, chunk.Total, failureLabel(m.state), len(reduced), last.err)
			rs.Fallbacks++
			m = transition(m, outcomeNone)

		case stateFallback:
			var err error
			last, err = e.call(ctx, rs, e.request(topic, chunk, reduced, true))
			if err != nil {
				return result, err
			}
			result.Attempts++
			m = transition(m, last.outcome)
		}
	}

	switch {
	case m.state == stateFailed:
		result.Status = StatusBlocked
		if last.err != nil {
			result.Reason = last.err.Error()
		}
		logger.Errorf("[Summarizer] 话题 %q 第 %d/%d 段回退后仍失败: %s", topic.Title, chunk.Index, chunk.Total, result.Reason)
		return result, nil
	case m.fallbackUsed:
		result.Status = StatusFallback
		result.Reason = fmt.Sprintf("使用最后 %d 条消息", len(reduced))
	default:
		result.Status = StatusSuccess
	}

	result.Text, result.HasVIP = enforceVIP(last.text, chunk, e.opts.VIPName, e.opts.Location)
	logger.Infof("[Summarizer] 话题 %q 第 %d/%d 段摘要完成, 状态: %s, 请求 %d 次", topic.Title, chunk.Index, chunk.Total, result.Status, result.Attempts)
	return result, nil
}

func (e *Engine) request(topic TopicInfo, chunk chat.Chunk, messages []chat.Message, reduced bool) llm.Request {
	return llm.Request{
		SystemInstruction: SystemInstruction,
		Prompt: buildPrompt(promptInput{
			TopicTitle: topic.Title,
			Window:     topic.Window,
			Location:   e.opts.Location,
			Part:       chunk.Index,
			Total:      chunk.Total,
			Language:   e.opts.Language,
			VIPName:    e.opts.VIPName,
			Messages:   messages,
			Reduced:    reduced,
		}),
		Temperature:     e.opts.Temperature,
		MaxOutputTokens: e.opts.MaxOutputTokens,
	}
}

// call 发送一次请求。遇到配额错误时轮换 key 立即重发，不计入重试次数；
// 所有 key 都试过后本次请求按可重试错误处理
func (e *Engine) call(ctx context.Context, rs *RunState, req llm.Request) (attemptResult, error) {
	tried := 0
	for {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return attemptResult{}, err
			}
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.opts.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
		}
		text, err := e.generator.Generate(callCtx, rs.Keys.Current(), req)
		cancel()
		rs.Requests++

		if err == nil {
			return attemptResult{outcome: outcomeOK, text: text}, nil
		}
		if ctx.Err() != nil {
			return attemptResult{}, ctx.Err()
		}

		switch {
		case errors.Is(err, llm.ErrBlocked):
			rs.BlockedResponses++
			return attemptResult{outcome: outcomeBlocked, err: err}, nil

		case errors.Is(err, llm.ErrQuota):
			rs.QuotaErrors++
			tried++
			if tried < rs.Keys.Len() {
				from := rs.Keys.Index()
				rs.Keys.Rotate()
				logger.Warnf("[LLM] 第 %d 个 key 配额耗尽, 切换到第 %d 个", from+1, rs.Keys.Index()+1)
				continue
			}
			logger.Warnf("[LLM] 所有 %d 个 key 配额耗尽", rs.Keys.Len())
			rs.TransientFailures++
			return attemptResult{outcome: outcomeTransient, err: err}, nil

		default:
			rs.TransientFailures++
			logger.Warnf("[LLM] 请求失败: %v", err)
			return attemptResult{outcome: outcomeTransient, err: err}, nil
		}
	}
}

func failureLabel(s state) string {
	if s == stateBlocked {
		return "被内容策略拦截"
	}
	return "重试耗尽"
}

// sleep 等待指定时间，ctx 取消时提前返回
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
