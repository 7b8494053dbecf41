package runner

import (
	"context"
	"fmt"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/fetcher"
	"github.com/fachebot/topic-digest/internal/logger"
	"github.com/fachebot/topic-digest/internal/summarizer"
	"github.com/fachebot/topic-digest/internal/topics"
)

// TopicSource 列出目标群组的话题
type TopicSource interface {
	ListTopics(ctx context.Context, limit int) ([]chat.Topic, error)
}

type MessageFetcher interface {
	Fetch(ctx context.Context, topic chat.Topic, window chat.Window) (fetcher.Result, error)
}

type TopicSummarizer interface {
	SummarizeTopic(ctx context.Context, rs *summarizer.RunState, topic chat.Topic, window chat.Window, fetched fetcher.Result) (summarizer.FinalDigest, []summarizer.SummaryResult, error)
}

// Dispatcher 发送摘要与空运行说明
type Dispatcher interface {
	Deliver(ctx context.Context, topic chat.Topic, content string) error
	NotifyEmptyRun(ctx context.Context, hours int, noActivity, failed []string) error
	TestMode() bool
}

type Options struct {
	TopicLimit int
	Filter     topics.Filter
}

type Runner struct {
	source     TopicSource
	fetcher    MessageFetcher
	summarizer TopicSummarizer
	dispatcher Dispatcher
	state      *summarizer.RunState
	opts       Options
}

func NewRunner(
	source TopicSource,
	fetcher MessageFetcher,
	summarizer TopicSummarizer,
	dispatcher Dispatcher,
	state *summarizer.RunState,
	opts Options,
) *Runner {
	return &Runner{
		source:     source,
		fetcher:    fetcher,
		summarizer: summarizer,
		dispatcher: dispatcher,
		state:      state,
		opts:       opts,
	}
}

// Run 依次处理每个话题。单个话题失败只记录在报告中，
// 只有话题列表获取失败或 ctx 被取消时返回错误
func (r *Runner) Run(ctx context.Context, window chat.Window) (*Report, error) {
	report := &Report{Window: window}

	all, err := r.source.ListTopics(ctx, r.opts.TopicLimit)
	if err != nil {
		return report, fmt.Errorf("获取话题列表失败: %w", err)
	}
	if len(all) == 0 {
		logger.Infof("[Runner] 目标群组没有话题")
		return report, nil
	}

	selected := topics.Enumerate(all, r.opts.Filter)
	if len(selected) == 0 {
		logger.Infof("[Runner] 没有匹配过滤条件的话题, 共 %d 个话题", len(all))
		return report, nil
	}
	logger.Infof("[Runner] 找到 %d 个话题需要处理", len(selected))

	for _, topic := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := r.processTopic(ctx, topic, window)
		if err != nil {
			return report, err
		}
		report.Topics = append(report.Topics, result)
	}

	if report.Count(OutcomeSent) == 0 && r.dispatcher.TestMode() {
		err := r.dispatcher.NotifyEmptyRun(ctx, window.Hours(),
			report.titles(OutcomeNoActivity), report.titles(OutcomeFetchFailed, OutcomeSendFailed))
		if err != nil {
			logger.Errorf("[Runner] 发送空运行说明失败: %v", err)
		} else {
			report.NoticeSent = true
		}
	}

	if r.state != nil {
		logger.Infof("[Runner] LLM 请求 %d 次, 可重试错误 %d 次, 配额错误 %d 次, 拦截 %d 次, 回退 %d 次, key 轮换 %d 次",
			r.state.Requests, r.state.TransientFailures, r.state.QuotaErrors, r.state.BlockedResponses, r.state.Fallbacks, r.state.Keys.Rotations())
	}
	return report, nil
}

// processTopic 阶段一生成摘要，阶段二发送。返回错误表示运行需要终止
func (r *Runner) processTopic(ctx context.Context, topic chat.Topic, window chat.Window) (TopicReport, error) {
	result := TopicReport{Topic: topic}

	fetched, err := r.fetcher.Fetch(ctx, topic, window)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		logger.Errorf("[Runner] %v", err)
		result.Outcome = OutcomeFetchFailed
		result.Err = err
		return result, nil
	}
	if len(fetched.Messages) == 0 {
		logger.Infof("[Runner] 话题 %q 在窗口内没有新消息", topic.Title)
		result.Outcome = OutcomeNoActivity
		return result, nil
	}

	digest, _, err := r.summarizer.SummarizeTopic(ctx, r.state, topic, window, fetched)
	if err != nil {
		return result, err
	}
	result.Status = digest.Status
	result.MessageCount = digest.MessageCount
	result.Content = digest.Text()

	if err := r.dispatcher.Deliver(ctx, topic, result.Content); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		logger.Errorf("[Runner] 话题 %q 摘要发送失败: %v", topic.Title, err)
		result.Outcome = OutcomeSendFailed
		result.Err = err
		return result, nil
	}
	result.Outcome = OutcomeSent
	return result, nil
}
