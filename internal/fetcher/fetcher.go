package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/logger"
)

// HistorySource 读取话题历史消息，返回 since 之后的消息，应按时间从旧到新
type HistorySource interface {
	FetchHistory(ctx context.Context, topic chat.Topic, since time.Time) ([]chat.RawMessage, error)
}

// FetchError 单个话题拉取失败，不影响其他话题
type FetchError struct {
	Topic chat.Topic
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("拉取话题 %q(%d) 消息失败: %v", e.Topic.Title, e.Topic.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result 拉取结果。RawCount 为窗口内文本消息截断前的数量
type Result struct {
	Messages  []chat.Message
	RawCount  int
	Truncated bool
}

type Fetcher struct {
	source      HistorySource
	maxMessages int
}

func NewFetcher(source HistorySource, maxMessages int) *Fetcher {
	return &Fetcher{source: source, maxMessages: maxMessages}
}

// Fetch 拉取窗口内的纯文本消息，按时间从旧到新排列。
// 超过上限时丢弃最旧的消息，保证最近的讨论总是被保留。
func (f *Fetcher) Fetch(ctx context.Context, topic chat.Topic, window chat.Window) (Result, error) {
	raw, err := f.source.FetchHistory(ctx, topic, window.Start)
	if err != nil {
		return Result{}, &FetchError{Topic: topic, Err: err}
	}

	messages := make([]chat.Message, 0, len(raw))
	for _, m := range raw {
		if m.Kind != chat.ContentText || strings.TrimSpace(m.Text) == "" {
			continue
		}
		if !window.Contains(m.Time) {
			continue
		}
		messages = append(messages, chat.Message{
			SenderName:     m.SenderName,
			SenderUsername: m.SenderUsername,
			Time:           m.Time,
			Text:           m.Text,
		})
	}

	// 同一秒内的消息保持来源顺序
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Time.Before(messages[j].Time)
	})

	result := Result{Messages: messages, RawCount: len(messages)}
	if f.maxMessages > 0 && len(messages) > f.maxMessages {
		dropped := len(messages) - f.maxMessages
		result.Messages = messages[dropped:]
		result.Truncated = true
		logger.Warnf("[Fetcher] 话题 %q 消息数 %d 超过上限 %d, 丢弃最早的 %d 条", topic.Title, len(messages), f.maxMessages, dropped)
	}

	logger.Debugf("[Fetcher] 话题 %q: 原始 %d 条, 保留文本消息 %d 条", topic.Title, len(raw), len(result.Messages))
	return result, nil
}
