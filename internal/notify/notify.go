package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/logger"
)

const (
	MaxMessageLength = 4000 // Telegram 消息最大长度（按字符计）
	sendAttempts     = 2
)

// Sender 底层发送能力，html 解析失败时使用 plain 发送
type Sender interface {
	SendToSelf(ctx context.Context, html, plain string) error
	ReplyInTopic(ctx context.Context, topicID int64, html, plain string) error
}

type Notifier struct {
	sender     Sender
	testMode   bool
	retryDelay time.Duration
}

// NewNotifier testMode 为 true 时发送到收藏夹，否则回复到话题内
func NewNotifier(sender Sender, testMode bool) *Notifier {
	return &Notifier{
		sender:     sender,
		testMode:   testMode,
		retryDelay: 3 * time.Second,
	}
}

// TestMode 是否为测试模式
func (n *Notifier) TestMode() bool {
	return n.testMode
}

// Deliver 发送一个话题的摘要，超长时拆分为多条
func (n *Notifier) Deliver(ctx context.Context, topic chat.Topic, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	parts := SplitMessage(content)
	for i, part := range parts {
		if err := n.send(ctx, topic, RenderHTML(part), StripMarkdown(part)); err != nil {
			return fmt.Errorf("发送话题 %q 的第 %d/%d 条消息失败: %w", topic.Title, i+1, len(parts), err)
		}
	}

	if n.testMode {
		logger.Infof("[Notify] 已发送话题 %q 的摘要到收藏夹, 共 %d 条", topic.Title, len(parts))
	} else {
		logger.Infof("[Notify] 已回复话题 %q 的摘要, 共 %d 条", topic.Title, len(parts))
	}
	return nil
}

// NotifyEmptyRun 本次运行没有发送任何摘要时，向收藏夹发送说明
func (n *Notifier) NotifyEmptyRun(ctx context.Context, hours int, noActivity, failed []string) error {
	lines := []string{fmt.Sprintf("过去 %d 小时没有发送任何摘要。", hours)}
	if len(noActivity) > 0 {
		lines = append(lines, "无新消息的话题: "+strings.Join(noActivity, ", "))
	}
	if len(failed) > 0 {
		lines = append(lines, "摘要失败的话题: "+strings.Join(failed, ", "))
	}
	content := strings.Join(lines, "\n")

	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = n.sender.SendToSelf(ctx, RenderHTML(content), content); err == nil {
			logger.Infof("[Notify] 已发送空运行说明到收藏夹")
			return nil
		}
		logger.Warnf("[Notify] 发送空运行说明失败 (第 %d/%d 次): %v", attempt, sendAttempts, err)
		if attempt < sendAttempts {
			if waitErr := n.wait(ctx); waitErr != nil {
				return waitErr
			}
		}
	}
	return fmt.Errorf("发送空运行说明失败: %w", err)
}

func (n *Notifier) send(ctx context.Context, topic chat.Topic, html, plain string) error {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if n.testMode {
			err = n.sender.SendToSelf(ctx, html, plain)
		} else {
			err = n.sender.ReplyInTopic(ctx, topic.ID, html, plain)
		}
		if err == nil {
			return nil
		}

		logger.Warnf("[Notify] 话题 %q 发送失败 (第 %d/%d 次): %v", topic.Title, attempt, sendAttempts, err)
		if attempt < sendAttempts {
			if waitErr := n.wait(ctx); waitErr != nil {
				return waitErr
			}
		}
	}
	return err
}

func (n *Notifier) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.retryDelay):
		return nil
	}
}
