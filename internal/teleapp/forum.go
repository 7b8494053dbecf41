package teleapp

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/logger"

	"github.com/zelenin/go-tdlib/client"
)

const (
	topicPageSize   = 100
	historyPageSize = 100
	maxHistoryPages = 50
)

// ResolveChat 按数字ID或用户名查找聊天
func (app *TeleApp) ResolveChat(ctx context.Context, target config.TargetGroup) (*client.Chat, error) {
	if target.Username == "" {
		return app.getChat(ctx, target.ChatID)
	}

	c, err := call(ctx, app.timeout, func() (*client.Chat, error) {
		return app.tdClient.SearchPublicChat(&client.SearchPublicChatRequest{Username: target.Username})
	})
	if err != nil {
		return nil, err
	}

	app.chatsMu.Lock()
	app.chatsCache[c.Id] = c
	app.chatsMu.Unlock()
	return c, nil
}

// ResolveTarget 解析目标群组，要求是开启了话题功能的超级群组
func (app *TeleApp) ResolveTarget(ctx context.Context, target config.TargetGroup) (*client.Chat, error) {
	c, err := app.ResolveChat(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("查找目标群组失败: %w", err)
	}

	sg, ok := c.Type.(*client.ChatTypeSupergroup)
	if !ok || sg.IsChannel {
		return nil, fmt.Errorf("目标 %s[%d] 不是超级群组", c.Title, c.Id)
	}
	supergroup, err := call(ctx, app.timeout, func() (*client.Supergroup, error) {
		return app.tdClient.GetSupergroup(&client.GetSupergroupRequest{SupergroupId: sg.SupergroupId})
	})
	if err != nil {
		return nil, fmt.Errorf("获取超级群组信息失败: %w", err)
	}
	if !supergroup.IsForum {
		return nil, fmt.Errorf("目标群组 %s[%d] 未开启话题功能", c.Title, c.Id)
	}

	app.targetChatID = c.Id
	logger.Infof("[TeleApp] 目标群组: %s[%d]", c.Title, c.Id)
	return c, nil
}

// ListTopics 分页获取目标群组的话题，最多 limit 个
func (app *TeleApp) ListTopics(ctx context.Context, limit int) ([]chat.Topic, error) {
	topics := make([]chat.Topic, 0)
	seen := make(map[int64]bool)
	req := &client.GetForumTopicsRequest{ChatId: app.targetChatID}

	for len(topics) < limit {
		req.Limit = int32(min(topicPageSize, limit-len(topics)))
		page, err := call(ctx, app.timeout, func() (*client.ForumTopics, error) {
			return app.tdClient.GetForumTopics(req)
		})
		if err != nil {
			return nil, fmt.Errorf("获取话题列表失败: %w", err)
		}

		for _, t := range page.Topics {
			if t == nil || t.Info == nil || seen[t.Info.MessageThreadId] {
				continue
			}
			seen[t.Info.MessageThreadId] = true
			topics = append(topics, chat.Topic{ID: t.Info.MessageThreadId, Title: t.Info.Name})
		}

		if len(page.Topics) == 0 || (page.NextOffsetDate == 0 && page.NextOffsetMessageId == 0 && page.NextOffsetMessageThreadId == 0) {
			break
		}
		req.OffsetDate = page.NextOffsetDate
		req.OffsetMessageId = page.NextOffsetMessageId
		req.OffsetMessageThreadId = page.NextOffsetMessageThreadId
	}

	if len(topics) > limit {
		topics = topics[:limit]
	}
	logger.Infof("[TeleApp] 获取到 %d 个话题", len(topics))
	return topics, nil
}

// FetchHistory 获取话题中 since 之后的消息，按时间从旧到新返回
func (app *TeleApp) FetchHistory(ctx context.Context, topic chat.Topic, since time.Time) ([]chat.RawMessage, error) {
	raw := make([]chat.RawMessage, 0)
	seen := make(map[int64]bool)
	fromID := int64(0)

	for page := 0; page < maxHistoryPages; page++ {
		req := &client.GetMessageThreadHistoryRequest{
			ChatId:        app.targetChatID,
			MessageId:     topic.ID,
			FromMessageId: fromID,
			Limit:         historyPageSize,
		}
		messages, err := call(ctx, app.timeout, func() (*client.Messages, error) {
			return app.tdClient.GetMessageThreadHistory(req)
		})
		if err != nil {
			return nil, err
		}
		if len(messages.Messages) == 0 {
			break
		}

		reachedStart := false
		for _, m := range messages.Messages {
			if m == nil || seen[m.Id] {
				continue
			}
			seen[m.Id] = true

			sentAt := time.Unix(int64(m.Date), 0)
			if sentAt.Before(since) {
				reachedStart = true
				continue
			}
			raw = append(raw, app.toRawMessage(ctx, m, sentAt))
		}

		last := messages.Messages[len(messages.Messages)-1]
		if reachedStart || last == nil || last.Id == fromID {
			break
		}
		fromID = last.Id
		if page == maxHistoryPages-1 {
			logger.Warnf("[TeleApp] 话题 %q 历史消息超过 %d 页, 停止翻页", topic.Title, maxHistoryPages)
		}
	}

	// tdlib 按从新到旧返回
	slices.Reverse(raw)
	return raw, nil
}

func (app *TeleApp) toRawMessage(ctx context.Context, m *client.Message, sentAt time.Time) chat.RawMessage {
	msg := chat.RawMessage{ID: m.Id, Time: sentAt}
	msg.Kind, msg.Text = contentOf(m.Content)
	if msg.Kind == chat.ContentText {
		msg.SenderName, msg.SenderUsername = app.senderOf(ctx, m.SenderId)
	}
	return msg
}

// contentOf 消息内容类型，只有文本消息带内容
func contentOf(content client.MessageContent) (chat.ContentKind, string) {
	switch c := content.(type) {
	case *client.MessageText:
		if c.Text == nil {
			return chat.ContentText, ""
		}
		return chat.ContentText, c.Text.Text
	case *client.MessageSticker, *client.MessageAnimatedEmoji:
		return chat.ContentSticker, ""
	case *client.MessagePhoto, *client.MessageVideo, *client.MessageDocument, *client.MessageAnimation,
		*client.MessageAudio, *client.MessageVoiceNote, *client.MessageVideoNote:
		return chat.ContentMedia, ""
	default:
		return chat.ContentService, ""
	}
}

// senderOf 发送者显示名与用户名，获取失败时使用ID
func (app *TeleApp) senderOf(ctx context.Context, sender client.MessageSender) (string, string) {
	switch s := sender.(type) {
	case *client.MessageSenderUser:
		user, err := app.getUser(ctx, s.UserId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取用户信息失败, id: %d, %v", s.UserId, err)
			return strconv.FormatInt(s.UserId, 10), ""
		}
		name := strings.TrimSpace(user.FirstName + " " + user.LastName)
		username := ""
		if user.Usernames != nil && len(user.Usernames.ActiveUsernames) > 0 {
			username = user.Usernames.ActiveUsernames[0]
		}
		if name == "" && username == "" {
			name = strconv.FormatInt(s.UserId, 10)
		}
		return name, username

	case *client.MessageSenderChat:
		c, err := app.getChat(ctx, s.ChatId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取聊天信息失败, id: %d, %v", s.ChatId, err)
			return strconv.FormatInt(s.ChatId, 10), ""
		}
		return c.Title, ""
	}
	return "", ""
}
