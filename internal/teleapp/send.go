package teleapp

import (
	"context"
	"fmt"

	"github.com/fachebot/topic-digest/internal/logger"

	"github.com/zelenin/go-tdlib/client"
)

// SendToSelf 发送到收藏夹（与自己的私聊）
func (app *TeleApp) SendToSelf(ctx context.Context, html, plain string) error {
	chatID, err := app.savedMessagesChat(ctx)
	if err != nil {
		return err
	}
	return app.sendMessage(ctx, chatID, 0, html, plain)
}

// ReplyInTopic 发送到目标群组的指定话题
func (app *TeleApp) ReplyInTopic(ctx context.Context, topicID int64, html, plain string) error {
	if app.targetChatID == 0 {
		return fmt.Errorf("目标群组尚未解析")
	}
	return app.sendMessage(ctx, app.targetChatID, topicID, html, plain)
}

// SendText 发送纯文本到任意聊天
func (app *TeleApp) SendText(ctx context.Context, chatID int64, text string) error {
	return app.sendMessage(ctx, chatID, 0, "", text)
}

// SavedMessagesChatID 收藏夹的聊天ID
func (app *TeleApp) SavedMessagesChatID(ctx context.Context) (int64, error) {
	return app.savedMessagesChat(ctx)
}

func (app *TeleApp) savedMessagesChat(ctx context.Context) (int64, error) {
	if app.savedChatID != 0 {
		return app.savedChatID, nil
	}
	if app.user == nil {
		return 0, fmt.Errorf("尚未登录")
	}

	c, err := call(ctx, app.timeout, func() (*client.Chat, error) {
		return app.tdClient.CreatePrivateChat(&client.CreatePrivateChatRequest{UserId: app.user.Id})
	})
	if err != nil {
		return 0, fmt.Errorf("打开收藏夹失败: %w", err)
	}
	app.savedChatID = c.Id
	return c.Id, nil
}

func (app *TeleApp) sendMessage(ctx context.Context, chatID, threadID int64, html, plain string) error {
	formatted := app.formatText(html, plain)
	_, err := call(ctx, app.timeout, func() (*client.Message, error) {
		return app.tdClient.SendMessage(&client.SendMessageRequest{
			ChatId:          chatID,
			MessageThreadId: threadID,
			InputMessageContent: &client.InputMessageText{
				Text: formatted,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("发送消息到 %d 失败: %w", chatID, err)
	}
	return nil
}

// formatText 使用 TDLib 的 HTML 解析能力，将 HTML 文本转换为带实体的 FormattedText，失败时回退为纯文本
func (app *TeleApp) formatText(html, plain string) *client.FormattedText {
	if html == "" {
		return &client.FormattedText{Text: plain}
	}

	formatted, err := client.ParseTextEntities(&client.ParseTextEntitiesRequest{
		Text:      html,
		ParseMode: &client.TextParseModeHTML{},
	})
	if err != nil {
		logger.Warnf("[TeleApp] 解析 HTML 文本失败，回退为纯文本发送: %v", err)
		return &client.FormattedText{Text: plain}
	}
	return formatted
}
