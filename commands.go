//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/logger"
	"github.com/fachebot/topic-digest/internal/runner"
	"github.com/fachebot/topic-digest/internal/teleapp"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "交互式登录 Telegram 并保存会话",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}

			app := teleapp.NewApp(&c.TelegramApp)
			user, err := app.LoginInteractive(teleapp.Options(c)...)
			if err != nil {
				return fmt.Errorf("%w: %w", runner.ErrAuthentication, err)
			}
			defer app.Close()

			logger.Infof("[TeleApp] 用户 <%s %s>(%d) 登录成功, 会话已保存到 %s", user.FirstName, user.LastName, user.Id, c.TelegramApp.DataDir)
			return nil
		},
	}
}

func newSendTestCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "send-test [chat]",
		Short: "发送一条测试消息，默认发送到收藏夹",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}

			app := teleapp.NewApp(&c.TelegramApp)
			if _, err := app.Login(teleapp.Options(c)...); err != nil {
				return fmt.Errorf("%w: %w", runner.ErrAuthentication, err)
			}
			defer app.Close()

			ctx := cmd.Context()
			var chatID int64
			if len(args) == 0 {
				chatID, err = app.SavedMessagesChatID(ctx)
			} else {
				var target config.TargetGroup
				target, err = config.ParseTargetGroup(args[0])
				if err != nil {
					return fmt.Errorf("%w: %w", runner.ErrConfiguration, err)
				}
				chatID, err = resolveChatID(cmd, app, target)
			}
			if err != nil {
				return err
			}

			if err := app.SendText(ctx, chatID, text); err != nil {
				return err
			}
			logger.Infof("[TeleApp] 测试消息已发送到 %d", chatID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "message", "m", "topic-digest 连接测试", "the message to send")
	return cmd
}

func resolveChatID(cmd *cobra.Command, app *teleapp.TeleApp, target config.TargetGroup) (int64, error) {
	c, err := app.ResolveChat(cmd.Context(), target)
	if err != nil {
		return 0, fmt.Errorf("查找聊天失败: %w", err)
	}
	return c.Id, nil
}
