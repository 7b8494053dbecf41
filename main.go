//go:build linux
// +build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/fetcher"
	"github.com/fachebot/topic-digest/internal/logger"
	"github.com/fachebot/topic-digest/internal/model"
	"github.com/fachebot/topic-digest/internal/notify"
	"github.com/fachebot/topic-digest/internal/runner"
	"github.com/fachebot/topic-digest/internal/summarizer"
	"github.com/fachebot/topic-digest/internal/svc"
	"github.com/fachebot/topic-digest/internal/teleapp"
	"github.com/fachebot/topic-digest/internal/timewindow"
	"github.com/fachebot/topic-digest/internal/topics"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "topic-digest",
		Short:         "总结 Telegram 论坛群组各话题最近的讨论",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "etc/config.yaml", "the config file")
	rootCmd.AddCommand(newLoginCmd(), newSendTestCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Errorf("运行失败, %v", err)
		os.Exit(runner.ExitCode(err))
	}
}

func loadConfig() (*config.Config, error) {
	c, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runner.ErrConfiguration, err)
	}
	logger.Setup(c.Log.Dir, c.Log.Level)
	return c, nil
}

// login 使用已保存的会话登录并解析目标群组
func login(ctx context.Context, c *config.Config) (*teleapp.TeleApp, error) {
	target, err := config.ParseTargetGroup(c.TelegramApp.TargetGroup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runner.ErrConfiguration, err)
	}

	app := teleapp.NewApp(&c.TelegramApp)
	user, err := app.Login(teleapp.Options(c)...)
	if err != nil {
		if errors.Is(err, teleapp.ErrNotAuthorized) {
			err = fmt.Errorf("%w, 请先执行 login 子命令", err)
		}
		return nil, fmt.Errorf("%w: %w", runner.ErrAuthentication, err)
	}
	logger.Infof("[TeleApp] 用户 <%s %s>(%d) 登录成功", user.FirstName, user.LastName, user.Id)

	if _, err := app.ResolveTarget(ctx, target); err != nil {
		app.Close()
		return nil, fmt.Errorf("%w: %w", runner.ErrAuthentication, err)
	}
	return app, nil
}

func runDigest(ctx context.Context) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}

	// 创建服务上下文
	svcCtx, err := svc.NewServiceContext(c)
	if err != nil {
		return fmt.Errorf("%w: %w", runner.ErrConfiguration, err)
	}
	defer svcCtx.Close()

	loc := svcCtx.Location
	resolver, err := timewindow.NewResolver(
		time.Duration(c.Digest.IntervalHours)*time.Hour,
		time.Duration(c.Digest.MaxLookbackHours)*time.Hour,
		c.Digest.Schedule,
		loc,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", runner.ErrConfiguration, err)
	}

	app, err := login(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warnf("[TeleApp] 关闭失败, %v", err)
		}
	}()

	window := resolver.Resolve(time.Now(), lastRunTime(ctx, svcCtx))
	logger.Infof("[Runner] 时间窗口: %s", window.Label(loc))

	var run *model.Run
	if svcCtx.RunModel != nil {
		run, err = svcCtx.RunModel.Create(ctx, window.Start, window.End)
		if err != nil {
			logger.Warnf("[Runner] 创建运行记录失败: %v", err)
		}
	}

	engine := summarizer.NewEngine(svcCtx.Generator, summarizer.EngineOptions{
		MaxAttempts:       c.Digest.MaxAttempts,
		FallbackMessages:  c.Digest.FallbackMessages,
		RetryInterval:     time.Duration(c.Digest.RetryInterval) * time.Second,
		MaxRetryInterval:  time.Minute,
		CallTimeout:       time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		RequestsPerMinute: c.LLM.RequestsPerMinute,
		VIPName:           c.Digest.VIPName,
		Language:          c.Digest.OutputLanguage,
		Temperature:       c.LLM.Temperature,
		MaxOutputTokens:   c.LLM.MaxOutputTokens,
		Location:          loc,
	})
	summarizerInstance := summarizer.NewSummarizer(engine, summarizer.NewCombiner(c.Digest.VIPName, loc), c.Digest.ChunkSize)
	notifierInstance := notify.NewNotifier(app, c.Digest.TestMode)

	runnerInstance := runner.NewRunner(
		app,
		fetcher.NewFetcher(app, c.Digest.MaxMessagesPerTopic),
		summarizerInstance,
		notifierInstance,
		summarizer.NewRunState(svcCtx.Keys),
		runner.Options{
			TopicLimit: c.Digest.TopicLimit,
			Filter: topics.Filter{
				Include:         c.Digest.TopicFilter,
				Exclude:         c.Digest.ExcludeTopics,
				CaseInsensitive: c.Digest.FilterCaseInsensitive,
			},
		},
	)

	report, runErr := runnerInstance.Run(ctx, window)
	report.Log()
	recordRun(svcCtx, run, report, runErr)
	return runErr
}

// lastRunTime LAST_RUN 优先，其次使用运行记录中最近一次完成的窗口结束时间
func lastRunTime(ctx context.Context, svcCtx *svc.ServiceContext) time.Time {
	if raw := svcCtx.Config.Digest.LastRun; raw != "" {
		t, err := config.ParseTimestamp(raw)
		if err == nil {
			return t
		}
	}
	if svcCtx.RunModel == nil {
		return time.Time{}
	}

	end, ok, err := svcCtx.RunModel.LastCompletedEnd(ctx)
	if err != nil {
		logger.Warnf("[Runner] 读取上次运行时间失败: %v", err)
		return time.Time{}
	}
	if !ok {
		return time.Time{}
	}
	return end
}

// recordRun 运行结束后写入运行记录，失败只记录日志
func recordRun(svcCtx *svc.ServiceContext, run *model.Run, report *runner.Report, runErr error) {
	if run == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runErr != nil {
		if err := svcCtx.RunModel.MarkFailed(ctx, run.ID, runErr.Error()); err != nil {
			logger.Warnf("[Runner] 更新运行记录失败: %v", err)
		}
		return
	}

	for _, t := range report.Topics {
		if t.Content == "" {
			continue
		}
		err := svcCtx.DigestModel.Create(ctx, &model.DigestData{
			RunID:        run.ID,
			TopicID:      t.Topic.ID,
			TopicTitle:   t.Topic.Title,
			Status:       string(t.Status),
			MessageCount: t.MessageCount,
			Content:      t.Content,
		})
		if err != nil {
			logger.Warnf("[Runner] 保存话题 %q 的摘要失败: %v", t.Topic.Title, err)
		}
	}
	if err := svcCtx.RunModel.MarkCompleted(ctx, run.ID, report.Count(runner.OutcomeSent), report.Failed()); err != nil {
		logger.Warnf("[Runner] 更新运行记录失败: %v", err)
	}
}
