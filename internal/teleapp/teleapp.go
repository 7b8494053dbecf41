package teleapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/logger"

	"github.com/zelenin/go-tdlib/client"
)

// ErrNotAuthorized 会话未登录，需要先执行 login 子命令
var ErrNotAuthorized = errors.New("telegram 会话未授权")

type TeleApp struct {
	user         *client.User
	tdClient     *client.Client
	parameters   *client.SetTdlibParametersRequest
	timeout      time.Duration
	targetChatID int64
	savedChatID  int64
	usersMu      sync.RWMutex
	usersCache   map[int64]*client.User
	chatsMu      sync.RWMutex
	chatsCache   map[int64]*client.Chat
}

func NewApp(c *config.TelegramApp) *TeleApp {
	_, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	})
	if err != nil {
		logger.Fatalf("[TeleApp] 设置日志级别错误, %s", err)
	}

	parameters := &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   filepath.Join(c.DataDir, ".tdlib", "database"),
		FilesDirectory:      filepath.Join(c.DataDir, ".tdlib", "files"),
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               c.ApiId,
		ApiHash:             c.ApiHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	app := &TeleApp{
		parameters: parameters,
		timeout:    time.Duration(c.RequestTimeoutSeconds) * time.Second,
		chatsCache: make(map[int64]*client.Chat),
		usersCache: make(map[int64]*client.User),
	}
	return app
}

// Options 根据配置生成 tdlib 客户端选项
func Options(c *config.Config) []client.Option {
	options := []client.Option{
		client.WithCatchTimeout(time.Duration(c.TelegramApp.RequestTimeoutSeconds) * time.Second),
	}
	if c.Sock5Proxy.Enable {
		options = append(options, client.WithProxy(&client.AddProxyRequest{
			Server: c.Sock5Proxy.Host,
			Port:   c.Sock5Proxy.Port,
			Enable: c.Sock5Proxy.Enable,
			Type:   &client.ProxyTypeSocks5{},
		}))
	}
	return options
}

// Login 使用已有会话登录，会话无效时返回 ErrNotAuthorized，不会等待输入
func (app *TeleApp) Login(options ...client.Option) (*client.User, error) {
	return app.login(&sessionAuthorizer{parameters: app.parameters}, options...)
}

// LoginInteractive 在终端中交互式登录（手机号、验证码、两步验证密码），会话保存在 DataDir
func (app *TeleApp) LoginInteractive(options ...client.Option) (*client.User, error) {
	authorizer := client.ClientAuthorizer(app.parameters)
	go client.CliInteractor(authorizer)
	return app.login(authorizer, options...)
}

func (app *TeleApp) login(authorizer client.AuthorizationStateHandler, options ...client.Option) (*client.User, error) {
	if app.user != nil {
		return app.user, nil
	}

	tdlibClient, err := client.NewClient(authorizer, options...)
	if err != nil {
		return nil, err
	}

	me, err := tdlibClient.GetMe()
	if err != nil {
		return nil, err
	}

	app.user = me
	app.tdClient = tdlibClient

	// 预加载聊天列表，之后才能按数字ID获取群组
	chats, err := app.tdClient.GetChats(&client.GetChatsRequest{Limit: 100})
	if err != nil {
		logger.Warnf("[TeleApp] 获取聊天列表失败: %v", err)
	} else {
		logger.Debugf("[TeleApp] 已加载 %d 个聊天", len(chats.ChatIds))
	}

	return me, nil
}

func (app *TeleApp) Close() error {
	if app.tdClient == nil {
		return nil
	}
	_, err := app.tdClient.Close()
	return err
}

// sessionAuthorizer 只接受已授权的会话
type sessionAuthorizer struct {
	parameters *client.SetTdlibParametersRequest
}

func (a *sessionAuthorizer) Handle(c *client.Client, state client.AuthorizationState) error {
	switch state.AuthorizationStateType() {
	case client.TypeAuthorizationStateWaitTdlibParameters:
		_, err := c.SetTdlibParameters(a.parameters)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrNotAuthorized, state.AuthorizationStateType())
	}
}

func (a *sessionAuthorizer) Close() {}

// call 执行一次 tdlib 请求，受 ctx 和单次请求超时限制
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		value, err := fn()
		ch <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		return r.value, r.err
	}
}

func (app *TeleApp) getChat(ctx context.Context, chatId int64) (*client.Chat, error) {
	// 先尝试读锁读取缓存
	app.chatsMu.RLock()
	chat, ok := app.chatsCache[chatId]
	app.chatsMu.RUnlock()
	if ok {
		return chat, nil
	}

	// 缓存未命中，获取数据
	chat, err := call(ctx, app.timeout, func() (*client.Chat, error) {
		return app.tdClient.GetChat(&client.GetChatRequest{ChatId: chatId})
	})
	if err != nil {
		return nil, err
	}

	// 写锁更新缓存
	app.chatsMu.Lock()
	app.chatsCache[chatId] = chat
	app.chatsMu.Unlock()
	return chat, nil
}

func (app *TeleApp) getUser(ctx context.Context, userId int64) (*client.User, error) {
	// 先尝试读锁读取缓存
	app.usersMu.RLock()
	user, ok := app.usersCache[userId]
	app.usersMu.RUnlock()
	if ok {
		return user, nil
	}

	// 缓存未命中，获取数据
	user, err := call(ctx, app.timeout, func() (*client.User, error) {
		return app.tdClient.GetUser(&client.GetUserRequest{UserId: userId})
	})
	if err != nil {
		return nil, err
	}

	// 写锁更新缓存
	app.usersMu.Lock()
	app.usersCache[userId] = user
	app.usersMu.Unlock()
	return user, nil
}
