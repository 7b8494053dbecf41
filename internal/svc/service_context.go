package svc

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/llm"
	"github.com/fachebot/topic-digest/internal/logger"
	"github.com/fachebot/topic-digest/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	DB             *sql.DB // Store.Enable 为 false 时为 nil
	TransportProxy *http.Transport
	RunModel       *model.RunModel
	DigestModel    *model.DigestModel
	Generator      llm.Generator
	Keys           *llm.KeyPool
	Location       *time.Location
}

func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	svcCtx := &ServiceContext{
		Config:   c,
		Keys:     llm.NewKeyPool(c.LLM.APIKeys),
		Location: c.Location(),
	}

	// 创建SOCKS5代理
	var httpClient *http.Client
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
		}

		svcCtx.TransportProxy = &http.Transport{Dial: dialer.Dial}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			svcCtx.TransportProxy.DialContext = contextDialer.DialContext
		}
		httpClient = &http.Client{Transport: svcCtx.TransportProxy}
	}

	generator, err := llm.NewGenerator(&c.LLM, httpClient)
	if err != nil {
		return nil, err
	}
	svcCtx.Generator = generator

	// 创建数据库连接
	if c.Store.Enable {
		db, err := openStore(c.Store.Path)
		if err != nil {
			return nil, err
		}
		svcCtx.DB = db
		svcCtx.RunModel = model.NewRunModel(db)
		svcCtx.DigestModel = model.NewDigestModel(db)
	}

	return svcCtx, nil
}

func openStore(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=rwc&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := model.Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (svcCtx *ServiceContext) Close() {
	if svcCtx.DB == nil {
		return
	}
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
