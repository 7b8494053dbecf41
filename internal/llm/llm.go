package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fachebot/topic-digest/internal/config"
)

// Request 一次文本生成请求
type Request struct {
	SystemInstruction string
	Prompt            string
	Temperature       float32
	MaxOutputTokens   int
}

// Generator 调用模型生成文本。错误通过 errors.Is 归类为 ErrQuota / ErrBlocked / ErrTransient
type Generator interface {
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}

// NewGenerator 按配置创建对应的模型客户端，httpClient 可为 nil
func NewGenerator(cfg *config.LLM, httpClient *http.Client) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, httpClient), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("不支持的 LLM Provider: %s", cfg.Provider)
	}
}
