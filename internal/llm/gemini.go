package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/fachebot/topic-digest/internal/logger"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

// geminiModels 定义 Gemini 模型接口，便于测试
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// geminiFactory 为指定 key 创建模型客户端
type geminiFactory func(ctx context.Context, apiKey string) (geminiModels, error)

type GeminiClient struct {
	config  *config.LLM
	factory geminiFactory

	mu     sync.Mutex
	models map[string]geminiModels // 每个 key 一个客户端
}

func NewGeminiClient(cfg *config.LLM, httpClient *http.Client) *GeminiClient {
	factory := func(ctx context.Context, apiKey string) (geminiModels, error) {
		cc := &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		}
		if cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, err
		}
		return client.Models, nil
	}
	return newGeminiClient(cfg, factory)
}

func newGeminiClient(cfg *config.LLM, factory geminiFactory) *GeminiClient {
	return &GeminiClient{
		config:  cfg,
		factory: factory,
		models:  make(map[string]geminiModels),
	}
}

// safetySettings 全部关闭拦截，避免圈内黑话被误判
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

func (c *GeminiClient) modelsFor(ctx context.Context, apiKey string) (geminiModels, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[apiKey]; ok {
		return m, nil
	}
	m, err := c.factory(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	c.models[apiKey] = m
	return m, nil
}

// Generate 调用 Gemini 生成文本
func (c *GeminiClient) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	models, err := c.modelsFor(ctx, apiKey)
	if err != nil {
		return "", transientError(providerGemini, fmt.Sprintf("创建客户端失败: %v", err))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxOutputTokens),
		SafetySettings:  safetySettings(),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := models.GenerateContent(ctx, c.config.Model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", wrapError(providerGemini, apiErr.Code, err)
		}
		return "", wrapError(providerGemini, 0, err)
	}

	return geminiText(resp)
}

// geminiText 从响应中提取文本，识别提示词拦截与安全终止
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", transientError(providerGemini, "返回空响应")
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", blockedError(providerGemini, "prompt blocked: "+string(fb.BlockReason))
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		switch reason := resp.Candidates[0].FinishReason; reason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent,
			genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			return "", blockedError(providerGemini, "finish reason: "+string(reason))
		}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		logger.Debugf("[LLM] Gemini 返回空文本, candidates: %d", len(resp.Candidates))
		return "", transientError(providerGemini, "返回空文本")
	}
	return text, nil
}
