package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient 兼容 OpenAI API 的模型客户端
type OpenAIClient struct {
	config  *config.LLM
	factory func(apiKey string) openAIClientInterface

	mu      sync.Mutex
	clients map[string]openAIClientInterface
}

func NewOpenAIClient(cfg *config.LLM, httpClient *http.Client) *OpenAIClient {
	factory := func(apiKey string) openAIClientInterface {
		openaiConfig := openai.DefaultConfig(apiKey)
		openaiConfig.BaseURL = cfg.BaseURL
		if httpClient != nil {
			openaiConfig.HTTPClient = httpClient
		}
		return openai.NewClientWithConfig(openaiConfig)
	}
	return &OpenAIClient{
		config:  cfg,
		factory: factory,
		clients: make(map[string]openAIClientInterface),
	}
}

func (c *OpenAIClient) clientFor(apiKey string) openAIClientInterface {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client
	}
	client := c.factory(apiKey)
	c.clients[apiKey] = client
	return client
}

// Generate 执行一次对话补全请求
func (c *OpenAIClient) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.clientFor(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", transientError(providerOpenAI, "返回空结果")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", blockedError(providerOpenAI, "finish reason: content_filter")
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", transientError(providerOpenAI, "返回空文本")
	}
	return content, nil
}

// classifyOpenAIError 根据状态码和错误码归类
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "content_filter" {
			return blockedError(providerOpenAI, apiErr.Message)
		}
		return wrapError(providerOpenAI, apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return wrapError(providerOpenAI, reqErr.HTTPStatusCode, err)
	}
	return wrapError(providerOpenAI, 0, err)
}
