package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/fachebot/topic-digest/internal/config"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// mockOpenAIClient 模拟 OpenAI 客户端
type mockOpenAIClient struct {
	mock.Mock
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

// newTestOpenAIClient 创建用于测试的客户端，所有 key 共用同一个 mock
func newTestOpenAIClient(cfg *config.LLM, mockClient openAIClientInterface) *OpenAIClient {
	return &OpenAIClient{
		config:  cfg,
		factory: func(string) openAIClientInterface { return mockClient },
		clients: make(map[string]openAIClientInterface),
	}
}

// mockGeminiModels 模拟 Gemini 模型接口
type mockGeminiModels struct {
	mock.Mock
}

func (m *mockGeminiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, cfg)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func geminiResponse(text string, finish genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: finish,
		}},
	}
}

var testRequest = Request{
	SystemInstruction: "你是总结助手",
	Prompt:            "聊天记录",
	Temperature:       0.3,
	MaxOutputTokens:   4000,
}

func TestOpenAIGenerate_Success(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "test-model" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[1].Content == "聊天记录" &&
			req.MaxTokens == 4000
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  🔥 热门话题\n- 空投  "}},
		},
	}, nil)

	client := newTestOpenAIClient(&config.LLM{Model: "test-model"}, mockAPI)
	text, err := client.Generate(context.Background(), "key", testRequest)
	require.NoError(t, err)
	assert.Equal(t, "🔥 热门话题\n- 空投", text)
	mockAPI.AssertExpectations(t)
}

func TestOpenAIGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
		err  error
		want error
	}{
		{"429 视为配额错误", openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, ErrQuota},
		{"insufficient_quota", openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusForbidden, Code: "insufficient_quota", Message: "You exceeded your current quota"}, ErrQuota},
		{"content_filter 错误码", openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Code: "content_filter", Message: "filtered"}, ErrBlocked},
		{"500 可重试", openai.ChatCompletionResponse{}, &openai.RequestError{HTTPStatusCode: http.StatusInternalServerError, Err: errors.New("boom")}, ErrTransient},
		{"网络错误可重试", openai.ChatCompletionResponse{}, errors.New("connection reset"), ErrTransient},
		{"空结果", openai.ChatCompletionResponse{}, nil, ErrTransient},
		{"content_filter 终止", openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{FinishReason: openai.FinishReasonContentFilter}}}, nil, ErrBlocked},
		{"空文本", openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  "}}}}, nil, ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(mockOpenAIClient)
			mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			client := newTestOpenAIClient(&config.LLM{Model: "m"}, mockAPI)
			_, err := client.Generate(context.Background(), "key", testRequest)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIGenerate_ClientPerKey(t *testing.T) {
	created := map[string]int{}
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}, nil)

	client := &OpenAIClient{
		config: &config.LLM{Model: "m"},
		factory: func(key string) openAIClientInterface {
			created[key]++
			return mockAPI
		},
		clients: make(map[string]openAIClientInterface),
	}
	for _, key := range []string{"a", "b", "a"} {
		_, err := client.Generate(context.Background(), key, testRequest)
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, created)
}

func TestGeminiGenerate_Success(t *testing.T) {
	models := new(mockGeminiModels)
	models.On("GenerateContent", mock.Anything, "gemini-flash-latest", mock.Anything, mock.MatchedBy(func(cfg *genai.GenerateContentConfig) bool {
		return len(cfg.SafetySettings) == 4 &&
			cfg.SafetySettings[0].Threshold == genai.HarmBlockThresholdBlockNone &&
			cfg.SystemInstruction != nil &&
			*cfg.Temperature == float32(0.3) &&
			cfg.MaxOutputTokens == 4000
	})).Return(geminiResponse("📝 重点摘要\n- 上线", genai.FinishReasonStop), nil)

	var keys []string
	client := newGeminiClient(&config.LLM{Model: "gemini-flash-latest"}, func(ctx context.Context, apiKey string) (geminiModels, error) {
		keys = append(keys, apiKey)
		return models, nil
	})

	text, err := client.Generate(context.Background(), "key-1", testRequest)
	require.NoError(t, err)
	assert.Equal(t, "📝 重点摘要\n- 上线", text)

	_, err = client.Generate(context.Background(), "key-1", testRequest)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1"}, keys)
	models.AssertExpectations(t)
}

func TestGeminiGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
		want error
	}{
		{"429", nil, genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}, ErrQuota},
		{"RESOURCE_EXHAUSTED 状态", nil, genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, ErrQuota},
		{"503", nil, genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "overloaded"}, ErrTransient},
		{"超时", nil, context.DeadlineExceeded, ErrTransient},
		{"提示词被拦截", &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonProhibitedContent}}, nil, ErrBlocked},
		{"安全终止", geminiResponse("", genai.FinishReasonSafety), nil, ErrBlocked},
		{"禁止内容终止", geminiResponse("", genai.FinishReasonProhibitedContent), nil, ErrBlocked},
		{"空文本", geminiResponse("", genai.FinishReasonStop), nil, ErrTransient},
		{"无候选", &genai.GenerateContentResponse{}, nil, ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := new(mockGeminiModels)
			models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.resp, tt.err)
			client := newGeminiClient(&config.LLM{Model: "m"}, func(context.Context, string) (geminiModels, error) {
				return models, nil
			})

			_, err := client.Generate(context.Background(), "key", testRequest)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGeminiGenerate_FactoryError(t *testing.T) {
	client := newGeminiClient(&config.LLM{Model: "m"}, func(context.Context, string) (geminiModels, error) {
		return nil, errors.New("bad key")
	})
	_, err := client.Generate(context.Background(), "key", testRequest)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(&config.LLM{Provider: config.ProviderGemini}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, g)

	g, err = NewGenerator(&config.LLM{Provider: config.ProviderOpenAI, BaseURL: "http://localhost"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, g)

	_, err = NewGenerator(&config.LLM{Provider: "other"}, nil)
	assert.Error(t, err)
}

func TestKeyPool(t *testing.T) {
	pool := NewKeyPool([]string{"a", "", "b", "c"})
	assert.Equal(t, 3, pool.Len())
	assert.Equal(t, "a", pool.Current())
	assert.Equal(t, "b", pool.Rotate())
	assert.Equal(t, "c", pool.Rotate())
	assert.Equal(t, "a", pool.Rotate())
	assert.Equal(t, 0, pool.Index())
	assert.Equal(t, 3, pool.Rotations())

	empty := NewKeyPool(nil)
	assert.Equal(t, "", empty.Current())
	assert.Equal(t, "", empty.Rotate())
}
