package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/llm"
)

const testVIP = "笑苍生"

var testBase = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

// genCall 记录一次模型调用
type genCall struct {
	Key    string
	Prompt string
}

// funcGenerator 用函数模拟模型，记录每次调用
type funcGenerator struct {
	mu    sync.Mutex
	fn    func(n int, key string, req llm.Request) (string, error)
	calls []genCall
}

func (g *funcGenerator) Generate(ctx context.Context, apiKey string, req llm.Request) (string, error) {
	g.mu.Lock()
	n := len(g.calls)
	g.calls = append(g.calls, genCall{Key: apiKey, Prompt: req.Prompt})
	g.mu.Unlock()
	return g.fn(n, apiKey, req)
}

// sequence 按顺序返回预设结果，超出后重复最后一个
func sequence(results ...func() (string, error)) func(int, string, llm.Request) (string, error) {
	return func(n int, _ string, _ llm.Request) (string, error) {
		if n >= len(results) {
			n = len(results) - 1
		}
		return results[n]()
	}
}

func ok(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", fmt.Errorf("%w: test", err) }
}

func testOptions() EngineOptions {
	return EngineOptions{
		MaxAttempts:      3,
		FallbackMessages: 500,
		VIPName:          testVIP,
		Language:         "简体中文",
		Temperature:      0.3,
		MaxOutputTokens:  4000,
		Location:         time.UTC,
	}
}

func newTestEngine(gen llm.Generator, opts EngineOptions) *Engine {
	e := NewEngine(gen, opts)
	e.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return e
}

func newTestState(keys ...string) *RunState {
	if len(keys) == 0 {
		keys = []string{"key-1"}
	}
	return NewRunState(llm.NewKeyPool(keys))
}

// makeMessages 生成 n 条消息，vipAt 中的下标由 VIP 发送
func makeMessages(n int, vipAt ...int) []chat.Message {
	vip := make(map[int]bool, len(vipAt))
	for _, i := range vipAt {
		vip[i] = true
	}
	messages := make([]chat.Message, n)
	for i := range messages {
		messages[i] = chat.Message{
			SenderName: fmt.Sprintf("user%d", i%7),
			Time:       testBase.Add(time.Duration(i) * time.Second),
			Text:       fmt.Sprintf("消息 %d", i),
		}
		if vip[i] {
			messages[i].SenderName = testVIP
			messages[i].Text = fmt.Sprintf("VIP 观点 %d", i)
		}
	}
	return messages
}

var testWindow = chat.Window{Start: testBase, End: testBase.Add(8 * time.Hour)}

var testTopicInfo = TopicInfo{Title: "Alpha", Window: testWindow}

// transcriptLines 统计提示词中的聊天记录行数
func transcriptLines(prompt string) int {
	count := 0
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "[2025-") {
			count++
		}
	}
	return count
}

const plainSummary = "🔥 **热门话题**\n- Alpha 刷分\n\n📝 **重点摘要**\n- 周五快照"

const vipSummary = "🔥 **热门话题**\n- Alpha 刷分\n\n🗣️ **笑苍生说**\n- 今晚必须刷完交互\n\n📝 **重点摘要**\n- 周五快照"
