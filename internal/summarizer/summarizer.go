package summarizer

import (
	"context"
	"fmt"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/fetcher"
	"github.com/fachebot/topic-digest/internal/logger"
)

// chunkSummarizer 为单个 chunk 生成摘要（便于测试注入 mock）
type chunkSummarizer interface {
	Summarize(ctx context.Context, rs *RunState, topic TopicInfo, chunk chat.Chunk) (SummaryResult, error)
}

type Summarizer struct {
	engine    chunkSummarizer
	combiner  *Combiner
	chunkSize int
}

func NewSummarizer(engine *Engine, combiner *Combiner, chunkSize int) *Summarizer {
	return &Summarizer{
		engine:    engine,
		combiner:  combiner,
		chunkSize: chunkSize,
	}
}

// SummarizeTopic 切分、逐段总结并合并一个话题的消息。
// 调用方需保证 fetched.Messages 非空；只有 ctx 被取消时返回错误
func (s *Summarizer) SummarizeTopic(ctx context.Context, rs *RunState, topic chat.Topic, window chat.Window, fetched fetcher.Result) (FinalDigest, []SummaryResult, error) {
	chunks := Split(fetched.Messages, s.chunkSize)
	if len(chunks) == 0 {
		return FinalDigest{}, nil, fmt.Errorf("话题 %q 没有可总结的消息", topic.Title)
	}
	if len(chunks) > 1 {
		logger.Infof("[Summarizer] 话题 %q 共 %d 条消息, 拆分为 %d 段", topic.Title, len(fetched.Messages), len(chunks))
	}

	info := TopicInfo{Title: topic.Title, Window: window}
	results := make([]SummaryResult, 0, len(chunks))
	for _, chunk := range chunks {
		result, err := s.engine.Summarize(ctx, rs, info, chunk)
		if err != nil {
			return FinalDigest{}, results, err
		}
		results = append(results, result)
	}

	digest := s.combiner.Combine(DigestInput{
		Topic:        topic,
		Window:       window,
		MessageCount: len(fetched.Messages),
		RawCount:     fetched.RawCount,
		Truncated:    fetched.Truncated,
		Results:      results,
	})
	logger.Infof("[Summarizer] 话题 %q 摘要完成, 状态: %s", topic.Title, digest.Status)
	return digest, results, nil
}
