package summarizer

import "github.com/fachebot/topic-digest/internal/chat"

// Split 将消息按固定条数切分为连续、不重叠的 chunk，最后一块可能较小。
// 消息数不超过 size 时只有一块；没有消息时返回 nil
func Split(messages []chat.Message, size int) []chat.Chunk {
	if len(messages) == 0 {
		return nil
	}
	if size <= 0 || len(messages) <= size {
		return []chat.Chunk{{Index: 1, Total: 1, Messages: messages}}
	}

	total := (len(messages) + size - 1) / size
	chunks := make([]chat.Chunk, 0, total)
	for i := 0; i < total; i++ {
		end := min((i+1)*size, len(messages))
		chunks = append(chunks, chat.Chunk{
			Index:    i + 1,
			Total:    total,
			Messages: messages[i*size : end],
		})
	}
	return chunks
}
