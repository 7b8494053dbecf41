package summarizer

import (
	"testing"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		count int
		size  int
		want  []int
	}{
		{"没有消息", 0, 1000, nil},
		{"少于块大小", 50, 1000, []int{50}},
		{"恰好等于块大小", 1000, 1000, []int{1000}},
		{"1200 条拆为两块", 1200, 1000, []int{1000, 200}},
		{"整除", 3000, 1000, []int{1000, 1000, 1000}},
		{"小块", 7, 3, []int{3, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages := makeMessages(tt.count)
			chunks := Split(messages, tt.size)

			var sizes []int
			var joined []chat.Message
			for i, c := range chunks {
				sizes = append(sizes, len(c.Messages))
				assert.Equal(t, i+1, c.Index)
				assert.Equal(t, len(chunks), c.Total)
				assert.LessOrEqual(t, len(c.Messages), tt.size)
				joined = append(joined, c.Messages...)
			}
			assert.Equal(t, tt.want, sizes)
			if tt.count > 0 {
				require.Equal(t, messages, joined, "按顺序拼接应还原原始消息")
			}
		})
	}
}
