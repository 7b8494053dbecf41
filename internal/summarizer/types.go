package summarizer

import "strings"

// Status 单个 chunk 或整个话题摘要的最终状态
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFallback Status = "fallback" // 使用缩减后的上下文生成
	StatusBlocked  Status = "blocked"  // 回退后仍失败
)

// SummaryResult 单个 chunk 的摘要结果，Index 与 Chunk.Index 对应
type SummaryResult struct {
	Index    int
	Total    int
	Text     string
	Status   Status
	HasVIP   bool
	Reason   string // 失败或回退原因
	Attempts int    // 实际发出的请求次数（含回退）
}

// FinalDigest 一个话题的最终摘要
type FinalDigest struct {
	TopicTitle   string
	MessageCount int
	Header       string
	Body         string
	Status       Status
	Degraded     bool // 存在被拦截的 chunk
}

// Text 发送用的完整文本
func (d FinalDigest) Text() string {
	if d.Header == "" {
		return d.Body
	}
	return d.Header + "\n\n" + d.Body
}

// Disclaimer 摘要末尾固定的免责声明
const Disclaimer = "⚠️ 以上内容由 AI 自动生成，可能存在遗漏或幻觉，请以原始聊天记录为准。"

// Sections 摘要的三段式结构
type Sections struct {
	HotTopics []string
	VIP       []string
	KeyPoints []string
}

const (
	markerHot = "🔥"
	markerVIP = "🗣" // 模型输出时通常带 U+FE0F
	markerKey = "📝"
)

// HotTopicsHeading 热门话题标题行
func HotTopicsHeading() string { return markerHot + " **热门话题**" }

// VIPHeading VIP 段标题行
func VIPHeading(vipName string) string { return markerVIP + "\uFE0F **" + vipName + "说**" }

// KeyPointsHeading 重点摘要标题行
func KeyPointsHeading() string { return markerKey + " **重点摘要**" }

// Format 按固定顺序输出，空段落省略
func (s Sections) Format(vipName string) string {
	var blocks []string
	if len(s.HotTopics) > 0 {
		blocks = append(blocks, formatBlock(HotTopicsHeading(), s.HotTopics))
	}
	if len(s.VIP) > 0 {
		blocks = append(blocks, formatBlock(VIPHeading(vipName), s.VIP))
	}
	if len(s.KeyPoints) > 0 {
		blocks = append(blocks, formatBlock(KeyPointsHeading(), s.KeyPoints))
	}
	return strings.Join(blocks, "\n\n")
}

func formatBlock(heading string, items []string) string {
	var sb strings.Builder
	sb.WriteString(heading)
	for _, item := range items {
		sb.WriteString("\n- ")
		sb.WriteString(item)
	}
	return sb.String()
}
