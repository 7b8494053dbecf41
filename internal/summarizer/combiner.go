package summarizer

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fachebot/topic-digest/internal/chat"
)

// minContainRunes 归一化后短于该长度的条目只做精确去重，避免短词误伤
const minContainRunes = 4

// DigestInput 合并所需的话题信息
type DigestInput struct {
	Topic        chat.Topic
	Window       chat.Window
	MessageCount int
	RawCount     int
	Truncated    bool
	Results      []SummaryResult
}

type Combiner struct {
	vipName string
	loc     *time.Location
}

func NewCombiner(vipName string, loc *time.Location) *Combiner {
	if loc == nil {
		loc = time.UTC
	}
	return &Combiner{vipName: vipName, loc: loc}
}

// Combine 将各 chunk 的摘要合并为一条最终摘要。
// 只有一段可用时原样保留；多段时按段落去重合并，任一段无法解析则退化为按段拼接
func (c *Combiner) Combine(in DigestInput) FinalDigest {
	results := append([]SummaryResult(nil), in.Results...)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	var usable []SummaryResult
	fallbacks := 0
	for _, r := range results {
		switch r.Status {
		case StatusBlocked:
			continue
		case StatusFallback:
			fallbacks++
		}
		usable = append(usable, r)
	}

	digest := FinalDigest{
		TopicTitle:   in.Topic.Title,
		MessageCount: in.MessageCount,
		Degraded:     len(usable) < len(results),
	}

	switch {
	case len(usable) == 0:
		digest.Status = StatusBlocked
		digest.Body = fmt.Sprintf("⚠️ 该话题共 %d 段内容均被模型的内容策略拦截，未能生成摘要。", len(results))
	case fallbacks > 0:
		digest.Status = StatusFallback
	default:
		digest.Status = StatusSuccess
	}

	if len(usable) > 0 {
		digest.Body = c.body(usable, len(results)) + "\n\n" + Disclaimer
	}
	digest.Header = c.header(in, results, digest.Status, len(results)-len(usable))
	return digest
}

func (c *Combiner) body(usable []SummaryResult, total int) string {
	if len(usable) == 1 {
		return usable[0].Text
	}

	var merged Sections
	for _, r := range usable {
		s, ok := ParseSections(r.Text)
		if !ok {
			return concatParts(usable, total)
		}
		merged.HotTopics = appendUnique(merged.HotTopics, s.HotTopics...)
		if r.HasVIP {
			merged.VIP = append(merged.VIP, s.VIP...)
		}
		merged.KeyPoints = appendUnique(merged.KeyPoints, s.KeyPoints...)
	}
	return merged.Format(c.vipName)
}

// concatParts 无法按段落合并时按顺序拼接各段原文
func concatParts(usable []SummaryResult, total int) string {
	parts := make([]string, 0, len(usable))
	for _, r := range usable {
		parts = append(parts, fmt.Sprintf("**Part %d/%d**\n%s", r.Index, total, r.Text))
	}
	return strings.Join(parts, "\n\n")
}

func (c *Combiner) header(in DigestInput, results []SummaryResult, status Status, blocked int) string {
	total := len(results)
	lines := []string{
		"[Summary] Topic: " + in.Topic.Title,
		fmt.Sprintf("🕒 %s · %d 条消息", in.Window.Label(c.loc), in.MessageCount),
	}
	if in.Truncated {
		lines = append(lines, fmt.Sprintf("(仅包含最近 %d 条消息，共 %d 条，因长度限制进行了截断)", in.MessageCount, in.RawCount))
	}
	for _, r := range results {
		if r.Status != StatusFallback {
			continue
		}
		if total == 1 {
			lines = append(lines, fmt.Sprintf("(重试后生成，%s)", r.Reason))
		} else {
			lines = append(lines, fmt.Sprintf("(第 %d/%d 段重试后生成，%s)", r.Index, total, r.Reason))
		}
	}
	if blocked > 0 && status != StatusBlocked {
		lines = append(lines, fmt.Sprintf("⚠️ 摘要不完整：%d/%d 段内容被拦截", blocked, total))
	}
	return strings.Join(lines, "\n")
}

// appendUnique 追加条目并合并近似重复项：归一化后相同，或互相包含时保留较长的一条
func appendUnique(items []string, candidates ...string) []string {
	for _, candidate := range candidates {
		nc := normalize(candidate)
		if nc == "" {
			continue
		}
		duplicate := false
		for i, existing := range items {
			ne := normalize(existing)
			if ne == nc {
				duplicate = true
				break
			}
			if utf8.RuneCountInString(nc) < minContainRunes || utf8.RuneCountInString(ne) < minContainRunes {
				continue
			}
			if strings.Contains(ne, nc) {
				duplicate = true
				break
			}
			if strings.Contains(nc, ne) {
				items[i] = candidate
				duplicate = true
				break
			}
		}
		if !duplicate {
			items = append(items, candidate)
		}
	}
	return items
}

// normalize 只保留字母和数字并转为小写
func normalize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}
