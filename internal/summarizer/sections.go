package summarizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/fachebot/topic-digest/internal/chat"
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionHot
	sectionVIP
	sectionKey
)

const (
	vipQuoteLimit    = 5
	vipQuoteMaxRunes = 120
)

var (
	orderedPrefix = regexp.MustCompile(`^\d+[.、)]\s*`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// headingKind 识别标题行，返回段落类型和标题冒号后的内联内容
func headingKind(line string) (sectionKind, string) {
	trimmed := strings.TrimSpace(line)
	if isListItem(trimmed) {
		return sectionNone, ""
	}
	trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#> "))
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "**"))

	// 以标志 emoji 开头且包含标题关键字
	var kind sectionKind
	switch {
	case strings.HasPrefix(trimmed, markerHot) && strings.Contains(trimmed, "热门"):
		kind = sectionHot
	case strings.HasPrefix(trimmed, markerVIP) && strings.Contains(trimmed, "说"):
		kind = sectionVIP
	case strings.HasPrefix(trimmed, markerKey) && strings.Contains(trimmed, "重点"):
		kind = sectionKey
	default:
		return sectionNone, ""
	}

	cut := -1
	sepLen := 0
	for _, sep := range []string{"：", ":"} {
		if i := strings.Index(trimmed, sep); i >= 0 && (cut < 0 || i < cut) {
			cut, sepLen = i, len(sep)
		}
	}
	if cut < 0 {
		return kind, ""
	}
	return kind, cleanItem(trimmed[cut+sepLen:])
}

// isListItem 列表条目永远不是标题，即使以标志 emoji 开头
func isListItem(line string) bool {
	switch {
	case strings.HasPrefix(line, "**"):
		return false
	case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"), strings.HasPrefix(line, "+"),
		strings.HasPrefix(line, "•"), strings.HasPrefix(line, "·"):
		return true
	}
	return orderedPrefix.MatchString(line)
}

// cleanItem 去掉列表符号与首尾空白
func cleanItem(line string) string {
	item := strings.TrimSpace(line)
	for _, prefix := range []string{"- ", "* ", "• ", "· ", "-", "•"} {
		if strings.HasPrefix(item, prefix) {
			item = strings.TrimSpace(strings.TrimPrefix(item, prefix))
			break
		}
	}
	item = orderedPrefix.ReplaceAllString(item, "")
	item = strings.TrimSpace(item)
	if strings.Trim(item, "-*_ ") == "" {
		return ""
	}
	return item
}

// ParseSections 解析三段式摘要。一个标题都没有时返回 false
func ParseSections(text string) (Sections, bool) {
	var s Sections
	current := sectionNone
	found := false

	for _, line := range strings.Split(text, "\n") {
		kind, inline := headingKind(line)
		if kind != sectionNone {
			current = kind
			found = true
			if inline != "" {
				s.add(current, inline)
			}
			continue
		}
		if current == sectionNone {
			continue
		}
		if item := cleanItem(line); item != "" {
			s.add(current, item)
		}
	}
	return s, found
}

func (s *Sections) add(kind sectionKind, item string) {
	switch kind {
	case sectionHot:
		s.HotTopics = append(s.HotTopics, item)
	case sectionVIP:
		s.VIP = append(s.VIP, item)
	case sectionKey:
		s.KeyPoints = append(s.KeyPoints, item)
	}
}

// hasSection 文本中是否存在指定段落的标题
func hasSection(text string, kind sectionKind) bool {
	for _, line := range strings.Split(text, "\n") {
		if k, _ := headingKind(line); k == kind {
			return true
		}
	}
	return false
}

// stripSection 删除指定段落（标题到下一个标题之前的所有行）
func stripSection(text string, kind sectionKind) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	skipping := false
	for _, line := range lines {
		if k, _ := headingKind(line); k != sectionNone {
			skipping = k == kind
		}
		if !skipping {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
}

// insertBeforeKeyPoints 将段落插入到重点摘要之前，找不到时追加到末尾
func insertBeforeKeyPoints(text, block string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if k, _ := headingKind(line); k == sectionKey {
			before := strings.TrimRight(strings.Join(lines[:i], "\n"), "\n ")
			after := strings.Join(lines[i:], "\n")
			if before == "" {
				return block + "\n\n" + after
			}
			return before + "\n\n" + block + "\n\n" + after
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return block
	}
	return text + "\n\n" + block
}

// enforceVIP 保证 VIP 段落当且仅当 chunk 中有 VIP 发言时出现。
// 模型遗漏时用 VIP 最近的原话补上，模型臆造时删除
func enforceVIP(text string, chunk chat.Chunk, vipName string, loc *time.Location) (string, bool) {
	present := strings.TrimSpace(vipName) != "" && chunk.HasSender(vipName)
	has := hasSection(text, sectionVIP)

	switch {
	case !present && has:
		text = stripSection(text, sectionVIP)
	case present && !has:
		text = insertBeforeKeyPoints(text, formatBlock(VIPHeading(vipName), vipQuotes(chunk, vipName, loc)))
	}
	return text, present
}

// vipQuotes 取 VIP 最近几条发言，按时间顺序
func vipQuotes(chunk chat.Chunk, vipName string, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	var quotes []string
	for i := len(chunk.Messages) - 1; i >= 0 && len(quotes) < vipQuoteLimit; i-- {
		m := chunk.Messages[i]
		if !m.SentBy(vipName) {
			continue
		}
		text := strings.Join(strings.Fields(m.Text), " ")
		if r := []rune(text); len(r) > vipQuoteMaxRunes {
			text = string(r[:vipQuoteMaxRunes]) + "…"
		}
		quotes = append(quotes, "["+m.Time.In(loc).Format("15:04")+"] "+text)
	}
	for i, j := 0, len(quotes)-1; i < j; i, j = i+1, j-1 {
		quotes[i], quotes[j] = quotes[j], quotes[i]
	}
	return quotes
}
