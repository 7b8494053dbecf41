package notify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	boldPattern = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// RenderHTML 转义 HTML 特殊字符，并将 Markdown 粗体 **x** 转换为 <b>x</b>
func RenderHTML(text string) string {
	return boldPattern.ReplaceAllString(htmlEscaper.Replace(text), "<b>$1</b>")
}

// StripMarkdown 去掉粗体标记，用于 HTML 解析失败时的纯文本发送
func StripMarkdown(text string) string {
	return boldPattern.ReplaceAllString(text, "$1")
}

// SplitMessage 将消息按长度拆分为多条，优先在段落边界拆分
func SplitMessage(content string) []string {
	if utf8.RuneCountInString(content) <= MaxMessageLength {
		return []string{content}
	}

	// 按段落拆分
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) == 1 {
		paragraphs = strings.Split(content, "\n")
	}

	messages := make([]string, 0)
	current := ""
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		candidate := current
		if candidate != "" {
			candidate += "\n\n"
		}
		candidate += para
		if utf8.RuneCountInString(candidate) <= MaxMessageLength {
			current = candidate
			continue
		}

		// 当前消息已满，保存并开始新消息
		if current != "" {
			messages = append(messages, current)
			current = ""
		}
		if utf8.RuneCountInString(para) <= MaxMessageLength {
			current = para
			continue
		}

		// 单个段落就超过长度
		pieces := splitLong(para)
		messages = append(messages, pieces[:len(pieces)-1]...)
		current = pieces[len(pieces)-1]
	}

	if current != "" {
		messages = append(messages, current)
	}
	return messages
}

// splitLong 按行拆分超长段落，单行仍超长时按字符硬切
func splitLong(para string) []string {
	var pieces []string
	current := ""
	for _, line := range strings.Split(para, "\n") {
		for _, seg := range cutRunes(line, MaxMessageLength) {
			candidate := current
			if candidate != "" {
				candidate += "\n"
			}
			candidate += seg
			if utf8.RuneCountInString(candidate) <= MaxMessageLength {
				current = candidate
				continue
			}
			pieces = append(pieces, current)
			current = seg
		}
	}
	if current != "" || len(pieces) == 0 {
		pieces = append(pieces, current)
	}
	return pieces
}

func cutRunes(s string, n int) []string {
	runes := []rune(s)
	if len(runes) <= n {
		return []string{s}
	}
	segs := make([]string, 0, len(runes)/n+1)
	for len(runes) > n {
		segs = append(segs, string(runes[:n]))
		runes = runes[n:]
	}
	if len(runes) > 0 {
		segs = append(segs, string(runes))
	}
	return segs
}
