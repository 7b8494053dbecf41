package topics

import (
	"strings"

	"github.com/fachebot/topic-digest/internal/chat"
)

// Filter 话题过滤规则。Include 非空时只按子串匹配，Exclude 被忽略
type Filter struct {
	Include         string
	Exclude         []string
	CaseInsensitive bool
}

// Match 判断话题标题是否需要处理
func Match(title string, f Filter) bool {
	include := strings.TrimSpace(f.Include)
	if include != "" {
		if f.CaseInsensitive {
			return strings.Contains(strings.ToLower(title), strings.ToLower(include))
		}
		return strings.Contains(title, include)
	}

	name := strings.TrimSpace(title)
	for _, excluded := range f.Exclude {
		if strings.TrimSpace(excluded) == name {
			return false
		}
	}
	return true
}

// Enumerate 按原顺序返回需要处理的话题，可能为空
func Enumerate(all []chat.Topic, f Filter) []chat.Topic {
	selected := make([]chat.Topic, 0, len(all))
	for _, topic := range all {
		if Match(topic.Title, f) {
			selected = append(selected, topic)
		}
	}
	return selected
}
