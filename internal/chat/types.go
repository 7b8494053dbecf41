package chat

import (
	"strings"
	"time"
)

// Window 需要总结的时间区间 [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration 区间长度
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains 判断时间点是否落在区间内（左闭右开）
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Label 区间的展示文本，如 "01/02 15:04 - 01/02 23:04 (Asia/Hong_Kong)"
func (w Window) Label(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return w.Start.In(loc).Format("01/02 15:04") + " - " + w.End.In(loc).Format("01/02 15:04") + " (" + loc.String() + ")"
}

// Hours 区间小时数，向上取整，至少为 1
func (w Window) Hours() int {
	hours := int(w.Duration() / time.Hour)
	if w.Duration()%time.Hour != 0 {
		hours++
	}
	if hours < 1 {
		hours = 1
	}
	return hours
}

// Topic 论坛群组中的一个话题
type Topic struct {
	ID    int64
	Title string
}

// ContentKind 原始消息的内容类型
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentMedia
	ContentSticker
	ContentService
)

// RawMessage Telegram 返回的原始消息（尚未过滤）
type RawMessage struct {
	ID             int64
	SenderName     string
	SenderUsername string
	Time           time.Time
	Kind           ContentKind
	Text           string
}

// Message 纯文本消息
type Message struct {
	SenderName     string
	SenderUsername string
	Time           time.Time
	Text           string
}

// SentBy 判断消息是否由指定用户发送，匹配显示名或用户名（可带 @）
func (m Message) SentBy(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if m.SenderName == name {
		return true
	}
	if m.SenderUsername == "" {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(name, "@"), strings.TrimPrefix(m.SenderUsername, "@"))
}

// Chunk 按顺序切分后的消息块，Index 从 1 开始
type Chunk struct {
	Index    int
	Total    int
	Messages []Message
}

// HasSender 判断块内是否存在指定用户的发言
func (c Chunk) HasSender(name string) bool {
	for _, m := range c.Messages {
		if m.SentBy(name) {
			return true
		}
	}
	return false
}
