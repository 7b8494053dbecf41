package topics

import (
	"testing"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		filter Filter
		want   bool
	}{
		{"无过滤条件", "General", Filter{}, true},
		{"包含子串", "Alpha 撸毛", Filter{Include: "撸毛"}, true},
		{"不包含子串", "闲聊", Filter{Include: "撸毛"}, false},
		{"默认区分大小写", "alpha", Filter{Include: "Alpha"}, false},
		{"忽略大小写", "alpha", Filter{Include: "Alpha", CaseInsensitive: true}, true},
		{"设置 Include 时忽略 Exclude", "闲聊区", Filter{Include: "闲聊", Exclude: []string{"闲聊区"}}, true},
		{"排除精确名称", "闲聊", Filter{Exclude: []string{"闲聊"}}, false},
		{"排除名称去除空白", " 闲聊 ", Filter{Exclude: []string{"闲聊  "}}, false},
		{"排除不做子串匹配", "闲聊区", Filter{Exclude: []string{"闲聊"}}, true},
		{"空白 Include 视为未设置", "闲聊", Filter{Include: "  ", Exclude: []string{"闲聊"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.title, tt.filter))
		})
	}
}

func TestEnumerate_PreservesOrder(t *testing.T) {
	all := []chat.Topic{
		{ID: 1, Title: "General"},
		{ID: 5, Title: "Alpha 项目"},
		{ID: 3, Title: "闲聊"},
		{ID: 9, Title: "Alpha 空投"},
	}

	got := Enumerate(all, Filter{Include: "Alpha"})
	assert.Equal(t, []chat.Topic{{ID: 5, Title: "Alpha 项目"}, {ID: 9, Title: "Alpha 空投"}}, got)

	got = Enumerate(all, Filter{Exclude: []string{"General", "闲聊"}})
	assert.Equal(t, []chat.Topic{{ID: 5, Title: "Alpha 项目"}, {ID: 9, Title: "Alpha 空投"}}, got)
}

func TestEnumerate_NoMatchIsEmpty(t *testing.T) {
	all := []chat.Topic{{ID: 1, Title: "General"}, {ID: 2, Title: "闲聊"}}
	got := Enumerate(all, Filter{Include: "不存在的话题"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
