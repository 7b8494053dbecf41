package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendToSelf(ctx context.Context, html, plain string) error {
	args := m.Called(ctx, html, plain)
	return args.Error(0)
}

func (m *mockSender) ReplyInTopic(ctx context.Context, topicID int64, html, plain string) error {
	args := m.Called(ctx, topicID, html, plain)
	return args.Error(0)
}

func newTestNotifier(sender Sender, testMode bool) *Notifier {
	n := NewNotifier(sender, testMode)
	n.retryDelay = 0
	return n
}

var topic = chat.Topic{ID: 42, Title: "Alpha"}

func TestRenderHTML(t *testing.T) {
	got := RenderHTML("🔥 **热门话题**\n- a<b> & c **未闭合")
	assert.Equal(t, "🔥 <b>热门话题</b>\n- a&lt;b&gt; &amp; c **未闭合", got)
	assert.Equal(t, "🔥 热门话题\n- x", StripMarkdown("🔥 **热门话题**\n- x"))
}

func TestSplitMessage(t *testing.T) {
	t.Run("短消息不拆分", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitMessage("hello"))
	})

	t.Run("按段落拆分", func(t *testing.T) {
		p := strings.Repeat("字", 1500)
		parts := SplitMessage(p + "\n\n" + p + "\n\n" + p)
		assert.Equal(t, []string{p + "\n\n" + p, p}, parts)
	})

	t.Run("单段超长时硬切", func(t *testing.T) {
		long := strings.Repeat("长", 9000)
		parts := SplitMessage(long)
		require.Len(t, parts, 3)
		for _, part := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(part), MaxMessageLength)
		}
		assert.Equal(t, long, strings.Join(parts, ""))
	})

	t.Run("超长段落按行拆分", func(t *testing.T) {
		line := strings.Repeat("行", 1000)
		para := strings.Join([]string{line, line, line, line, line}, "\n")
		parts := SplitMessage("标题\n\n" + para)
		require.Len(t, parts, 3)
		assert.Equal(t, "标题", parts[0])
		assert.Equal(t, para, parts[1]+"\n"+parts[2])
		for _, part := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(part), MaxMessageLength)
		}
	})
}

func TestDeliver_TestModeSendsToSelf(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendToSelf", mock.Anything, "<b>摘要</b>", "摘要").Return(nil).Once()

	n := newTestNotifier(sender, true)
	require.NoError(t, n.Deliver(context.Background(), topic, "**摘要**"))
	sender.AssertExpectations(t)
	sender.AssertNotCalled(t, "ReplyInTopic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliver_RepliesInTopic(t *testing.T) {
	sender := new(mockSender)
	sender.On("ReplyInTopic", mock.Anything, int64(42), "摘要", "摘要").Return(nil).Once()

	n := newTestNotifier(sender, false)
	require.NoError(t, n.Deliver(context.Background(), topic, "摘要"))
	sender.AssertExpectations(t)
}

func TestDeliver_RetryOnce(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendToSelf", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("flood wait")).Once()
	sender.On("SendToSelf", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	n := newTestNotifier(sender, true)
	require.NoError(t, n.Deliver(context.Background(), topic, "摘要"))
	sender.AssertNumberOfCalls(t, "SendToSelf", 2)
}

func TestDeliver_GivesUpAfterTwoAttempts(t *testing.T) {
	sendErr := errors.New("chat not found")
	sender := new(mockSender)
	sender.On("ReplyInTopic", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(sendErr)

	n := newTestNotifier(sender, false)
	err := n.Deliver(context.Background(), topic, "摘要")
	assert.ErrorIs(t, err, sendErr)
	sender.AssertNumberOfCalls(t, "ReplyInTopic", 2)
}

func TestDeliver_EmptyContent(t *testing.T) {
	sender := new(mockSender)
	n := newTestNotifier(sender, true)
	require.NoError(t, n.Deliver(context.Background(), topic, "  "))
	sender.AssertNotCalled(t, "SendToSelf", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyEmptyRun(t *testing.T) {
	want := "过去 8 小时没有发送任何摘要。\n无新消息的话题: Alpha, Beta\n摘要失败的话题: Gamma"
	sender := new(mockSender)
	sender.On("SendToSelf", mock.Anything, want, want).Return(nil).Once()

	n := newTestNotifier(sender, true)
	require.NoError(t, n.NotifyEmptyRun(context.Background(), 8, []string{"Alpha", "Beta"}, []string{"Gamma"}))
	sender.AssertExpectations(t)
}
