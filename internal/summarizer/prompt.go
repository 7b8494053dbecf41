package summarizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/fachebot/topic-digest/internal/chat"
)

// SystemInstruction 系统提示词
const SystemInstruction = "你负责总结 Telegram 论坛话题中的讨论。" +
	"如果某条消息违反安全准则，直接忽略这条消息，不要拒绝整个任务。" +
	"输出简洁的要点，包括关键结论、问题和待办事项。"

// promptInput 构造提示词所需的全部信息
type promptInput struct {
	TopicTitle string
	Window     chat.Window
	Location   *time.Location
	Part       int
	Total      int
	Language   string
	VIPName    string
	Messages   []chat.Message
	Reduced    bool // 回退时只保留了最近的消息
}

// senderLabel 显示名优先，同时带上用户名便于识别 VIP
func senderLabel(m chat.Message) string {
	name := strings.TrimSpace(m.SenderName)
	username := strings.TrimPrefix(strings.TrimSpace(m.SenderUsername), "@")
	switch {
	case name != "" && username != "":
		return name + "(@" + username + ")"
	case name != "":
		return name
	case username != "":
		return "@" + username
	default:
		return "未知用户"
	}
}

// transcript 将消息格式化为 "[2006-01-02 15:04] 发送者: 内容"，每条一行
func transcript(messages []chat.Message, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lines := make([]string, len(messages))
	for i, m := range messages {
		text := strings.ReplaceAll(m.Text, "\n", " ")
		lines[i] = fmt.Sprintf("[%s] %s: %s", m.Time.In(loc).Format("2006-01-02 15:04"), senderLabel(m), text)
	}
	return strings.Join(lines, "\n")
}

// buildPrompt 构造确定性的提示词，相同输入总是得到相同输出
func buildPrompt(in promptInput) string {
	var sb strings.Builder

	sb.WriteString("你是这个加密货币社群（Crypto Farming Group）的 AI 秘书。\n")
	fmt.Fprintf(&sb, "以下是「%s」话题过去 %d 小时内的对话记录。\n", in.TopicTitle, in.Window.Hours())
	fmt.Fprintf(&sb, "时间范围：%s\n", in.Window.Label(in.Location))
	if in.Total > 1 {
		fmt.Fprintf(&sb, "由于消息较多，记录被分成 %d 段，这是第 %d/%d 段，只需总结本段内容。\n", in.Total, in.Part, in.Total)
	}
	if in.Reduced {
		fmt.Fprintf(&sb, "注意：以下只包含本段最近的 %d 条消息。\n", len(in.Messages))
	}

	sb.WriteString("\n【背景知识】\n")
	sb.WriteString("1. 群组主要讨论链上交互、刷空投（Airdrop Farming）、DEX/Perp 交易量刷分。\n")
	sb.WriteString("2. 常见术语：自成交（Wash trading）、币安 Alpha 刷分、Gas 优化、多号交互（Sybil）、女巫防范等。\n")

	sb.WriteString("\n【总结要求】\n")
	fmt.Fprintf(&sb, "1. 语言：必须使用%s，标题保持下面给出的原样。\n", in.Language)

	vipPresent := false
	if in.VIPName != "" {
		for _, m := range in.Messages {
			if m.SentBy(in.VIPName) {
				vipPresent = true
				break
			}
		}
	}
	if vipPresent {
		fmt.Fprintf(&sb, "2. VIP 关注：用户「%s」是群组核心。本段记录中有他的发言，请优先总结他的观点或指令，并在单独的段落中列出。\n", in.VIPName)
	} else {
		sb.WriteString("2. 本段记录中没有 VIP 用户的发言，不要输出 VIP 段落。\n")
	}
	sb.WriteString("3. 内容：提取有价值的刷分策略、新的 Alpha 机会或技术细节，忽略纯粹的闲聊。\n")
	sb.WriteString("4. 安全：若包含不当或攻击性言论，直接忽略该部分，不要拒绝处理。\n")

	sb.WriteString("\n【输出格式】严格按以下结构输出，每个条目以 \"- \" 开头：\n")
	sb.WriteString(HotTopicsHeading() + "\n- 列出 1-3 个讨论最热烈的项目或策略\n")
	if vipPresent {
		sb.WriteString(VIPHeading(in.VIPName) + "\n- 他的观点或指令\n")
	}
	sb.WriteString(KeyPointsHeading() + "\n- 条列式总结技术细节或结论\n")

	sb.WriteString("\n对话内容：\n")
	sb.WriteString(transcript(in.Messages, in.Location))
	return sb.String()
}
