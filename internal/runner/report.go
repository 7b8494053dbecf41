package runner

import (
	"github.com/fachebot/topic-digest/internal/chat"
	"github.com/fachebot/topic-digest/internal/logger"
	"github.com/fachebot/topic-digest/internal/summarizer"
)

type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeNoActivity  Outcome = "no_activity"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeSendFailed  Outcome = "send_failed"
)

// TopicReport 单个话题的处理结果
type TopicReport struct {
	Topic        chat.Topic
	Outcome      Outcome
	Status       summarizer.Status // 只有生成了摘要时有值
	MessageCount int
	Content      string
	Err          error
}

// Report 一次运行的结果
type Report struct {
	Window     chat.Window
	Topics     []TopicReport
	NoticeSent bool
}

// Count 指定结果的话题数量
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, t := range r.Topics {
		if t.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed 拉取或发送失败的话题数量
func (r *Report) Failed() int {
	return r.Count(OutcomeFetchFailed) + r.Count(OutcomeSendFailed)
}

func (r *Report) titles(outcomes ...Outcome) []string {
	titles := make([]string, 0)
	for _, t := range r.Topics {
		for _, o := range outcomes {
			if t.Outcome == o {
				titles = append(titles, t.Topic.Title)
				break
			}
		}
	}
	return titles
}

// Log 输出运行汇总
func (r *Report) Log() {
	for _, t := range r.Topics {
		switch t.Outcome {
		case OutcomeSent:
			logger.Infof("[Runner] 话题 %q: 已发送, 状态: %s, %d 条消息", t.Topic.Title, t.Status, t.MessageCount)
		case OutcomeNoActivity:
			logger.Infof("[Runner] 话题 %q: 无新消息", t.Topic.Title)
		default:
			logger.Warnf("[Runner] 话题 %q: %s, %v", t.Topic.Title, t.Outcome, t.Err)
		}
	}
	logger.Infof("[Runner] 运行完成: 共 %d 个话题, 发送 %d 个, 无新消息 %d 个, 失败 %d 个",
		len(r.Topics), r.Count(OutcomeSent), r.Count(OutcomeNoActivity), r.Failed())
}
