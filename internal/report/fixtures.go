package report

import (
	"github.com/ashureev/talent-manual/internal/domain"
)

// StartFailurePrompt is shown in place of the first question when a session
// cannot be started.
const StartFailurePrompt = "无法连接到咨询师。请刷新重试。"

var fallbackTraits = []string{"错误", "重试", "连接"}

// TestFixture is the static report of test_report mode. It is kept in the
// legacy key scheme on purpose so the fixture also exercises Normalize.
func TestFixture() domain.Report {
	return Normalize(payloadOf(map[string]any{
		keyLegacyKeywords: []string{"直觉敏锐", "共情者", "战略家"},
		keyLegacyAnalysis: "这是一个测试报告。如果能看到这个，说明报告展示工作正常，问题出在后端返回的数据格式或处理上。",
		keyLegacyShadow:   "测试阴影：如果看不到报告，说明是展示层出了问题。",
		keyActionGuide:    "请检查后端日志，确认模型返回的 JSON 是否符合要求。",
	}))
}

// QuickFallback replaces a random report that could not be produced.
func QuickFallback() domain.Report {
	return domain.Report{
		CoreTraits:   append([]string(nil), fallbackTraits...),
		DeepAnalysis: "生成随机报告时发生错误。",
		NotSuitable:  "请检查后端日志。",
		ActionGuide:  "请刷新页面重试。",
		Careers:      []domain.Career{},
	}
}

// GenerationFallback replaces a report that could not be generated from a
// finished conversation. The transcript is attached so it can be inspected.
func GenerationFallback(history []domain.Turn) domain.Report {
	return domain.Report{
		CoreTraits:      append([]string(nil), fallbackTraits...),
		DeepAnalysis:    "生成报告时发生错误，请检查网络连接或重试。",
		NotSuitable:     "技术故障也是一种提醒，让我们停下来深呼吸。",
		ActionGuide:     "请刷新页面重新开始。",
		Careers:         []domain.Career{},
		FullChatHistory: domain.CloneTurns(history),
	}
}
