// Package intent classifies free-text task content into an (intent,
// workflow) pair via ordered keyword rules, grounded on the original
// service's INTENT_RULES / detect_intent.
package intent

import "strings"

// Result is the classifier's output: a tag plus the workflow it selects.
type Result struct {
	Intent   string
	Workflow string
}

// Default is returned when no rule matches.
var Default = Result{Intent: "general", Workflow: "echo"}

type rule struct {
	result   Result
	keywords []string
}

// rules is exhaustive and ordered; the first matching keyword across rules
// in this declared order wins. Keyword matching is a case-insensitive
// substring test.
var rules = []rule{
	{
		result:   Result{Intent: "deployment_check", Workflow: "deployment_check"},
		keywords: []string{"部署", "上线", "发布", "deployment", "health", "健康", "接口", "模型"},
	},
	{
		result:   Result{Intent: "report_query", Workflow: "report_stub"},
		keywords: []string{"查询", "报表", "统计", "数据", "report", "流量"},
	},
	{
		result: Result{Intent: "travel_plan", Workflow: "travel_plan"},
		keywords: []string{
			"旅游", "旅行", "行程", "攻略", "机票", "航班", "高铁", "火车",
			"12306", "携程", "美团", "住宿", "酒店", "比价",
		},
	},
}

// Detect returns the first matching rule's result, or Default.
func Detect(content string) Result {
	lower := strings.ToLower(content)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return r.result
			}
		}
	}
	return Default
}
