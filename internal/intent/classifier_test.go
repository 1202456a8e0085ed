package intent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectDeploymentCheck(t *testing.T) {
	got := Detect("帮我查一下部署健康状况")
	require.Equal(t, Result{Intent: "deployment_check", Workflow: "deployment_check"}, got)
}

func TestDetectReportQuery(t *testing.T) {
	got := Detect("帮我查数据报表")
	require.Equal(t, Result{Intent: "report_query", Workflow: "report_stub"}, got)
}

func TestDetectTravelPlan(t *testing.T) {
	got := Detect("帮我订一张去北京的机票")
	require.Equal(t, Result{Intent: "travel_plan", Workflow: "travel_plan"}, got)
}

func TestDetectDefaultFallback(t *testing.T) {
	require.Equal(t, Default, Detect("hello world"))
	require.Equal(t, Default, Detect(""))
}

func TestDetectCaseInsensitiveEnglishKeyword(t *testing.T) {
	got := Detect("please check the DEPLOYMENT status")
	require.Equal(t, "deployment_check", got.Workflow)
}

func TestDetectFirstRuleWinsOnOrderedMatch(t *testing.T) {
	// Contains both a deployment keyword and a report keyword; the
	// deployment_check rule is declared first and must win.
	got := Detect("部署之后查询报表")
	require.Equal(t, "deployment_check", got.Workflow)
}
