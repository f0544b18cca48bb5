package orchestration

import (
	"testing"

	"github.com/tripmind/tripmind/core"
)

func testContext(t *testing.T, stepResults map[string]map[string]interface{}) *ExecutionContext {
	t.Helper()
	wf := &core.Workflow{
		ID:   "wf-1",
		Name: "test",
		ContextData: map[string]interface{}{
			"mbti_axis_ei": "E",
		},
	}
	it := core.Intent{
		Type:       core.IntentRecommendation,
		Confidence: 0.8,
		Parameters: map[string]interface{}{"cuisine_type": "thai"},
	}
	userCtx := &core.UserContext{UserID: "u1", MBTIType: "ENFP"}
	ec := NewExecutionContext(wf, it, userCtx)
	for id, r := range stepResults {
		ec.SetStepResult(id, r)
	}
	return ec
}

func TestConditionNumericComparison(t *testing.T) {
	ec := testContext(t, map[string]map[string]interface{}{
		"search": {"total_count": 3},
	})

	cases := []struct {
		expr string
		want bool
	}{
		{"search.total_count > 0", true},
		{"search.total_count > 3", false},
		{"search.total_count >= 3", true},
		{"search.total_count < 10", true},
		{"search.total_count <= 2", false},
		{"search.total_count != 0", true},
	}
	for _, tc := range cases {
		if got := ParseCondition(tc.expr).eval(ec); got != tc.want {
			t.Errorf("%q = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestConditionStringEquality(t *testing.T) {
	ec := testContext(t, nil)

	cases := []struct {
		expr string
		want bool
	}{
		{"workflow.mbti_axis_ei == E", true},
		{"workflow.mbti_axis_ei == I", false},
		{"workflow.mbti_axis_ei == 'E'", true},
		{`workflow.mbti_axis_ei == "E"`, true},
		{"intent.parameters.cuisine_type == thai", true},
		{"context.mbti_type == ENFP", true},
	}
	for _, tc := range cases {
		if got := ParseCondition(tc.expr).eval(ec); got != tc.want {
			t.Errorf("%q = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestConditionExists(t *testing.T) {
	ec := testContext(t, map[string]map[string]interface{}{
		"analyze": {"scores": map[string]interface{}{"positive": 0.7}},
	})

	if !ParseCondition("exists analyze.scores").eval(ec) {
		t.Error("expected exists analyze.scores to hold")
	}
	if ParseCondition("exists analyze.missing").eval(ec) {
		t.Error("expected exists analyze.missing to be false")
	}
	if ParseCondition("exists nostep.field").eval(ec) {
		t.Error("expected exists on unknown step to be false")
	}
}

func TestConditionBooleanOperators(t *testing.T) {
	ec := testContext(t, map[string]map[string]interface{}{
		"search": {"total_count": 3},
	})

	if !ParseCondition("search.total_count > 0 && workflow.mbti_axis_ei == E").eval(ec) {
		t.Error("expected conjunction to hold")
	}
	if ParseCondition("search.total_count > 5 && workflow.mbti_axis_ei == E").eval(ec) {
		t.Error("expected conjunction to fail")
	}
	if !ParseCondition("search.total_count > 5 || workflow.mbti_axis_ei == E").eval(ec) {
		t.Error("expected disjunction to hold")
	}
}

func TestConditionUnparseableDefaultsTrue(t *testing.T) {
	ec := testContext(t, nil)

	for _, expr := range []string{
		"completely unparseable",
		"search.total_count ~ 3",
		"???",
	} {
		if !ParseCondition(expr).eval(ec) {
			t.Errorf("unparseable condition %q must evaluate to true", expr)
		}
	}
}

func TestConditionMissingPathComparisons(t *testing.T) {
	ec := testContext(t, nil)

	// A numeric comparison against an unresolved path cannot hold.
	if ParseCondition("missing.count > 0").eval(ec) {
		t.Error("comparison on missing path should be false")
	}
}
