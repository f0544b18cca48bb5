package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tripmind/tripmind/core"
	"github.com/tripmind/tripmind/resilience"
)

func newTestEngine(invoker core.ToolInvoker) *WorkflowEngine {
	return NewWorkflowEngine(invoker, nil, DefaultEngineConfig(), nil, nil)
}

func stepWith(id, tool string, opts func(*core.WorkflowStep)) *core.WorkflowStep {
	s := &core.WorkflowStep{
		ID:       id,
		ToolID:   tool,
		ToolName: tool,
		Status:   core.StepPending,
	}
	if opts != nil {
		opts(s)
	}
	return s
}

func testWorkflow(strategy core.ExecutionStrategy, steps ...*core.WorkflowStep) *core.Workflow {
	return &core.Workflow{
		ID:                "wf-test",
		Name:              "test",
		Steps:             steps,
		ExecutionStrategy: strategy,
		Status:            core.WorkflowPending,
		CreatedAt:         time.Now(),
		ContextData:       map[string]interface{}{},
	}
}

func TestSequentialExecutionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	invoker := NewLocalToolInvoker()
	for _, name := range []string{"tool_a", "tool_b"} {
		name := name
		invoker.Register(name, func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
			mu.Lock()
			order = append(order, toolName)
			mu.Unlock()
			return map[string]interface{}{"ok": true}, nil
		})
	}

	wf := testWorkflow(core.StrategySequential,
		stepWith("a", "tool_a", nil),
		stepWith("b", "tool_b", func(s *core.WorkflowStep) { s.DependsOn = []string{"a"} }),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(order) != 2 || order[0] != "tool_a" || order[1] != "tool_b" {
		t.Errorf("execution order = %v", order)
	}
}

func TestConditionFalseSkipsStep(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("search", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"total_count": 0}, nil
	})
	invoker.Register("recommend", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		t.Error("recommend must not run when the condition is false")
		return nil, nil
	})

	wf := testWorkflow(core.StrategySequential,
		stepWith("search", "search", nil),
		stepWith("recommend", "recommend", func(s *core.WorkflowStep) {
			s.DependsOn = []string{"search"}
			s.Condition = "search.total_count > 0"
		}),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if wf.Step("recommend").Status != core.StepSkipped {
		t.Errorf("recommend status = %s, want skipped", wf.Step("recommend").Status)
	}
	if _, ok := result.Data["recommend"]; ok {
		t.Error("skipped step must not contribute data")
	}
	if !result.Success {
		t.Error("a skipped branch should not fail the workflow")
	}
}

func TestParallelDependencyLevels(t *testing.T) {
	var mu sync.Mutex
	started := make(map[string]time.Time)
	invoker := NewLocalToolInvoker()
	record := func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		mu.Lock()
		started[toolName] = time.Now()
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return map[string]interface{}{"restaurants": []interface{}{
			map[string]interface{}{"id": toolName},
		}}, nil
	}
	for _, name := range []string{"s1", "s2", "merge"} {
		invoker.Register(name, record)
	}

	wf := testWorkflow(core.StrategyParallel,
		stepWith("s1", "s1", nil),
		stepWith("s2", "s2", nil),
		stepWith("merge", "merge", func(s *core.WorkflowStep) { s.DependsOn = []string{"s1", "s2"} }),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if started["merge"].Before(started["s1"].Add(5 * time.Millisecond)) {
		t.Error("merge started before its dependency level finished")
	}
}

func TestParallelCircularDependencySkipped(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("ok", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	wf := testWorkflow(core.StrategyParallel,
		stepWith("free", "ok", nil),
		stepWith("x", "ok", func(s *core.WorkflowStep) { s.DependsOn = []string{"y"} }),
		stepWith("y", "ok", func(s *core.WorkflowStep) { s.DependsOn = []string{"x"} }),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if wf.Step("x").Status != core.StepSkipped || wf.Step("y").Status != core.StepSkipped {
		t.Errorf("cyclic steps should be skipped: x=%s y=%s", wf.Step("x").Status, wf.Step("y").Status)
	}
	if wf.Step("free").Status != core.StepCompleted {
		t.Errorf("independent step should complete, got %s", wf.Step("free").Status)
	}
	if !result.Success {
		t.Error("workflow should still succeed on the acyclic portion")
	}
}

func TestRequiredMappingFailureFailsStep(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("rec", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	wf := testWorkflow(core.StrategySequential,
		stepWith("rec", "rec", func(s *core.WorkflowStep) {
			s.InputMapping = []core.DataMapping{
				{SourceField: "missing.value", TargetField: "v", Required: true},
			}
		}),
	)

	result, _ := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if wf.Step("rec").Status != core.StepFailed {
		t.Errorf("step status = %s, want failed", wf.Step("rec").Status)
	}
	if result.Success {
		t.Error("workflow with its only step failed should not succeed")
	}
}

func TestStepTimeout(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("slow", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-time.After(time.Second):
			return map[string]interface{}{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	wf := testWorkflow(core.StrategySequential,
		stepWith("slow", "slow", func(s *core.WorkflowStep) { s.TimeoutSeconds = 0.02 }),
	)

	newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	step := wf.Step("slow")
	if step.Status != core.StepFailed {
		t.Fatalf("step status = %s, want failed", step.Status)
	}
	if step.Error == "" {
		t.Error("expected error text on timed-out step")
	}
}

func TestSequentialContinuesAfterFailure(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("bad", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	})
	invoker.Register("good", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})

	wf := testWorkflow(core.StrategySequential,
		stepWith("bad", "bad", nil),
		stepWith("good", "good", nil),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if wf.Step("good").Status != core.StepCompleted {
		t.Errorf("independent step should run after a failure, got %s", wf.Step("good").Status)
	}
	if !result.Success {
		t.Error("best-effort sequential run with one completed step should succeed")
	}
}

func TestAbortOnStepFailure(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("bad", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	})
	invoker.Register("good", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	cfg := DefaultEngineConfig()
	cfg.AbortOnStepFailure = true
	engine := NewWorkflowEngine(invoker, nil, cfg, nil, nil)

	wf := testWorkflow(core.StrategySequential,
		stepWith("bad", "bad", nil),
		stepWith("good", "good", nil),
	)

	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err == nil {
		t.Error("expected workflow error with abort enabled")
	}
	if wf.Step("good").Status == core.StepCompleted {
		t.Error("later step must not run after abort")
	}
	if result.Success {
		t.Error("aborted workflow should not succeed")
	}
}

func TestFallbackRecoveryCompletesStep(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("primary", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("service unavailable")
	})
	invoker.Register("backup", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"restaurants": []interface{}{map[string]interface{}{"id": "r1"}}}, nil
	})

	handler := resilience.NewWorkflowErrorHandler(invoker, nil, nil, nil)
	engine := NewWorkflowEngine(invoker, handler, DefaultEngineConfig(), nil, nil)

	wf := testWorkflow(core.StrategySequential,
		stepWith("search", "primary", func(s *core.WorkflowStep) {
			s.FallbackTools = []string{"backup"}
		}),
	)

	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if wf.Step("search").Status != core.StepCompleted {
		t.Fatalf("expected recovered step completed, got %s", wf.Step("search").Status)
	}
	if len(result.Restaurants) != 1 {
		t.Errorf("expected recovered data aggregated, got %v", result.Restaurants)
	}
}

func TestAggregationMergesRestaurants(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("s", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"restaurants":     []interface{}{map[string]interface{}{"id": "r1"}},
			"recommendations": []interface{}{map[string]interface{}{"id": "rec1"}},
		}, nil
	})

	wf := testWorkflow(core.StrategySequential,
		stepWith("a", "s", nil),
		stepWith("b", "s", nil),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Restaurants) != 2 {
		t.Errorf("expected 2 merged restaurants, got %d", len(result.Restaurants))
	}
	if len(result.Recommendations) != 2 {
		t.Errorf("expected 2 merged recommendations, got %d", len(result.Recommendations))
	}
}

func TestUnsupportedStrategy(t *testing.T) {
	wf := testWorkflow(core.ExecutionStrategy("mystery"), stepWith("a", "x", nil))

	result, err := newTestEngine(NewLocalToolInvoker()).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if !errors.Is(err, core.ErrUnsupportedStrategy) {
		t.Errorf("expected ErrUnsupportedStrategy, got %v", err)
	}
	if result == nil || result.Status != core.WorkflowFailed {
		t.Errorf("expected failed result, got %+v", result)
	}
}

func TestIntelligentMergerBuiltin(t *testing.T) {
	out := mergeResults(map[string]interface{}{
		"score_threshold": 0.5,
		"s1_results": []interface{}{
			map[string]interface{}{"id": "a", "score": 0.9},
			map[string]interface{}{"id": "b", "score": 0.3},
		},
		"s2_results": []interface{}{
			map[string]interface{}{"id": "a", "score": 0.7},
			map[string]interface{}{"id": "c", "score": 0.8},
		},
	})

	restaurants, _ := out["restaurants"].([]interface{})
	if len(restaurants) != 2 {
		t.Fatalf("expected 2 merged entries (dedup + threshold), got %d: %v", len(restaurants), restaurants)
	}
	first, _ := restaurants[0].(map[string]interface{})
	if first["id"] != "a" || first["score"] != 0.9 {
		t.Errorf("expected highest-scoring duplicate first, got %v", first)
	}
	if out["merge_sources"] != 2 {
		t.Errorf("merge_sources = %v", out["merge_sources"])
	}
}

func TestConditionalStrategyRunsMatchingBranches(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("rec", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	wf := testWorkflow(core.StrategyConditional,
		stepWith("e_branch", "rec", func(s *core.WorkflowStep) { s.Condition = "workflow.axis == E" }),
		stepWith("i_branch", "rec", func(s *core.WorkflowStep) { s.Condition = "workflow.axis == I" }),
	)
	wf.ContextData["axis"] = "E"

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if wf.Step("e_branch").Status != core.StepCompleted {
		t.Errorf("matching branch = %s, want completed", wf.Step("e_branch").Status)
	}
	if wf.Step("i_branch").Status != core.StepSkipped {
		t.Errorf("non-matching branch = %s, want skipped", wf.Step("i_branch").Status)
	}
	if !result.Success {
		t.Error("expected success")
	}
}

func TestConditionalReEvaluatesAfterSiblingCompletes(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("produce", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"count": 2}, nil
	})
	invoker.Register("consume", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	// The consumer is declared first and its condition reads data that
	// only exists after the producer runs. It must stay pending through
	// the first scan and execute on the second.
	wf := testWorkflow(core.StrategyConditional,
		stepWith("consumer", "consume", func(s *core.WorkflowStep) { s.Condition = "producer.count > 0" }),
		stepWith("producer", "produce", nil),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if err != nil {
		t.Fatal(err)
	}
	if wf.Step("producer").Status != core.StepCompleted {
		t.Errorf("producer = %s, want completed", wf.Step("producer").Status)
	}
	if wf.Step("consumer").Status != core.StepCompleted {
		t.Errorf("consumer = %s, want completed", wf.Step("consumer").Status)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
}

func TestStepRetryBudgetHonored(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	invoker := NewLocalToolInvoker()
	invoker.Register("flaky", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("request timed out")
		}
		return map[string]interface{}{"ok": true}, nil
	})

	handler := resilience.NewWorkflowErrorHandler(invoker, nil, nil, nil)
	engine := NewWorkflowEngine(invoker, handler, DefaultEngineConfig(), nil, nil)

	wf := testWorkflow(core.StrategySequential,
		stepWith("flaky", "flaky", func(s *core.WorkflowStep) { s.MaxRetries = 0 }),
	)

	result, _ := engine.ExecuteWorkflow(context.Background(), wf, nil, core.Intent{})
	if calls != 1 {
		t.Errorf("calls = %d, a zero retry budget must not retry", calls)
	}
	if wf.Step("flaky").Status != core.StepFailed {
		t.Errorf("step status = %s, want failed", wf.Step("flaky").Status)
	}
	if result.Success {
		t.Error("workflow with its only step failed should not succeed")
	}
}

func TestCancelledWorkflowMarksResultCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	invoker := NewLocalToolInvoker()
	invoker.Register("first", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		cancel()
		return nil, errors.New("interrupted")
	})
	invoker.Register("second", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		t.Error("second step must not run after cancellation")
		return nil, nil
	})

	wf := testWorkflow(core.StrategySequential,
		stepWith("first", "first", nil),
		stepWith("second", "second", nil),
	)

	result, err := newTestEngine(invoker).ExecuteWorkflow(ctx, wf, nil, core.Intent{})
	if !errors.Is(err, core.ErrWorkflowCancelled) {
		t.Fatalf("err = %v, want ErrWorkflowCancelled", err)
	}
	if result.Status != core.WorkflowCancelled {
		t.Errorf("result status = %s, want cancelled", result.Status)
	}
}
