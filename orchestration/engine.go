package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tripmind/tripmind/core"
	"github.com/tripmind/tripmind/resilience"
)

// EngineConfig tunes the workflow engine.
type EngineConfig struct {
	// MaxConcurrentWorkflows bounds how many workflows execute at once.
	MaxConcurrentWorkflows int
	// DefaultStepTimeout applies to steps that do not set their own.
	DefaultStepTimeout time.Duration
	// AbortOnStepFailure stops a sequential workflow at the first
	// unrecovered step failure instead of recording it and continuing.
	AbortOnStepFailure bool
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentWorkflows: 50,
		DefaultStepTimeout:     30 * time.Second,
	}
}

// WorkflowEngine executes workflows produced by the template manager.
// Steps are scheduled per the workflow's execution strategy; failed
// steps are offered to the error handler before they are allowed to
// fail.
type WorkflowEngine struct {
	invoker      core.ToolInvoker
	errorHandler *resilience.WorkflowErrorHandler
	config       EngineConfig
	logger       core.Logger
	metrics      core.MetricsSink
	sem          chan struct{}
}

// NewWorkflowEngine creates an engine. The error handler may be nil, in
// which case step failures are recorded without recovery attempts.
func NewWorkflowEngine(invoker core.ToolInvoker, errorHandler *resilience.WorkflowErrorHandler, config EngineConfig, logger core.Logger, metrics core.MetricsSink) *WorkflowEngine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = &core.NoOpMetricsSink{}
	}
	if config.MaxConcurrentWorkflows <= 0 {
		config.MaxConcurrentWorkflows = 50
	}
	if config.DefaultStepTimeout <= 0 {
		config.DefaultStepTimeout = 30 * time.Second
	}
	return &WorkflowEngine{
		invoker:      invoker,
		errorHandler: errorHandler,
		config:       config,
		logger:       logger,
		metrics:      metrics,
		sem:          make(chan struct{}, config.MaxConcurrentWorkflows),
	}
}

// ExecuteWorkflow runs a workflow to completion and aggregates the
// result. It blocks while the engine is at its concurrency limit.
func (e *WorkflowEngine) ExecuteWorkflow(ctx context.Context, wf *core.Workflow, userCtx *core.UserContext, it core.Intent) (*core.WorkflowResult, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for workflow slot: %w", core.ErrWorkflowCancelled)
	}

	start := time.Now()
	wf.Status = core.WorkflowRunning
	wf.StartTime = &start

	e.logger.Info("Workflow started", map[string]interface{}{
		"workflow_id": wf.ID,
		"workflow":    wf.Name,
		"strategy":    string(wf.ExecutionStrategy),
		"steps":       len(wf.Steps),
	})

	ec := NewExecutionContext(wf, it, userCtx)

	var execErr error
	switch wf.ExecutionStrategy {
	case core.StrategySequential:
		execErr = e.executeSequential(ctx, ec, wf)
	case core.StrategyParallel:
		execErr = e.executeParallel(ctx, ec, wf)
	case core.StrategyConditional:
		execErr = e.executeConditional(ctx, ec, wf)
	default:
		execErr = fmt.Errorf("strategy %q: %w", wf.ExecutionStrategy, core.ErrUnsupportedStrategy)
	}

	end := time.Now()
	wf.EndTime = &end
	result := e.aggregate(wf, execErr, end.Sub(start))

	e.metrics.RecordOperation("engine.execute_workflow", end.Sub(start), result.Success, map[string]interface{}{
		"workflow": wf.Name,
		"strategy": string(wf.ExecutionStrategy),
		"status":   string(result.Status),
	})
	e.logger.Info("Workflow finished", map[string]interface{}{
		"workflow_id": wf.ID,
		"status":      string(result.Status),
		"duration_ms": result.ExecutionTimeMS,
	})
	return result, execErr
}

// executeSequential runs steps in declaration order. A step whose
// dependencies did not complete, or whose condition is false, is
// skipped. A failed step fails the workflow only when
// AbortOnStepFailure is set; otherwise it is recorded and execution
// continues.
func (e *WorkflowEngine) executeSequential(ctx context.Context, ec *ExecutionContext, wf *core.Workflow) error {
	for _, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrWorkflowCancelled, err)
		}
		if !e.dependenciesCompleted(wf, step) {
			e.skipStep(step, "dependency did not complete")
			continue
		}
		if !e.conditionHolds(ec, step) {
			e.skipStep(step, "condition not met")
			continue
		}
		if err := e.executeStep(ctx, ec, wf, step); err != nil {
			if e.config.AbortOnStepFailure {
				return err
			}
		}
	}
	return nil
}

// executeParallel groups steps into dependency levels and runs each
// level's steps concurrently. A step's level is one past its deepest
// dependency; steps whose dependencies cannot be placed are skipped
// with a circular-dependency warning.
func (e *WorkflowEngine) executeParallel(ctx context.Context, ec *ExecutionContext, wf *core.Workflow) error {
	levels, unplaced := dependencyLevels(wf.Steps)
	for _, step := range unplaced {
		e.logger.Warn("Step has unsatisfiable dependencies, possible cycle", map[string]interface{}{
			"workflow_id": wf.ID,
			"step":        step.ID,
			"depends_on":  step.DependsOn,
		})
		e.skipStep(step, "unsatisfiable dependencies")
	}

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrWorkflowCancelled, err)
		}
		var wg sync.WaitGroup
		for _, step := range level {
			if !e.dependenciesCompleted(wf, step) {
				e.skipStep(step, "dependency did not complete")
				continue
			}
			if !e.conditionHolds(ec, step) {
				e.skipStep(step, "condition not met")
				continue
			}
			wg.Add(1)
			go func(s *core.WorkflowStep) {
				defer wg.Done()
				e.executeStep(ctx, ec, wf, s)
			}(step)
		}
		wg.Wait()
	}
	return nil
}

// executeConditional repeatedly scans for runnable steps, re-evaluating
// conditions as earlier results land. A full pass with zero progress
// means the remaining conditions can never become true; those steps are
// skipped.
func (e *WorkflowEngine) executeConditional(ctx context.Context, ec *ExecutionContext, wf *core.Workflow) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrWorkflowCancelled, err)
		}
		progressed := false
		pendingLeft := false
		for _, step := range wf.Steps {
			if step.Status != core.StepPending {
				continue
			}
			if !allDependenciesSettled(wf, step) {
				pendingLeft = true
				continue
			}
			if !e.dependenciesCompleted(wf, step) {
				e.skipStep(step, "dependency did not complete")
				progressed = true
				continue
			}
			if !e.conditionHolds(ec, step) {
				// Not final: a step later in this pass may produce the
				// data the condition reads. Re-evaluated next scan.
				pendingLeft = true
				continue
			}
			e.executeStep(ctx, ec, wf, step)
			progressed = true
		}
		if !progressed {
			if pendingLeft {
				e.logger.Warn("Conditional workflow made no progress, skipping remaining steps", map[string]interface{}{
					"workflow_id": wf.ID,
				})
				for _, step := range wf.Steps {
					if step.Status == core.StepPending {
						e.skipStep(step, "no runnable path")
					}
				}
			}
			return nil
		}
		if done := allSettled(wf); done {
			return nil
		}
	}
}

// executeStep resolves inputs, invokes the tool with a per-step
// timeout, and stores the shaped result. On failure it consults the
// error handler; a successful recovery completes the step with the
// recovered data.
func (e *WorkflowEngine) executeStep(ctx context.Context, ec *ExecutionContext, wf *core.Workflow, step *core.WorkflowStep) error {
	start := time.Now()
	step.Status = core.StepRunning
	step.StartTime = &start

	inputs, err := ec.GetMappedData(step.InputMapping)
	if err != nil {
		return e.failStep(step, fmt.Errorf("resolving inputs for step %s: %w", step.ID, err))
	}
	e.mergeIdentity(ec, inputs)

	timeout := e.config.DefaultStepTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds * float64(time.Second))
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, invokeErr := e.invoke(stepCtx, step, inputs)
	if invokeErr != nil && stepCtx.Err() == context.DeadlineExceeded {
		invokeErr = fmt.Errorf("step %s after %s: %w", step.ID, timeout, core.ErrStepTimeout)
	}

	if invokeErr != nil && e.errorHandler != nil {
		policy := resilience.DefaultRetryPolicy()
		policy.MaxRetries = step.MaxRetries
		recovery := e.errorHandler.HandleError(ctx, invokeErr, &resilience.ErrorContext{
			ToolID:     step.ToolID,
			ToolName:   step.ToolName,
			StepID:     step.ID,
			WorkflowID: wf.ID,
			Attempt:    step.RetryCount,
			Inputs:     inputs,
		}, policy, step.FallbackTools)
		if recovery.Success {
			raw = recovery.Data
			invokeErr = nil
			e.logger.Info("Step recovered", map[string]interface{}{
				"workflow_id": wf.ID,
				"step":        step.ID,
				"strategy":    string(recovery.Strategy),
				"used_tool":   recovery.UsedTool,
			})
		}
	}

	if invokeErr != nil {
		return e.failStep(step, invokeErr)
	}

	shaped := ApplyOutputMapping(raw, step.OutputMapping)
	ec.SetStepResult(step.ID, shaped)

	end := time.Now()
	step.EndTime = &end
	step.Status = core.StepCompleted
	step.Result = shaped

	e.metrics.RecordOperation("engine.execute_step", end.Sub(start), true, map[string]interface{}{
		"workflow": wf.Name,
		"step":     step.ID,
		"tool":     step.ToolName,
	})
	return nil
}

func (e *WorkflowEngine) invoke(ctx context.Context, step *core.WorkflowStep, inputs map[string]interface{}) (map[string]interface{}, error) {
	if step.ToolName == IntelligentMergerTool {
		return mergeResults(inputs), nil
	}
	if e.invoker == nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, core.ErrToolNotFound)
	}
	return e.invoker.Invoke(ctx, step.ToolName, inputs)
}

// mergeIdentity adds the caller's identity to the inputs without
// overwriting mapped values.
func (e *WorkflowEngine) mergeIdentity(ec *ExecutionContext, inputs map[string]interface{}) {
	if _, ok := inputs["user_id"]; !ok {
		if v, found := ec.Resolve("context.user_id"); found {
			inputs["user_id"] = v
		}
	}
	if _, ok := inputs["mbti_type"]; !ok {
		if v, found := ec.Resolve("context.mbti_type"); found {
			inputs["mbti_type"] = v
		}
	}
}

func (e *WorkflowEngine) failStep(step *core.WorkflowStep, err error) error {
	end := time.Now()
	step.EndTime = &end
	step.Status = core.StepFailed
	step.Error = err.Error()
	e.logger.Error("Step failed", map[string]interface{}{
		"step":  step.ID,
		"tool":  step.ToolName,
		"error": err.Error(),
	})
	return err
}

func (e *WorkflowEngine) skipStep(step *core.WorkflowStep, reason string) {
	step.Status = core.StepSkipped
	e.logger.Debug("Step skipped", map[string]interface{}{
		"step":   step.ID,
		"reason": reason,
	})
}

func (e *WorkflowEngine) dependenciesCompleted(wf *core.Workflow, step *core.WorkflowStep) bool {
	for _, dep := range step.DependsOn {
		d := wf.Step(dep)
		if d == nil || d.Status != core.StepCompleted {
			return false
		}
	}
	return true
}

func (e *WorkflowEngine) conditionHolds(ec *ExecutionContext, step *core.WorkflowStep) bool {
	if step.Condition == "" {
		return true
	}
	return ParseCondition(step.Condition).eval(ec)
}

func allDependenciesSettled(wf *core.Workflow, step *core.WorkflowStep) bool {
	for _, dep := range step.DependsOn {
		d := wf.Step(dep)
		if d == nil {
			continue
		}
		if d.Status == core.StepPending || d.Status == core.StepRunning {
			return false
		}
	}
	return true
}

func allSettled(wf *core.Workflow) bool {
	for _, step := range wf.Steps {
		if step.Status == core.StepPending || step.Status == core.StepRunning {
			return false
		}
	}
	return true
}

// dependencyLevels partitions steps so that every step lands one level
// past its deepest dependency. Steps that cannot be placed after N
// passes (N = number of steps) participate in a cycle or depend on a
// missing id; they are returned separately.
func dependencyLevels(steps []*core.WorkflowStep) ([][]*core.WorkflowStep, []*core.WorkflowStep) {
	levelOf := make(map[string]int, len(steps))
	remaining := append([]*core.WorkflowStep(nil), steps...)

	for pass := 0; pass < len(steps) && len(remaining) > 0; pass++ {
		var next []*core.WorkflowStep
		for _, step := range remaining {
			level := 0
			placeable := true
			for _, dep := range step.DependsOn {
				depLevel, ok := levelOf[dep]
				if !ok {
					placeable = false
					break
				}
				if depLevel+1 > level {
					level = depLevel + 1
				}
			}
			if placeable {
				levelOf[step.ID] = level
			} else {
				next = append(next, step)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}

	maxLevel := -1
	for _, l := range levelOf {
		if l > maxLevel {
			maxLevel = l
		}
	}
	levels := make([][]*core.WorkflowStep, maxLevel+1)
	for _, step := range steps {
		if l, ok := levelOf[step.ID]; ok {
			levels[l] = append(levels[l], step)
		}
	}
	return levels, remaining
}

// aggregate folds per-step outcomes into a WorkflowResult. Restaurants
// and recommendations found in step results are merged into the
// top-level convenience lists.
func (e *WorkflowEngine) aggregate(wf *core.Workflow, execErr error, elapsed time.Duration) *core.WorkflowResult {
	result := &core.WorkflowResult{
		WorkflowID:      wf.ID,
		Steps:           make([]core.StepResultSummary, 0, len(wf.Steps)),
		Data:            make(map[string]interface{}),
		ExecutionTimeMS: elapsed.Milliseconds(),
	}

	completed, failed := 0, 0
	for _, step := range wf.Steps {
		summary := core.StepResultSummary{
			StepID:   step.ID,
			StepName: step.ToolName,
			Status:   step.Status,
			Result:   step.Result,
			Error:    step.Error,
		}
		if step.StartTime != nil && step.EndTime != nil {
			summary.ExecutionTimeMS = step.EndTime.Sub(*step.StartTime).Milliseconds()
		}
		result.Steps = append(result.Steps, summary)

		switch step.Status {
		case core.StepCompleted:
			completed++
			result.Data[step.ID] = step.Result
			result.Restaurants = append(result.Restaurants, listField(step.Result, "restaurants")...)
			result.Recommendations = append(result.Recommendations, listField(step.Result, "recommendations")...)
		case core.StepFailed:
			failed++
		}
	}

	switch {
	case execErr != nil && errors.Is(execErr, core.ErrWorkflowCancelled):
		result.Status = core.WorkflowCancelled
		result.Error = execErr.Error()
	case execErr != nil:
		result.Status = core.WorkflowFailed
		result.Error = execErr.Error()
	case completed == 0 && failed > 0:
		result.Status = core.WorkflowFailed
		result.Error = "all steps failed"
	default:
		result.Status = core.WorkflowCompleted
	}
	result.Success = result.Status == core.WorkflowCompleted
	wf.Status = result.Status
	wf.Results = result.Data
	return result
}

func listField(result map[string]interface{}, key string) []interface{} {
	if result == nil {
		return nil
	}
	switch v := result[key].(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// mergeResults implements the intelligent-merger pseudo-tool: it
// collects every *_results list from its inputs, deduplicates entries
// by id (keeping the higher score), filters by score_threshold, and
// sorts by score descending.
func mergeResults(inputs map[string]interface{}) map[string]interface{} {
	threshold := 0.0
	if v, ok := toFloat(inputs["score_threshold"]); ok {
		threshold = v
	}

	type scored struct {
		entry map[string]interface{}
		score float64
	}
	byID := make(map[string]scored)
	var anonymous []scored
	sources := 0

	for key, value := range inputs {
		if !strings.HasSuffix(key, "_results") {
			continue
		}
		list, ok := value.([]interface{})
		if !ok {
			continue
		}
		sources++
		for _, item := range list {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			score := 0.0
			if v, ok := toFloat(entry["score"]); ok {
				score = v
			}
			if score > 0 && score < threshold {
				continue
			}
			id, _ := entry["id"].(string)
			if id == "" {
				id, _ = entry["name"].(string)
			}
			if id == "" {
				anonymous = append(anonymous, scored{entry, score})
				continue
			}
			if prev, ok := byID[id]; !ok || score > prev.score {
				byID[id] = scored{entry, score}
			}
		}
	}

	merged := make([]scored, 0, len(byID)+len(anonymous))
	for _, s := range byID {
		merged = append(merged, s)
	}
	merged = append(merged, anonymous...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].score > merged[j].score })

	restaurants := make([]interface{}, len(merged))
	for i, s := range merged {
		restaurants[i] = s.entry
	}
	return map[string]interface{}{
		"restaurants":   restaurants,
		"total_count":   len(restaurants),
		"merge_sources": sources,
	}
}
