package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tripmind/tripmind/core"
)

// RecoveryStrategy names the recovery behaviors the handler can apply.
type RecoveryStrategy string

const (
	StrategyRetry               RecoveryStrategy = "retry"
	StrategyFallback            RecoveryStrategy = "fallback"
	StrategySkip                RecoveryStrategy = "skip"
	StrategyFailFast            RecoveryStrategy = "fail_fast"
	StrategyPartialContinue     RecoveryStrategy = "partial_continue"
	StrategyGracefulDegradation RecoveryStrategy = "graceful_degradation"
)

// defaultStrategyTable maps each error kind to its default strategy.
// The handler overrides the table when the tool's breaker is open
// (forces fallback) or retries are exhausted (escalates to fallback).
var defaultStrategyTable = map[core.ErrorKind]RecoveryStrategy{
	core.ErrorKindTimeout:            StrategyRetry,
	core.ErrorKindNetwork:            StrategyRetry,
	core.ErrorKindAuthentication:     StrategyRetry,
	core.ErrorKindServiceUnavailable: StrategyFallback,
	core.ErrorKindTool:               StrategyFallback,
	core.ErrorKindValidation:         StrategySkip,
	core.ErrorKindDependency:         StrategyPartialContinue,
	core.ErrorKindResource:           StrategyGracefulDegradation,
	core.ErrorKindUnknown:            StrategyRetry,
}

// ErrorContext describes the failed invocation being recovered.
type ErrorContext struct {
	ToolID      string
	ToolName    string
	StepID      string
	WorkflowID  string
	Attempt     int
	Inputs      map[string]interface{}
	PartialData map[string]interface{}
}

// RecoveryResult is the outcome of a recovery attempt.
type RecoveryResult struct {
	Success   bool                   `json:"success"`
	Strategy  RecoveryStrategy       `json:"strategy"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Attempts  int                    `json:"attempts"`
	UsedTool  string                 `json:"used_tool,omitempty"`
	Skipped   bool                   `json:"skipped,omitempty"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Advisory  string                 `json:"advisory,omitempty"`
	ErrorKind core.ErrorKind         `json:"error_kind"`
}

// FallbackPolicy configures the fallback chain.
type FallbackPolicy struct {
	MaxFallbackAttempts int
	PreferHealthyTools  bool
}

// DefaultFallbackPolicy provides sensible defaults.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{MaxFallbackAttempts: 2, PreferHealthyTools: true}
}

const recentErrorRingSize = 100

type recordedError struct {
	ToolID    string         `json:"tool_id"`
	Kind      core.ErrorKind `json:"kind"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// WorkflowErrorHandler classifies step failures and applies a recovery
// strategy before the failure is allowed to fail the step.
type WorkflowErrorHandler struct {
	invoker  core.ToolInvoker
	breakers *CircuitBreakerRegistry
	retry    *RetryPolicy
	fallback FallbackPolicy
	logger   core.Logger
	metrics  core.MetricsSink

	mu           sync.Mutex
	recentErrors []recordedError // ring, newest last
	errorCounts  map[string]map[core.ErrorKind]int
}

// NewWorkflowErrorHandler creates an error handler. A nil registry gets
// a private one with default thresholds; nil policies get defaults.
func NewWorkflowErrorHandler(invoker core.ToolInvoker, breakers *CircuitBreakerRegistry, logger core.Logger, metrics core.MetricsSink) *WorkflowErrorHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = &core.NoOpMetricsSink{}
	}
	if breakers == nil {
		breakers = NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig(), logger)
	}
	return &WorkflowErrorHandler{
		invoker:     invoker,
		breakers:    breakers,
		retry:       DefaultRetryPolicy(),
		fallback:    DefaultFallbackPolicy(),
		logger:      logger,
		metrics:     metrics,
		errorCounts: make(map[string]map[core.ErrorKind]int),
	}
}

// SetFallbackPolicy overrides the default fallback policy.
func (h *WorkflowErrorHandler) SetFallbackPolicy(p FallbackPolicy) {
	h.fallback = p
}

// Breakers exposes the registry for health reporting.
func (h *WorkflowErrorHandler) Breakers() *CircuitBreakerRegistry {
	return h.breakers
}

// HandleError classifies err, selects a recovery strategy, and executes
// it. It never returns a nil result.
func (h *WorkflowErrorHandler) HandleError(ctx context.Context, err error, ectx *ErrorContext, policy *RetryPolicy, fallbackTools []string) *RecoveryResult {
	start := time.Now()
	if policy == nil {
		policy = h.retry
	}
	if ectx == nil {
		ectx = &ErrorContext{}
	}

	kind := Classify(err)
	h.recordError(ectx.ToolID, kind, err)
	// Validation errors come from the caller's input, not the tool.
	if kind != core.ErrorKindValidation {
		h.breakers.Get(ectx.ToolID).RecordFailure()
	}

	strategy := h.selectStrategy(kind, ectx, policy)

	h.logger.Warn("Recovering from step error", map[string]interface{}{
		"tool_id":     ectx.ToolID,
		"step_id":     ectx.StepID,
		"workflow_id": ectx.WorkflowID,
		"error_kind":  string(kind),
		"strategy":    string(strategy),
		"attempt":     ectx.Attempt,
		"error":       err.Error(),
	})

	var result *RecoveryResult
	switch strategy {
	case StrategyRetry:
		result = h.executeRetry(ctx, err, ectx, policy, kind)
		// Retry exhaustion falls through to the fallback chain when
		// candidates exist.
		if !result.Success && len(fallbackTools) > 0 {
			fb := h.executeFallback(ctx, ectx, fallbackTools, kind)
			fb.Attempts += result.Attempts
			result = fb
		}
	case StrategyFallback:
		result = h.executeFallback(ctx, ectx, fallbackTools, kind)
	case StrategySkip:
		result = &RecoveryResult{
			Success:  true,
			Strategy: StrategySkip,
			Skipped:  true,
			Data: map[string]interface{}{
				"skipped":     true,
				"skip_reason": fmt.Sprintf("%s error: %s", kind, err.Error()),
			},
			ErrorKind: kind,
		}
	case StrategyPartialContinue:
		result = &RecoveryResult{
			Success:   true,
			Strategy:  StrategyPartialContinue,
			Data:      partialData(ectx),
			Error:     err.Error(),
			ErrorKind: kind,
		}
	case StrategyGracefulDegradation:
		result = &RecoveryResult{
			Success:   true,
			Strategy:  StrategyGracefulDegradation,
			Degraded:  true,
			Advisory:  "Some services are temporarily limited; results may be incomplete.",
			Data:      partialData(ectx),
			Error:     err.Error(),
			ErrorKind: kind,
		}
	default: // StrategyFailFast
		result = &RecoveryResult{
			Success:   false,
			Strategy:  StrategyFailFast,
			Error:     err.Error(),
			ErrorKind: kind,
		}
	}

	h.metrics.RecordOperation("recovery.handle_error", time.Since(start), result.Success, map[string]interface{}{
		"strategy":   string(result.Strategy),
		"error_kind": string(kind),
		"tool_id":    ectx.ToolID,
	})
	return result
}

// selectStrategy applies the static table plus the two overrides.
func (h *WorkflowErrorHandler) selectStrategy(kind core.ErrorKind, ectx *ErrorContext, policy *RetryPolicy) RecoveryStrategy {
	strategy, ok := defaultStrategyTable[kind]
	if !ok {
		strategy = StrategyFailFast
	}

	if ectx.ToolID != "" && h.breakers.Get(ectx.ToolID).State() == StateOpen {
		return StrategyFallback
	}
	if strategy == StrategyRetry {
		if ectx.Attempt >= policy.MaxRetries || !policy.Allows(kind) {
			return StrategyFallback
		}
	}
	return strategy
}

func (h *WorkflowErrorHandler) executeRetry(ctx context.Context, origErr error, ectx *ErrorContext, policy *RetryPolicy, kind core.ErrorKind) *RecoveryResult {
	if h.invoker == nil || ectx.ToolName == "" {
		return &RecoveryResult{
			Success: false, Strategy: StrategyRetry,
			Error: origErr.Error(), ErrorKind: kind,
		}
	}

	cb := h.breakers.Get(ectx.ToolID)
	lastErr := origErr
	attempts := 0
	for attempt := ectx.Attempt; attempt < policy.MaxRetries; attempt++ {
		delay := policy.DelayFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &RecoveryResult{
				Success: false, Strategy: StrategyRetry, Attempts: attempts,
				Error: ctx.Err().Error(), ErrorKind: kind,
			}
		case <-timer.C:
		}

		if !cb.CanExecute() {
			break
		}
		attempts++
		out, err := h.invoker.Invoke(ctx, ectx.ToolName, ectx.Inputs)
		if err == nil {
			cb.RecordSuccess()
			return &RecoveryResult{
				Success: true, Strategy: StrategyRetry, Attempts: attempts,
				Data: out, UsedTool: ectx.ToolID, ErrorKind: kind,
			}
		}
		cb.RecordFailure()
		lastErr = err
		if !policy.Allows(Classify(err)) {
			break
		}
	}

	return &RecoveryResult{
		Success: false, Strategy: StrategyRetry, Attempts: attempts,
		Error:     fmt.Sprintf("%v: %s", core.ErrMaxRetriesExceeded, lastErr.Error()),
		ErrorKind: kind,
	}
}

func (h *WorkflowErrorHandler) executeFallback(ctx context.Context, ectx *ErrorContext, fallbackTools []string, kind core.ErrorKind) *RecoveryResult {
	if h.invoker == nil || len(fallbackTools) == 0 {
		return &RecoveryResult{
			Success: false, Strategy: StrategyFallback,
			Error: core.ErrNoFallbackTools.Error(), ErrorKind: kind,
		}
	}

	attempts := 0
	var lastErr error
	for _, toolID := range fallbackTools {
		if attempts >= h.fallback.MaxFallbackAttempts {
			break
		}
		cb := h.breakers.Get(toolID)
		if h.fallback.PreferHealthyTools && cb.State() == StateOpen {
			h.logger.Debug("Skipping unhealthy fallback tool", map[string]interface{}{
				"tool_id": toolID,
			})
			continue
		}
		if !cb.CanExecute() {
			continue
		}
		attempts++
		out, err := h.invoker.Invoke(ctx, toolID, ectx.Inputs)
		if err == nil {
			cb.RecordSuccess()
			return &RecoveryResult{
				Success: true, Strategy: StrategyFallback, Attempts: attempts,
				Data: out, UsedTool: toolID, ErrorKind: kind,
			}
		}
		cb.RecordFailure()
		h.recordError(toolID, Classify(err), err)
		lastErr = err
	}

	msg := core.ErrNoFallbackTools.Error()
	if lastErr != nil {
		msg = fmt.Sprintf("all fallback tools failed, last error: %s", lastErr.Error())
	}
	return &RecoveryResult{
		Success: false, Strategy: StrategyFallback, Attempts: attempts,
		Error: msg, ErrorKind: kind,
	}
}

func partialData(ectx *ErrorContext) map[string]interface{} {
	data := map[string]interface{}{"partial": true}
	for k, v := range ectx.PartialData {
		data[k] = v
	}
	return data
}

func (h *WorkflowErrorHandler) recordError(toolID string, kind core.ErrorKind, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recentErrors = append(h.recentErrors, recordedError{
		ToolID:    toolID,
		Kind:      kind,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
	if len(h.recentErrors) > recentErrorRingSize {
		h.recentErrors = h.recentErrors[len(h.recentErrors)-recentErrorRingSize:]
	}

	counts, ok := h.errorCounts[toolID]
	if !ok {
		counts = make(map[core.ErrorKind]int)
		h.errorCounts[toolID] = counts
	}
	counts[kind]++
}

// GetErrorStatistics returns aggregate error counts by tool and kind
// plus the recent-error ring.
func (h *WorkflowErrorHandler) GetErrorStatistics() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	byTool := make(map[string]map[string]int, len(h.errorCounts))
	total := 0
	for toolID, counts := range h.errorCounts {
		kindCounts := make(map[string]int, len(counts))
		for kind, n := range counts {
			kindCounts[string(kind)] = n
			total += n
		}
		byTool[toolID] = kindCounts
	}

	recent := make([]recordedError, len(h.recentErrors))
	copy(recent, h.recentErrors)

	return map[string]interface{}{
		"total_errors":   total,
		"errors_by_tool": byTool,
		"recent_errors":  recent,
	}
}

// ToolHealth summarizes one tool's error history and breaker state.
type ToolHealth struct {
	ToolID       string          `json:"tool_id"`
	Healthy      bool            `json:"healthy"`
	BreakerState string          `json:"breaker_state"`
	ErrorCounts  map[string]int  `json:"error_counts"`
	Snapshot     BreakerSnapshot `json:"snapshot"`
}

// CheckToolHealth reports the breaker state and error counts for a tool.
func (h *WorkflowErrorHandler) CheckToolHealth(toolID string) ToolHealth {
	snap := h.breakers.Get(toolID).Snapshot()

	h.mu.Lock()
	counts := make(map[string]int, len(h.errorCounts[toolID]))
	for kind, n := range h.errorCounts[toolID] {
		counts[string(kind)] = n
	}
	h.mu.Unlock()

	return ToolHealth{
		ToolID:       toolID,
		Healthy:      snap.State == StateClosed.String(),
		BreakerState: snap.State,
		ErrorCounts:  counts,
		Snapshot:     snap,
	}
}
