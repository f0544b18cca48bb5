package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tripmind/tripmind/core"
)

// Orchestrator is the seam the router drives orchestrated requests
// through. orchestration.Pipeline satisfies it.
type Orchestrator interface {
	Orchestrate(ctx context.Context, requestText string, userCtx *core.UserContext) (map[string]interface{}, error)
}

// DirectToolFunc is a caller-supplied legacy path invoked when
// orchestration is disabled or fails.
type DirectToolFunc func(ctx context.Context, requestText string, userCtx *core.UserContext) (map[string]interface{}, error)

// Routing methods reported in every response.
const (
	RoutingOrchestration = "orchestration"
	RoutingFallback      = "fallback"
)

// Response is the uniform shape every routed request resolves to,
// regardless of which path ran or how it failed.
type Response struct {
	Success       bool                   `json:"success"`
	CorrelationID string                 `json:"correlation_id"`
	RoutingMethod string                 `json:"routing_method"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// OrchestrationRouter decides, per request, between the orchestration
// path and the direct legacy path. It is the only component that makes
// that decision, and it never lets an error from either path escape.
type OrchestrationRouter struct {
	orchestrator Orchestrator
	config       RouterConfig
	logger       core.Logger
	metrics      core.MetricsSink
}

// NewOrchestrationRouter creates a router.
func NewOrchestrationRouter(orchestrator Orchestrator, config RouterConfig, logger core.Logger, metrics core.MetricsSink) *OrchestrationRouter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = &core.NoOpMetricsSink{}
	}
	return &OrchestrationRouter{
		orchestrator: orchestrator,
		config:       config.withDefaults(),
		logger:       logger,
		metrics:      metrics,
	}
}

// RouteRequest routes one request. With orchestration disabled only
// the direct fallback runs. Otherwise orchestration is attempted under
// its timeout; on failure the fallback runs when supplied and enabled,
// else the orchestration error is surfaced. All outcomes, including
// panics, resolve to a Response.
func (r *OrchestrationRouter) RouteRequest(ctx context.Context, requestText string, userCtx *core.UserContext, correlationID string, directFallback DirectToolFunc) (resp Response) {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic while routing request", map[string]interface{}{
				"correlation_id": correlationID,
				"panic":          fmt.Sprintf("%v", rec),
			})
			resp = Response{
				Success:       false,
				CorrelationID: correlationID,
				RoutingMethod: RoutingFallback,
				Error:         fmt.Sprintf("internal error: %v", rec),
			}
		}
		r.metrics.RecordOperation("router.route_request", time.Since(start), resp.Success, map[string]interface{}{
			"routing_method": resp.RoutingMethod,
		})
	}()

	if !r.config.Enabled || r.orchestrator == nil {
		return r.runFallback(ctx, requestText, userCtx, correlationID, directFallback, core.ErrOrchestrationDisabled)
	}

	result, err := r.runOrchestration(ctx, requestText, userCtx, correlationID)
	if err == nil {
		return Response{
			Success:       true,
			CorrelationID: correlationID,
			RoutingMethod: RoutingOrchestration,
			Result:        result,
		}
	}

	r.logger.Warn("Orchestration failed, considering fallback", map[string]interface{}{
		"correlation_id": correlationID,
		"error":          err.Error(),
	})
	if r.config.FallbackEnabled && directFallback != nil {
		return r.runFallback(ctx, requestText, userCtx, correlationID, directFallback, err)
	}

	return Response{
		Success:       false,
		CorrelationID: correlationID,
		RoutingMethod: RoutingOrchestration,
		Result:        result,
		Error:         err.Error(),
	}
}

func (r *OrchestrationRouter) runOrchestration(ctx context.Context, requestText string, userCtx *core.UserContext, correlationID string) (result map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("orchestration panic: %v", rec)
		}
	}()

	octx, cancel := context.WithTimeout(ctx, r.config.OrchestrationTimeout)
	defer cancel()

	result, err = r.orchestrator.Orchestrate(octx, requestText, userCtx)
	if err != nil && octx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("after %s: %w", r.config.OrchestrationTimeout, core.ErrOrchestrationTimeout)
	}
	return result, err
}

func (r *OrchestrationRouter) runFallback(ctx context.Context, requestText string, userCtx *core.UserContext, correlationID string, directFallback DirectToolFunc, cause error) Response {
	if directFallback == nil {
		msg := "orchestration unavailable and no direct fallback supplied"
		if cause != nil {
			msg = fmt.Sprintf("%s: %s", msg, cause.Error())
		}
		return Response{
			Success:       false,
			CorrelationID: correlationID,
			RoutingMethod: RoutingFallback,
			Error:         msg,
		}
	}

	result, err := r.invokeFallback(ctx, requestText, userCtx, directFallback)
	if err != nil {
		return Response{
			Success:       false,
			CorrelationID: correlationID,
			RoutingMethod: RoutingFallback,
			Error:         err.Error(),
		}
	}
	return Response{
		Success:       true,
		CorrelationID: correlationID,
		RoutingMethod: RoutingFallback,
		Result:        result,
	}
}

func (r *OrchestrationRouter) invokeFallback(ctx context.Context, requestText string, userCtx *core.UserContext, fn DirectToolFunc) (result map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("fallback panic: %v", rec)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, r.config.FallbackTimeout)
	defer cancel()

	result, err = fn(fctx, requestText, userCtx)
	if err != nil && fctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("fallback after %s: %w", r.config.FallbackTimeout, core.ErrOrchestrationTimeout)
	}
	return result, err
}
