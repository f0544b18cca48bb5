package middleware

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/tripmind/tripmind/core"
)

// Logical tool types the compatibility manager routes.
const (
	ToolTypeSearch    = "search"
	ToolTypeReasoning = "reasoning"
	ToolTypeCombined  = "combined"
)

// CompatibilityManager performs the staged migration from legacy tool
// calls to orchestrated ones. Per tool type a feature flag plus the
// global adoption percentage decides the path; the decision is
// deterministic for a given routing key so one user sees a consistent
// experience during rollout.
type CompatibilityManager struct {
	router  *OrchestrationRouter
	logger  core.Logger
	metrics core.MetricsSink

	mu     sync.Mutex
	config CompatConfig

	orchestratedCalls int64
	legacyCalls       int64
	fallbackCalls     int64
	orchestratedTime  time.Duration
	legacyTime        time.Duration
}

// NewCompatibilityManager creates a manager routing through the given
// router.
func NewCompatibilityManager(router *OrchestrationRouter, config CompatConfig, logger core.Logger, metrics core.MetricsSink) *CompatibilityManager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = &core.NoOpMetricsSink{}
	}
	if config.ToolFlags == nil {
		config.ToolFlags = DefaultCompatConfig().ToolFlags
	}
	return &CompatibilityManager{
		router:  router,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// SetAdoptionPercent updates the rollout percentage at runtime.
func (m *CompatibilityManager) SetAdoptionPercent(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("adoption percent %d outside [0, 100]", percent)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.AdoptionPercent = percent
	return nil
}

// SetToolFlag enables or disables orchestration for a tool type.
func (m *CompatibilityManager) SetToolFlag(toolType string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ToolFlags[toolType] = enabled
}

// ShouldOrchestrate decides the path for one request. The routing key
// (typically user or session id) makes the decision deterministic;
// with an empty key the decision is random at the adoption percentage.
func (m *CompatibilityManager) ShouldOrchestrate(toolType, routingKey string) bool {
	m.mu.Lock()
	enabled := m.config.ToolFlags[toolType]
	percent := m.config.AdoptionPercent
	m.mu.Unlock()

	if !enabled || percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	if routingKey == "" {
		return rand.Intn(100) < percent
	}
	return int(bucketOf(routingKey)) < percent
}

// bucketOf maps a routing key onto a stable bucket in [0, 100).
func bucketOf(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % 100
}

// CallTool routes one logical tool call. Orchestration-eligible calls
// go through the router with the legacy function as fallback; the rest
// call the legacy function directly.
func (m *CompatibilityManager) CallTool(ctx context.Context, toolType, requestText string, userCtx *core.UserContext, legacy DirectToolFunc) Response {
	routingKey := ""
	if userCtx != nil {
		routingKey = userCtx.UserID
		if routingKey == "" {
			routingKey = userCtx.SessionID
		}
	}

	start := time.Now()
	if m.ShouldOrchestrate(toolType, routingKey) {
		resp := m.router.RouteRequest(ctx, requestText, userCtx, "", legacy)
		m.record(resp.RoutingMethod, time.Since(start))
		return resp
	}

	resp := m.callLegacy(ctx, requestText, userCtx, legacy)
	m.record("legacy", time.Since(start))
	return resp
}

func (m *CompatibilityManager) callLegacy(ctx context.Context, requestText string, userCtx *core.UserContext, legacy DirectToolFunc) (resp Response) {
	resp = Response{RoutingMethod: RoutingFallback}
	defer func() {
		if rec := recover(); rec != nil {
			resp.Success = false
			resp.Error = fmt.Sprintf("legacy call panic: %v", rec)
		}
	}()

	if legacy == nil {
		resp.Error = "no legacy tool function supplied"
		return resp
	}
	result, err := legacy(ctx, requestText, userCtx)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Result = result
	return resp
}

func (m *CompatibilityManager) record(routingMethod string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch routingMethod {
	case RoutingOrchestration:
		m.orchestratedCalls++
		m.orchestratedTime += elapsed
	case RoutingFallback:
		m.fallbackCalls++
		m.legacyCalls++
		m.legacyTime += elapsed
	default:
		m.legacyCalls++
		m.legacyTime += elapsed
	}
	m.metrics.RecordMetric("compat.calls", 1, map[string]string{"routing_method": routingMethod})
}

// MigrationReport summarizes rollout progress.
type MigrationReport struct {
	AdoptionPercent        int     `json:"adoption_percent"`
	OrchestratedCalls      int64   `json:"orchestrated_calls"`
	LegacyCalls            int64   `json:"legacy_calls"`
	FallbackCalls          int64   `json:"fallback_calls"`
	AdoptionRate           float64 `json:"adoption_rate"`
	FallbackRate           float64 `json:"fallback_rate"`
	AvgOrchestratedMS      float64 `json:"avg_orchestrated_ms"`
	AvgLegacyMS            float64 `json:"avg_legacy_ms"`
	RecommendedNextPercent int     `json:"recommended_next_percent"`
}

// Report computes the current migration report. The recommended next
// percentage advances the rollout when the fallback rate stays under
// 10%, holds when it is elevated, and retreats above 25%.
func (m *CompatibilityManager) Report() MigrationReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.orchestratedCalls + m.legacyCalls
	report := MigrationReport{
		AdoptionPercent:   m.config.AdoptionPercent,
		OrchestratedCalls: m.orchestratedCalls,
		LegacyCalls:       m.legacyCalls,
		FallbackCalls:     m.fallbackCalls,
	}
	if total > 0 {
		report.AdoptionRate = float64(m.orchestratedCalls) / float64(total)
	}
	attempted := m.orchestratedCalls + m.fallbackCalls
	if attempted > 0 {
		report.FallbackRate = float64(m.fallbackCalls) / float64(attempted)
	}
	if m.orchestratedCalls > 0 {
		report.AvgOrchestratedMS = float64(m.orchestratedTime.Milliseconds()) / float64(m.orchestratedCalls)
	}
	if m.legacyCalls > 0 {
		report.AvgLegacyMS = float64(m.legacyTime.Milliseconds()) / float64(m.legacyCalls)
	}

	switch {
	case attempted == 0:
		report.RecommendedNextPercent = m.config.AdoptionPercent
	case report.FallbackRate < 0.10:
		report.RecommendedNextPercent = minInt(m.config.AdoptionPercent+25, 100)
	case report.FallbackRate <= 0.25:
		report.RecommendedNextPercent = m.config.AdoptionPercent
	default:
		report.RecommendedNextPercent = maxInt(m.config.AdoptionPercent-25, 0)
	}
	return report
}

// ResetCounters clears call counters, e.g. between rollout stages.
func (m *CompatibilityManager) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orchestratedCalls = 0
	m.legacyCalls = 0
	m.fallbackCalls = 0
	m.orchestratedTime = 0
	m.legacyTime = 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
