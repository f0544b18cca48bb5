package resilience

import (
	"sync"
	"time"

	"github.com/tripmind/tripmind/core"
)

// BreakerState represents the state of a circuit breaker
type BreakerState int

const (
	// StateClosed allows all requests through
	StateClosed BreakerState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited probe requests for testing recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the state-machine thresholds.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a closed breaker open.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close
	// the breaker.
	SuccessThreshold int
	// RecoveryTimeout is how long an open breaker waits after the last
	// failure before permitting half-open probes.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls caps the number of probe calls admitted while
	// half-open.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker is the per-tool failure-protection state machine:
// Closed -> (failure threshold) -> Open -> (recovery timeout) ->
// HalfOpen -> Closed on enough successes, or back to Open on any
// failure. State never expires except through transitions or Reset.
//
// Guarded by a mutex so the registry is safe under OS threads, not just
// a cooperative scheduler.
type CircuitBreaker struct {
	toolID string
	config CircuitBreakerConfig
	logger core.Logger

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time
	changedAt       time.Time
	now             func() time.Time

	listeners []func(toolID string, from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker for one tool.
func NewCircuitBreaker(toolID string, config CircuitBreakerConfig, logger core.Logger) *CircuitBreaker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}
	return &CircuitBreaker{
		toolID:    toolID,
		config:    config,
		logger:    logger,
		state:     StateClosed,
		changedAt: time.Now(),
		now:       time.Now,
	}
}

// OnStateChange registers a listener invoked after every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(toolID string, from, to BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

// CanExecute reports whether a call may proceed. An open breaker whose
// recovery timeout has elapsed transitions to half-open here; while
// half-open, each permitted call consumes one probe slot.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenCalls = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.config.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount++
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failureCount = 0
		}
	}
}

// RecordFailure records a failed call. While closed, consecutive
// failures accumulate toward the threshold; while half-open, a single
// failure re-opens the breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

// ForceOpen manually opens the breaker, e.g. to drain a misbehaving tool.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailureTime = cb.now()
	cb.transition(StateOpen)
}

// BreakerSnapshot is a point-in-time view of a breaker for health
// reporting.
type BreakerSnapshot struct {
	ToolID          string       `json:"tool_id"`
	State           string       `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	ChangedAt       time.Time    `json:"changed_at"`
}

// Snapshot returns the current breaker state and counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		ToolID:          cb.toolID,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		ChangedAt:       cb.changedAt,
	}
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.changedAt = cb.now()
	if to == StateHalfOpen || to == StateClosed {
		cb.successCount = 0
	}
	if to == StateHalfOpen {
		cb.halfOpenCalls = 0
	}

	cb.logger.Info("Circuit breaker state changed", map[string]interface{}{
		"tool_id": cb.toolID,
		"from":    from.String(),
		"to":      to.String(),
	})
	for _, fn := range cb.listeners {
		fn(cb.toolID, from, to)
	}
}

// CircuitBreakerRegistry owns one breaker per tool id. It is the only
// cross-request shared mutable state in the orchestration core; inject
// a single registry instance rather than relying on package globals.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	logger   core.Logger
}

// NewCircuitBreakerRegistry creates a registry; every breaker it lazily
// creates shares the given config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, logger core.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker for a tool id, creating it on first use.
func (r *CircuitBreakerRegistry) Get(toolID string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[toolID]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[toolID]; ok {
		return cb
	}
	cb = NewCircuitBreaker(toolID, r.config, r.logger)
	r.breakers[toolID] = cb
	return cb
}

// Snapshot returns a snapshot of every breaker, keyed by tool id.
func (r *CircuitBreakerRegistry) Snapshot() map[string]BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]BreakerSnapshot, len(r.breakers))
	for id, cb := range r.breakers {
		out[id] = cb.Snapshot()
	}
	return out
}
