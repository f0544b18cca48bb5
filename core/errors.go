package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Tool-related errors
	ErrToolNotFound    = errors.New("tool not found")
	ErrToolInvocation  = errors.New("tool invocation failed")
	ErrNoFallbackTools = errors.New("no fallback tools available")

	// Workflow-related errors
	ErrMappingFailed       = errors.New("data mapping failed")
	ErrUnsupportedStrategy = errors.New("unsupported execution strategy")
	ErrWorkflowCancelled   = errors.New("workflow cancelled")
	ErrStepTimeout         = errors.New("step execution timeout")

	// Recovery-related errors
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Routing errors
	ErrOrchestrationDisabled = errors.New("orchestration is disabled")
	ErrOrchestrationTimeout  = errors.New("orchestration timed out")
	ErrFallbackUnavailable   = errors.New("no direct fallback available")
)

// ErrorKind is the closed error taxonomy used by the recovery subsystem.
type ErrorKind string

const (
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindAuthentication     ErrorKind = "authentication"
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindNetwork            ErrorKind = "network"
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindResource           ErrorKind = "resource"
	ErrorKindDependency         ErrorKind = "dependency"
	ErrorKindTool               ErrorKind = "tool"
	ErrorKindUnknown            ErrorKind = "unknown"
)

// OrchestrationError provides structured error information with context.
// Tools sitting behind the ToolInvoker seam may return one of these to
// carry an explicit Kind across the trust boundary instead of relying on
// message-based classification.
type OrchestrationError struct {
	Op      string    // Operation that failed (e.g., "engine.ExecuteStep")
	Kind    ErrorKind // Taxonomy kind, ErrorKindUnknown when not known
	ToolID  string    // Optional id of the tool involved
	Message string    // Human-readable message
	Err     error     // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *OrchestrationError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ToolID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ToolID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// NewOrchestrationError creates a new OrchestrationError
func NewOrchestrationError(op string, kind ErrorKind, err error) *OrchestrationError {
	return &OrchestrationError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// KindOf extracts the explicit ErrorKind from an error chain, or
// ErrorKindUnknown when no OrchestrationError is present.
func KindOf(err error) ErrorKind {
	var oe *OrchestrationError
	if errors.As(err, &oe) && oe.Kind != "" {
		return oe.Kind
	}
	return ErrorKindUnknown
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrorKindTimeout, ErrorKindNetwork, ErrorKindAuthentication:
		return true
	}
	return errors.Is(err, ErrStepTimeout) || errors.Is(err, ErrToolInvocation)
}

// IsMappingError checks if an error originated from data mapping
func IsMappingError(err error) bool {
	return errors.Is(err, ErrMappingFailed)
}

// IsCircuitOpen checks if an error was caused by an open circuit breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitBreakerOpen)
}
