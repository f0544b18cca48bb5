package core

import (
	"context"
	"time"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// MetricsSink receives operation timings and ad-hoc metrics. All
// implementations are fire-and-forget: a failing sink must never
// propagate errors into the orchestration path.
type MetricsSink interface {
	RecordOperation(name string, duration time.Duration, success bool, extra map[string]interface{})
	RecordMetric(name string, value float64, labels map[string]string)
}

// ToolInvoker is the single seam through which the core calls downstream
// tools. The core treats the tool as opaque: a flat input map in, a flat
// output map out. Implementations may be remote RPC, an AWS-hosted
// agent, or a local function.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error)
}

// ToolFunc adapts a plain function to the ToolInvoker interface.
type ToolFunc func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error)

func (f ToolFunc) Invoke(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, toolName, inputs)
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpMetricsSink provides a no-op metrics implementation
type NoOpMetricsSink struct{}

func (n *NoOpMetricsSink) RecordOperation(name string, duration time.Duration, success bool, extra map[string]interface{}) {
}

func (n *NoOpMetricsSink) RecordMetric(name string, value float64, labels map[string]string) {}
