package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tripmind/tripmind/core"
)

// OTelSink implements core.MetricsSink over the OpenTelemetry meter
// API. Instruments are created lazily and cached by name. Every method
// is fire-and-forget: instrument creation errors are logged once and
// the call is dropped, never propagated.
type OTelSink struct {
	meter  metric.Meter
	logger core.Logger

	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTelSink creates a sink recording through the global meter
// provider.
func NewOTelSink(meterName string, logger core.Logger) *OTelSink {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &OTelSink{
		meter:      otel.Meter(meterName),
		logger:     logger,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordOperation records one timed operation as a duration histogram
// sample plus a counter labeled by outcome.
func (s *OTelSink) RecordOperation(name string, duration time.Duration, success bool, extra map[string]interface{}) {
	attrs := []attribute.KeyValue{attribute.Bool("success", success)}
	for k, v := range extra {
		attrs = append(attrs, anyAttribute(k, v))
	}

	ctx := context.Background()
	if h := s.histogram(name + ".duration_ms"); h != nil {
		h.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	}
	if c := s.counter(name + ".total"); c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordMetric adds a single counter sample.
func (s *OTelSink) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	if c := s.counter(name); c != nil {
		c.Add(context.Background(), value, metric.WithAttributes(attrs...))
	}
}

func (s *OTelSink) counter(name string) metric.Float64Counter {
	s.mu.RLock()
	c, ok := s.counters[name]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c, err := s.meter.Float64Counter(name)
	if err != nil {
		s.logger.Warn("Failed to create counter", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
		return nil
	}
	s.counters[name] = c
	return c
}

func (s *OTelSink) histogram(name string) metric.Float64Histogram {
	s.mu.RLock()
	h, ok := s.histograms[name]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histograms[name]; ok {
		return h
	}
	h, err := s.meter.Float64Histogram(name)
	if err != nil {
		s.logger.Warn("Failed to create histogram", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
		return nil
	}
	s.histograms[name] = h
	return h
}

func anyAttribute(key string, v interface{}) attribute.KeyValue {
	switch t := v.(type) {
	case string:
		return attribute.String(key, t)
	case bool:
		return attribute.Bool(key, t)
	case int:
		return attribute.Int(key, t)
	case int64:
		return attribute.Int64(key, t)
	case float64:
		return attribute.Float64(key, t)
	default:
		return attribute.String(key, "unsupported")
	}
}
