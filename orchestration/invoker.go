package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tripmind/tripmind/core"
)

// HTTPToolInvoker calls remote tools over HTTP. Each tool is exposed as
// POST {baseURL}/tools/{name} taking and returning a flat JSON object.
type HTTPToolInvoker struct {
	baseURL string
	client  *http.Client
	logger  core.Logger
}

// NewHTTPToolInvoker creates an invoker for a tool service at baseURL.
// Requests are traced through the otelhttp transport.
func NewHTTPToolInvoker(baseURL string, logger core.Logger) *HTTPToolInvoker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &HTTPToolInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Invoke posts the inputs to the tool endpoint and decodes the JSON
// response body into a map.
func (h *HTTPToolInvoker) Invoke(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(inputs)
	if err != nil {
		return nil, &core.OrchestrationError{
			Op: "invoke", Kind: core.ErrorKindValidation, ToolID: toolName,
			Message: "failed to encode tool inputs", Err: err,
		}
	}

	url := fmt.Sprintf("%s/tools/%s", h.baseURL, toolName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID(ctx))

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("Tool request failed", map[string]interface{}{
			"tool":        toolName,
			"url":         url,
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		kind := core.ErrorKindNetwork
		if ctx.Err() == context.DeadlineExceeded {
			kind = core.ErrorKindTimeout
		}
		return nil, &core.OrchestrationError{
			Op: "invoke", Kind: kind, ToolID: toolName,
			Message: "tool request failed", Err: err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &core.OrchestrationError{
			Op: "invoke", Kind: core.ErrorKindNetwork, ToolID: toolName,
			Message: "failed to read tool response", Err: err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &core.OrchestrationError{
			Op:      "invoke",
			Kind:    kindForStatus(resp.StatusCode),
			ToolID:  toolName,
			Message: fmt.Sprintf("tool returned HTTP %d: %s", resp.StatusCode, truncate(string(data), 200)),
		}
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &core.OrchestrationError{
			Op: "invoke", Kind: core.ErrorKindTool, ToolID: toolName,
			Message: "tool returned malformed JSON", Err: err,
		}
	}

	h.logger.Debug("Tool invoked", map[string]interface{}{
		"tool":        toolName,
		"duration_ms": time.Since(start).Milliseconds(),
		"output_keys": len(out),
	})
	return out, nil
}

func kindForStatus(status int) core.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrorKindAuthentication
	case status == http.StatusTooManyRequests:
		return core.ErrorKindResource
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.ErrorKindTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return core.ErrorKindValidation
	case status >= 500:
		return core.ErrorKindServiceUnavailable
	default:
		return core.ErrorKindTool
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id to the context; downstream
// tool calls carry it in the X-Correlation-ID header.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// LocalToolInvoker dispatches tool calls to registered in-process
// functions. Used in tests and for pseudo-tools like the intelligent
// merger.
type LocalToolInvoker struct {
	mu    sync.RWMutex
	tools map[string]core.ToolFunc
}

// NewLocalToolInvoker creates an empty registry.
func NewLocalToolInvoker() *LocalToolInvoker {
	return &LocalToolInvoker{tools: make(map[string]core.ToolFunc)}
}

// Register adds or replaces a tool function.
func (l *LocalToolInvoker) Register(name string, fn core.ToolFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tools[name] = fn
}

// Invoke calls the registered function for toolName.
func (l *LocalToolInvoker) Invoke(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
	l.mu.RLock()
	fn, ok := l.tools[toolName]
	l.mu.RUnlock()
	if !ok {
		return nil, &core.OrchestrationError{
			Op: "invoke", Kind: core.ErrorKindTool, ToolID: toolName,
			Message: "tool not registered", Err: core.ErrToolNotFound,
		}
	}
	return fn(ctx, toolName, inputs)
}
