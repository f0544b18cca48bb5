package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/tripmind/tripmind/core"
)

// Classify maps an error onto the closed taxonomy. Tools that return a
// typed *core.OrchestrationError are classified by its explicit Kind;
// everything else falls back to substring heuristics on the message,
// which is best-effort and can misclassify opaque tool errors.
func Classify(err error) core.ErrorKind {
	if err == nil {
		return core.ErrorKindUnknown
	}

	if kind := core.KindOf(err); kind != core.ErrorKindUnknown {
		return kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, core.ErrStepTimeout) {
		return core.ErrorKindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return core.ErrorKindTimeout
	case containsAny(msg, "unauthorized", "forbidden", "authentication", "auth failed", "invalid token", "expired token", "401", "403"):
		return core.ErrorKindAuthentication
	case containsAny(msg, "unavailable", "503", "502", "bad gateway", "overloaded", "throttl"):
		return core.ErrorKindServiceUnavailable
	case containsAny(msg, "connection refused", "connection reset", "network", "dns", "no such host", "broken pipe", "eof"):
		return core.ErrorKindNetwork
	case containsAny(msg, "validation", "invalid input", "invalid parameter", "bad request", "missing required", "schema"):
		return core.ErrorKindValidation
	case containsAny(msg, "out of memory", "resource", "quota", "rate limit", "too many requests", "429"):
		return core.ErrorKindResource
	case containsAny(msg, "dependency", "prerequisite", "upstream"):
		return core.ErrorKindDependency
	case containsAny(msg, "tool"):
		return core.ErrorKindTool
	default:
		return core.ErrorKindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
