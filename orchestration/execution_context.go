package orchestration

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tripmind/tripmind/core"
)

// ExecutionContext is the per-run mutable store a workflow executes
// against. Step results are stored under the step's id; dotted-path
// lookups resolve across the context.*, intent.*, workflow.* and
// <step_id>.* namespaces.
type ExecutionContext struct {
	mu          sync.RWMutex
	workflow    *core.Workflow
	intent      core.Intent
	userCtx     *core.UserContext
	stepResults map[string]map[string]interface{}
}

// NewExecutionContext creates the execution context for one workflow run.
func NewExecutionContext(wf *core.Workflow, it core.Intent, userCtx *core.UserContext) *ExecutionContext {
	return &ExecutionContext{
		workflow:    wf,
		intent:      it,
		userCtx:     userCtx,
		stepResults: make(map[string]map[string]interface{}),
	}
}

// SetStepResult stores a completed step's shaped output.
func (c *ExecutionContext) SetStepResult(stepID string, result map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepResults[stepID] = result
}

// StepResult returns the stored result for a step id.
func (c *ExecutionContext) StepResult(stepID string) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.stepResults[stepID]
	return r, ok
}

// StepResultCount returns how many step results have been stored.
func (c *ExecutionContext) StepResultCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stepResults)
}

// Resolve looks up a dotted path. The first segment selects the
// namespace; remaining segments traverse nested maps.
func (c *ExecutionContext) Resolve(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch parts[0] {
	case "context":
		return c.resolveUserContext(parts[1:])
	case "intent":
		return c.resolveIntent(parts[1:])
	case "workflow":
		return c.resolveWorkflow(parts[1:])
	default:
		result, ok := c.stepResults[parts[0]]
		if !ok {
			return nil, false
		}
		return traverse(result, parts[1:])
	}
}

func (c *ExecutionContext) resolveUserContext(parts []string) (interface{}, bool) {
	if c.userCtx == nil || len(parts) == 0 {
		return nil, false
	}
	switch parts[0] {
	case "user_id":
		return c.userCtx.UserID, true
	case "session_id":
		return c.userCtx.SessionID, true
	case "mbti_type":
		if c.userCtx.MBTIType == "" {
			return nil, false
		}
		return c.userCtx.MBTIType, true
	case "location_context":
		if c.userCtx.LocationContext == "" {
			return nil, false
		}
		return c.userCtx.LocationContext, true
	case "preferences":
		return traverseValue(mapToIface(c.userCtx.Preferences), parts[1:])
	default:
		return nil, false
	}
}

func (c *ExecutionContext) resolveIntent(parts []string) (interface{}, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	switch parts[0] {
	case "type":
		return string(c.intent.Type), true
	case "confidence":
		return c.intent.Confidence, true
	case "parameters":
		return traverseValue(mapToIface(c.intent.Parameters), parts[1:])
	default:
		return nil, false
	}
}

func (c *ExecutionContext) resolveWorkflow(parts []string) (interface{}, bool) {
	if c.workflow == nil || len(parts) == 0 {
		return nil, false
	}
	switch parts[0] {
	case "id":
		return c.workflow.ID, true
	case "name":
		return c.workflow.Name, true
	default:
		// Remaining workflow.* keys read from the workflow's context data.
		return traverseValue(mapToIface(c.workflow.ContextData), parts)
	}
}

// GetMappedData resolves a step's input mappings against the context.
// A required mapping with no source value and no default fails with a
// core.ErrMappingFailed error, which fails the owning step.
func (c *ExecutionContext) GetMappedData(mappings []core.DataMapping) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(mappings))
	for _, m := range mappings {
		var value interface{}
		found := false
		if m.SourceField != "" {
			value, found = c.Resolve(m.SourceField)
		}
		if !found {
			if m.DefaultValue != nil {
				value = m.DefaultValue
				found = true
			} else if m.Required {
				return nil, fmt.Errorf("required field %q has no value and no default: %w",
					m.SourceField, core.ErrMappingFailed)
			} else {
				continue
			}
		}
		if m.Transformation != "" {
			var err error
			value, err = applyTransformation(m.Transformation, value)
			if err != nil {
				return nil, fmt.Errorf("transforming %q: %w", m.SourceField, err)
			}
		}
		out[m.TargetField] = value
	}
	return out, nil
}

// ApplyOutputMapping shapes a raw tool result before it is stored under
// the step id. With no mappings the raw result passes through untouched.
// Output mappings are best-effort: an absent optional source is simply
// omitted, a missing required source falls back to the default or the
// raw value rather than failing an already-successful step.
func ApplyOutputMapping(raw map[string]interface{}, mappings []core.DataMapping) map[string]interface{} {
	if len(mappings) == 0 {
		return raw
	}
	out := make(map[string]interface{}, len(mappings))
	for _, m := range mappings {
		value, found := traverse(raw, strings.Split(m.SourceField, "."))
		if !found {
			if m.DefaultValue == nil {
				continue
			}
			value = m.DefaultValue
		}
		if m.Transformation != "" {
			if v, err := applyTransformation(m.Transformation, value); err == nil {
				value = v
			}
		}
		out[m.TargetField] = value
	}
	return out
}

// applyTransformation runs one of the named pure transformations.
func applyTransformation(name string, value interface{}) (interface{}, error) {
	switch name {
	case "to_string":
		return fmt.Sprintf("%v", value), nil
	case "to_list":
		switch v := value.(type) {
		case []interface{}:
			return v, nil
		case []string:
			out := make([]interface{}, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		case nil:
			return []interface{}{}, nil
		default:
			return []interface{}{value}, nil
		}
	case "flatten":
		list, ok := value.([]interface{})
		if !ok {
			return value, nil
		}
		var flat []interface{}
		for _, e := range list {
			if inner, ok := e.([]interface{}); ok {
				flat = append(flat, inner...)
			} else {
				flat = append(flat, e)
			}
		}
		return flat, nil
	case "extract_ids":
		list, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("extract_ids expects a list, got %T", value)
		}
		var ids []interface{}
		for _, e := range list {
			if m, ok := e.(map[string]interface{}); ok {
				if id, ok := m["id"]; ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, nil
	case "count":
		switch v := value.(type) {
		case []interface{}:
			return len(v), nil
		case []string:
			return len(v), nil
		case map[string]interface{}:
			return len(v), nil
		case string:
			return len(v), nil
		default:
			return 0, nil
		}
	default:
		return nil, fmt.Errorf("unknown transformation %q", name)
	}
}

// traverse walks nested maps by key path.
func traverse(m map[string]interface{}, parts []string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	return traverseValue(m, parts)
}

func traverseValue(current interface{}, parts []string) (interface{}, bool) {
	for _, p := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func mapToIface(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
