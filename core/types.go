package core

import (
	"time"
)

// IntentType classifies what the user is asking for.
type IntentType string

const (
	IntentSearchByLocation  IntentType = "search_by_location"
	IntentSearchByMeal      IntentType = "search_by_meal"
	IntentRecommendation    IntentType = "recommendation"
	IntentCombinedSearch    IntentType = "combined_search_and_recommendation"
	IntentSentimentAnalysis IntentType = "sentiment_analysis"
	IntentUnknown           IntentType = "unknown"
)

// UserContext carries the per-request identity and conversational state.
// It is created once per incoming request; the context analyzer may
// enrich it from the user's stored profile.
type UserContext struct {
	UserID              string                 `json:"user_id"`
	SessionID           string                 `json:"session_id"`
	MBTIType            string                 `json:"mbti_type,omitempty"`
	ConversationHistory []string               `json:"conversation_history,omitempty"`
	Preferences         map[string]interface{} `json:"preferences,omitempty"`
	LocationContext     string                 `json:"location_context,omitempty"`
}

// Intent is the structured classification of a free-text request.
// Instances are immutable once produced; enrichment creates a new value.
type Intent struct {
	Type                 IntentType             `json:"type"`
	Confidence           float64                `json:"confidence"`
	Parameters           map[string]interface{} `json:"parameters"`
	RequiredCapabilities []string               `json:"required_capabilities"`
	OptionalCapabilities []string               `json:"optional_capabilities"`
}

// ClampConfidence bounds a confidence score to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// WithConfidence returns a copy of the intent with the given confidence,
// clamped to [0, 1].
func (i Intent) WithConfidence(c float64) Intent {
	out := i
	out.Confidence = ClampConfidence(c)
	return out
}

// HasParameter reports whether a parameter was extracted for the key.
func (i Intent) HasParameter(key string) bool {
	if i.Parameters == nil {
		return false
	}
	v, ok := i.Parameters[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []string:
		return len(t) > 0
	case []interface{}:
		return len(t) > 0
	default:
		return v != nil
	}
}

// SelectedTool is a candidate tool chosen for an intent, with ordered
// fallbacks tried when the primary fails.
type SelectedTool struct {
	ToolID              string             `json:"tool_id"`
	ToolName            string             `json:"tool_name"`
	Confidence          float64            `json:"confidence"`
	ExpectedPerformance map[string]float64 `json:"expected_performance,omitempty"`
	FallbackTools       []string           `json:"fallback_tools,omitempty"`
	SelectionReason     string             `json:"selection_reason,omitempty"`
}

// ExecutionStrategy selects how a workflow's steps are scheduled.
type ExecutionStrategy string

const (
	StrategySequential  ExecutionStrategy = "sequential"
	StrategyParallel    ExecutionStrategy = "parallel"
	StrategyConditional ExecutionStrategy = "conditional"
)

// WorkflowStatus represents workflow lifecycle state.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// StepStatus represents individual step state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// DataMapping wires a value from the execution context into a step input
// (or shapes a step's raw output). SourceField is a dotted path across
// the context/intent/workflow/<step_id> namespaces.
type DataMapping struct {
	SourceField    string      `json:"source_field" yaml:"source_field"`
	TargetField    string      `json:"target_field" yaml:"target_field"`
	Transformation string      `json:"transformation,omitempty" yaml:"transformation,omitempty"`
	Required       bool        `json:"required" yaml:"required"`
	DefaultValue   interface{} `json:"default_value,omitempty" yaml:"default_value,omitempty"`
}

// WorkflowStep is a single tool invocation inside a workflow. DependsOn
// edges define a DAG; Condition gates execution against the live context.
type WorkflowStep struct {
	ID             string        `json:"id"`
	ToolID         string        `json:"tool_id"`
	ToolName       string        `json:"tool_name"`
	FallbackTools  []string      `json:"fallback_tools,omitempty"`
	InputMapping   []DataMapping `json:"input_mapping,omitempty"`
	OutputMapping  []DataMapping `json:"output_mapping,omitempty"`
	DependsOn      []string      `json:"depends_on,omitempty"`
	Condition      string        `json:"condition,omitempty"`
	TimeoutSeconds float64       `json:"timeout_seconds"`
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`

	Status    StepStatus             `json:"status"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
}

// Workflow is an executable DAG of tool-invocation steps. An instance is
// created per orchestrated request and discarded after aggregation.
type Workflow struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Steps             []*WorkflowStep        `json:"steps"`
	ExecutionStrategy ExecutionStrategy      `json:"execution_strategy"`
	Status            WorkflowStatus         `json:"status"`
	CreatedAt         time.Time              `json:"created_at"`
	StartTime         *time.Time             `json:"start_time,omitempty"`
	EndTime           *time.Time             `json:"end_time,omitempty"`
	ContextData       map[string]interface{} `json:"context_data,omitempty"`
	Results           map[string]interface{} `json:"results,omitempty"`
}

// Step returns the step with the given id, or nil.
func (w *Workflow) Step(id string) *WorkflowStep {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StepResultSummary is the per-step entry in an aggregated result.
type StepResultSummary struct {
	StepID          string                 `json:"step_id"`
	StepName        string                 `json:"step_name"`
	Status          StepStatus             `json:"status"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
}

// WorkflowResult is the aggregated outcome of a workflow execution.
// Restaurants and Recommendations are convenience merges of any
// same-named keys found in individual step results.
type WorkflowResult struct {
	WorkflowID      string                 `json:"workflow_id"`
	Success         bool                   `json:"success"`
	Status          WorkflowStatus         `json:"status"`
	Steps           []StepResultSummary    `json:"steps"`
	Restaurants     []interface{}          `json:"restaurants,omitempty"`
	Recommendations []interface{}          `json:"recommendations,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
}
