package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tripmind/tripmind/core"
	"github.com/tripmind/tripmind/intent"
)

// TemplateType identifies one of the parameterized workflow shapes.
type TemplateType string

const (
	// Linear two-step search -> recommend pipeline.
	TemplateSearchThenRecommend TemplateType = "search_then_recommend"
	// N independent searches followed by a merge step.
	TemplateMultiSearchMerge TemplateType = "multi_search_merge"
	// Analysis -> refine loop bounded by MaxIterations.
	TemplateIterativeRefinement TemplateType = "iterative_refinement"
	// N parallel searches merged by the intelligent-merger pseudo-tool.
	TemplateParallelIntelligentMerge TemplateType = "parallel_intelligent_merge"
	// Eight recommendation branches gated on MBTI axis letters.
	TemplateMBTIConditional TemplateType = "mbti_conditional_recommendation"
	// Three-stage prepare -> analyze -> interpret sentiment pipeline.
	TemplateSentimentPipeline TemplateType = "sentiment_pipeline"
	// Three-phase discover -> execute -> synthesize for open-ended requests.
	TemplateComprehensivePlanning TemplateType = "comprehensive_planning"
)

// IntelligentMergerTool is the pseudo-tool name the parallel-merge
// template addresses; the hosting application registers an
// implementation under this name with its ToolInvoker.
const IntelligentMergerTool = "intelligent_merger"

// TemplateConfig parameterizes workflow construction.
type TemplateConfig struct {
	MaxIterations                int     `yaml:"max_iterations" json:"max_iterations"`
	StepTimeoutSeconds           float64 `yaml:"step_timeout_seconds" json:"step_timeout_seconds"`
	RecommendationScoreThreshold float64 `yaml:"recommendation_score_threshold" json:"recommendation_score_threshold"`
	MaxParallelSearches          int     `yaml:"max_parallel_searches" json:"max_parallel_searches"`
	MaxStepRetries               int     `yaml:"max_step_retries" json:"max_step_retries"`
}

// DefaultTemplateConfig returns the config used when none is supplied.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		MaxIterations:                3,
		StepTimeoutSeconds:           30,
		RecommendationScoreThreshold: 0.5,
		MaxParallelSearches:          3,
		MaxStepRetries:               2,
	}
}

// ParseTemplateConfigYAML parses a TemplateConfig from YAML, filling
// unset fields from the defaults.
func ParseTemplateConfigYAML(data []byte) (TemplateConfig, error) {
	cfg := DefaultTemplateConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing template config YAML: %w", err)
	}
	return cfg, nil
}

// ValidateTemplateConfig checks structural preconditions and returns a
// list of violations instead of failing on the first problem.
func ValidateTemplateConfig(t TemplateType, cfg TemplateConfig) []string {
	var violations []string
	if cfg.StepTimeoutSeconds <= 0 {
		violations = append(violations, "step_timeout_seconds must be positive")
	}
	if cfg.RecommendationScoreThreshold < 0 || cfg.RecommendationScoreThreshold > 1 {
		violations = append(violations, "recommendation_score_threshold must be within [0,1]")
	}
	if t == TemplateIterativeRefinement && cfg.MaxIterations < 1 {
		violations = append(violations, "iterative_refinement requires max_iterations >= 1")
	}
	if (t == TemplateMultiSearchMerge || t == TemplateParallelIntelligentMerge) && cfg.MaxParallelSearches < 1 {
		violations = append(violations, "parallel search templates require max_parallel_searches >= 1")
	}
	if cfg.MaxStepRetries < 0 {
		violations = append(violations, "max_step_retries cannot be negative")
	}
	return violations
}

// TemplateManager builds workflows from intents and selected tools.
type TemplateManager struct {
	logger core.Logger
}

// NewTemplateManager creates a template manager.
func NewTemplateManager(logger core.Logger) *TemplateManager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &TemplateManager{logger: logger}
}

// RecommendTemplate selects a template kind from the intent, the
// selected tools, and (when known) the user's MBTI type. The rules
// prefer richer templates when multiple search tools are available.
func (m *TemplateManager) RecommendTemplate(it core.Intent, tools []core.SelectedTool, userCtx *core.UserContext) TemplateType {
	searchTools := toolsMatching(tools, "search")
	recommendTools := toolsMatching(tools, "recommend")
	sentimentTools := toolsMatching(tools, "sentiment")

	mbtiKnown := it.HasParameter("mbti_type") ||
		(userCtx != nil && userCtx.MBTIType != "")

	switch it.Type {
	case core.IntentSentimentAnalysis:
		if len(sentimentTools) > 0 {
			return TemplateSentimentPipeline
		}
		return TemplateComprehensivePlanning
	case core.IntentRecommendation:
		if mbtiKnown && len(recommendTools) > 0 {
			return TemplateMBTIConditional
		}
		if len(recommendTools) > 0 && len(searchTools) > 0 {
			return TemplateIterativeRefinement
		}
		return TemplateSearchThenRecommend
	case core.IntentCombinedSearch:
		if len(searchTools) >= 2 {
			return TemplateParallelIntelligentMerge
		}
		return TemplateSearchThenRecommend
	case core.IntentSearchByLocation, core.IntentSearchByMeal:
		if len(searchTools) >= 2 {
			return TemplateMultiSearchMerge
		}
		return TemplateSearchThenRecommend
	default:
		return TemplateComprehensivePlanning
	}
}

// CreateWorkflowFromTemplate instantiates the given template kind.
// Config violations are returned as an error listing every problem.
func (m *TemplateManager) CreateWorkflowFromTemplate(
	t TemplateType,
	it core.Intent,
	tools []core.SelectedTool,
	cfg *TemplateConfig,
	userCtx *core.UserContext,
) (*core.Workflow, error) {
	config := DefaultTemplateConfig()
	if cfg != nil {
		config = *cfg
	}
	if violations := ValidateTemplateConfig(t, config); len(violations) > 0 {
		return nil, fmt.Errorf("invalid template config: %s", strings.Join(violations, "; "))
	}

	var wf *core.Workflow
	var err error
	switch t {
	case TemplateSearchThenRecommend:
		wf, err = m.buildSearchThenRecommend(it, tools, config)
	case TemplateMultiSearchMerge:
		wf, err = m.buildMultiSearchMerge(it, tools, config)
	case TemplateIterativeRefinement:
		wf, err = m.buildIterativeRefinement(it, tools, config)
	case TemplateParallelIntelligentMerge:
		wf, err = m.buildParallelIntelligentMerge(it, tools, config)
	case TemplateMBTIConditional:
		wf, err = m.buildMBTIConditional(it, tools, config, userCtx)
	case TemplateSentimentPipeline:
		wf, err = m.buildSentimentPipeline(it, tools, config)
	case TemplateComprehensivePlanning:
		wf, err = m.buildComprehensivePlanning(it, tools, config)
	default:
		return nil, fmt.Errorf("unknown template type %q", t)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Workflow built from template", map[string]interface{}{
		"template":    string(t),
		"workflow_id": wf.ID,
		"step_count":  len(wf.Steps),
		"strategy":    string(wf.ExecutionStrategy),
	})
	return wf, nil
}

func newWorkflow(name string, strategy core.ExecutionStrategy) *core.Workflow {
	return &core.Workflow{
		ID:                uuid.New().String(),
		Name:              name,
		ExecutionStrategy: strategy,
		Status:            core.WorkflowPending,
		CreatedAt:         time.Now(),
		ContextData:       make(map[string]interface{}),
	}
}

// intentInputMappings wires the commonly extracted parameters into a
// search-style step's inputs.
func intentInputMappings() []core.DataMapping {
	return []core.DataMapping{
		{SourceField: "intent.parameters.districts", TargetField: "districts"},
		{SourceField: "intent.parameters.meal_types", TargetField: "meal_types"},
		{SourceField: "intent.parameters.cuisine_type", TargetField: "cuisine_type"},
		{SourceField: "intent.parameters.price_range", TargetField: "price_range"},
	}
}

func (m *TemplateManager) buildSearchThenRecommend(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig) (*core.Workflow, error) {
	searchTool, ok := firstToolMatching(tools, "search")
	if !ok {
		return nil, fmt.Errorf("search_then_recommend requires a search tool")
	}
	wf := newWorkflow("search_then_recommend", core.StrategySequential)

	wf.Steps = append(wf.Steps, &core.WorkflowStep{
		ID:             "search",
		ToolID:         searchTool.ToolID,
		ToolName:       searchTool.ToolName,
		FallbackTools:  searchTool.FallbackTools,
		InputMapping:   intentInputMappings(),
		TimeoutSeconds: cfg.StepTimeoutSeconds,
		MaxRetries:     cfg.MaxStepRetries,
		Status:         core.StepPending,
	})

	if recommendTool, ok := firstToolMatching(tools, "recommend"); ok {
		wf.Steps = append(wf.Steps, &core.WorkflowStep{
			ID:            "recommend",
			ToolID:        recommendTool.ToolID,
			ToolName:      recommendTool.ToolName,
			FallbackTools: recommendTool.FallbackTools,
			DependsOn:     []string{"search"},
			// Runs only when the search produced results.
			Condition: "search.total_count > 0",
			InputMapping: []core.DataMapping{
				{SourceField: "search.restaurants", TargetField: "restaurants", Required: true},
				{SourceField: "intent.parameters.mbti_type", TargetField: "mbti_type"},
				{SourceField: "", TargetField: "score_threshold", DefaultValue: cfg.RecommendationScoreThreshold},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		})
	}
	return wf, nil
}

func (m *TemplateManager) buildMultiSearchMerge(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig) (*core.Workflow, error) {
	searchTools := toolsMatching(tools, "search")
	if len(searchTools) == 0 {
		return nil, fmt.Errorf("multi_search_merge requires at least one search tool")
	}
	if len(searchTools) > cfg.MaxParallelSearches {
		searchTools = searchTools[:cfg.MaxParallelSearches]
	}

	wf := newWorkflow("multi_search_merge", core.StrategyParallel)
	var searchIDs []string
	for i, tool := range searchTools {
		id := fmt.Sprintf("search_%d", i+1)
		searchIDs = append(searchIDs, id)
		wf.Steps = append(wf.Steps, &core.WorkflowStep{
			ID:             id,
			ToolID:         tool.ToolID,
			ToolName:       tool.ToolName,
			FallbackTools:  tool.FallbackTools,
			InputMapping:   intentInputMappings(),
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		})
	}

	mergeInputs := make([]core.DataMapping, 0, len(searchIDs))
	for _, id := range searchIDs {
		mergeInputs = append(mergeInputs, core.DataMapping{
			SourceField:  id + ".restaurants",
			TargetField:  id + "_results",
			DefaultValue: []interface{}{},
		})
	}
	mergeTool := searchTools[0]
	if rec, ok := firstToolMatching(tools, "recommend"); ok {
		mergeTool = rec
	}
	wf.Steps = append(wf.Steps, &core.WorkflowStep{
		ID:             "merge",
		ToolID:         mergeTool.ToolID,
		ToolName:       mergeTool.ToolName,
		DependsOn:      searchIDs,
		InputMapping:   mergeInputs,
		TimeoutSeconds: cfg.StepTimeoutSeconds,
		Status:         core.StepPending,
	})
	return wf, nil
}

func (m *TemplateManager) buildIterativeRefinement(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig) (*core.Workflow, error) {
	searchTool, ok := firstToolMatching(tools, "search")
	if !ok {
		if searchTool, ok = firstToolMatching(tools, "recommend"); !ok {
			return nil, fmt.Errorf("iterative_refinement requires a search or recommend tool")
		}
	}
	refineTool, ok := firstToolMatching(tools, "recommend")
	if !ok {
		refineTool = searchTool
	}

	wf := newWorkflow("iterative_refinement", core.StrategySequential)
	wf.ContextData["max_iterations"] = cfg.MaxIterations

	wf.Steps = append(wf.Steps, &core.WorkflowStep{
		ID:             "initial_search",
		ToolID:         searchTool.ToolID,
		ToolName:       searchTool.ToolName,
		FallbackTools:  searchTool.FallbackTools,
		InputMapping:   intentInputMappings(),
		TimeoutSeconds: cfg.StepTimeoutSeconds,
		MaxRetries:     cfg.MaxStepRetries,
		Status:         core.StepPending,
	})

	prev := "initial_search"
	for i := 1; i <= cfg.MaxIterations; i++ {
		id := fmt.Sprintf("refine_%d", i)
		wf.Steps = append(wf.Steps, &core.WorkflowStep{
			ID:            id,
			ToolID:        refineTool.ToolID,
			ToolName:      refineTool.ToolName,
			FallbackTools: refineTool.FallbackTools,
			DependsOn:     []string{prev},
			// Stop refining once the previous pass is confident enough.
			Condition: fmt.Sprintf("%s.needs_refinement == true", prev),
			InputMapping: []core.DataMapping{
				{SourceField: prev + ".restaurants", TargetField: "candidates", Required: true},
				{SourceField: prev + ".refinement_hint", TargetField: "refinement_hint"},
				{SourceField: "", TargetField: "iteration", DefaultValue: i},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			Status:         core.StepPending,
		})
		prev = id
	}
	return wf, nil
}

func (m *TemplateManager) buildParallelIntelligentMerge(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig) (*core.Workflow, error) {
	searchTools := toolsMatching(tools, "search")
	if len(searchTools) == 0 {
		return nil, fmt.Errorf("parallel_intelligent_merge requires search tools")
	}
	if len(searchTools) > cfg.MaxParallelSearches {
		searchTools = searchTools[:cfg.MaxParallelSearches]
	}

	wf := newWorkflow("parallel_intelligent_merge", core.StrategyParallel)
	var searchIDs []string
	for i, tool := range searchTools {
		id := fmt.Sprintf("search_%d", i+1)
		searchIDs = append(searchIDs, id)
		wf.Steps = append(wf.Steps, &core.WorkflowStep{
			ID:             id,
			ToolID:         tool.ToolID,
			ToolName:       tool.ToolName,
			FallbackTools:  tool.FallbackTools,
			InputMapping:   intentInputMappings(),
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		})
	}

	mergeInputs := []core.DataMapping{
		{SourceField: "intent.parameters.mbti_type", TargetField: "mbti_type"},
		{SourceField: "", TargetField: "score_threshold", DefaultValue: cfg.RecommendationScoreThreshold},
	}
	for _, id := range searchIDs {
		mergeInputs = append(mergeInputs, core.DataMapping{
			SourceField:  id + ".restaurants",
			TargetField:  id + "_results",
			DefaultValue: []interface{}{},
		})
	}
	wf.Steps = append(wf.Steps, &core.WorkflowStep{
		ID:             "intelligent_merge",
		ToolID:         IntelligentMergerTool,
		ToolName:       IntelligentMergerTool,
		DependsOn:      searchIDs,
		InputMapping:   mergeInputs,
		TimeoutSeconds: cfg.StepTimeoutSeconds,
		Status:         core.StepPending,
	})
	return wf, nil
}

// buildMBTIConditional emits eight recommendation branches, one per
// axis letter, each gated by a condition on the axis values the builder
// records in the workflow context data. Only the four branches matching
// the user's type will run.
func (m *TemplateManager) buildMBTIConditional(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig, userCtx *core.UserContext) (*core.Workflow, error) {
	recommendTool, ok := firstToolMatching(tools, "recommend")
	if !ok {
		return nil, fmt.Errorf("mbti_conditional_recommendation requires a recommend tool")
	}
	mbtiType := ""
	if v, ok := it.Parameters["mbti_type"].(string); ok {
		mbtiType = strings.ToUpper(v)
	}
	if mbtiType == "" && userCtx != nil {
		mbtiType = strings.ToUpper(userCtx.MBTIType)
	}
	if len(mbtiType) != 4 {
		return nil, fmt.Errorf("mbti_conditional_recommendation requires a known MBTI type")
	}

	wf := newWorkflow("mbti_conditional_recommendation", core.StrategyConditional)
	wf.ContextData["mbti_type"] = mbtiType
	wf.ContextData["mbti_axis_ei"] = string(mbtiType[0])
	wf.ContextData["mbti_axis_ns"] = string(mbtiType[1])
	wf.ContextData["mbti_axis_tf"] = string(mbtiType[2])
	wf.ContextData["mbti_axis_jp"] = string(mbtiType[3])

	if searchTool, ok := firstToolMatching(tools, "search"); ok {
		wf.Steps = append(wf.Steps, &core.WorkflowStep{
			ID:             "search",
			ToolID:         searchTool.ToolID,
			ToolName:       searchTool.ToolName,
			FallbackTools:  searchTool.FallbackTools,
			InputMapping:   intentInputMappings(),
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		})
	}

	axes := []struct {
		contextKey string
		letters    [2]byte
	}{
		{"workflow.mbti_axis_ei", [2]byte{'E', 'I'}},
		{"workflow.mbti_axis_ns", [2]byte{'N', 'S'}},
		{"workflow.mbti_axis_tf", [2]byte{'T', 'F'}},
		{"workflow.mbti_axis_jp", [2]byte{'J', 'P'}},
	}
	var deps []string
	if len(wf.Steps) > 0 {
		deps = []string{"search"}
	}
	for _, axis := range axes {
		for _, letter := range axis.letters {
			style := intent.RecommendationStyle(letter)
			inputs := []core.DataMapping{
				{SourceField: "workflow.mbti_type", TargetField: "mbti_type", Required: true},
				{SourceField: "", TargetField: "style", DefaultValue: style},
				{SourceField: "", TargetField: "score_threshold", DefaultValue: cfg.RecommendationScoreThreshold},
			}
			if len(deps) > 0 {
				inputs = append(inputs, core.DataMapping{
					SourceField: "search.restaurants", TargetField: "restaurants",
					DefaultValue: []interface{}{},
				})
			}
			wf.Steps = append(wf.Steps, &core.WorkflowStep{
				ID:             "recommend_" + strings.ToLower(string(letter)),
				ToolID:         recommendTool.ToolID,
				ToolName:       recommendTool.ToolName,
				FallbackTools:  recommendTool.FallbackTools,
				DependsOn:      deps,
				Condition:      fmt.Sprintf("%s == %s", axis.contextKey, string(letter)),
				InputMapping:   inputs,
				TimeoutSeconds: cfg.StepTimeoutSeconds,
				Status:         core.StepPending,
			})
		}
	}
	return wf, nil
}

func (m *TemplateManager) buildSentimentPipeline(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig) (*core.Workflow, error) {
	sentimentTool, ok := firstToolMatching(tools, "sentiment")
	if !ok {
		return nil, fmt.Errorf("sentiment_pipeline requires a sentiment tool")
	}

	wf := newWorkflow("sentiment_pipeline", core.StrategySequential)
	wf.Steps = append(wf.Steps,
		&core.WorkflowStep{
			ID:       "prepare",
			ToolID:   sentimentTool.ToolID,
			ToolName: sentimentTool.ToolName,
			InputMapping: []core.DataMapping{
				{SourceField: "intent.parameters.districts", TargetField: "districts"},
				{SourceField: "", TargetField: "phase", DefaultValue: "prepare"},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		},
		&core.WorkflowStep{
			ID:        "analyze",
			ToolID:    sentimentTool.ToolID,
			ToolName:  sentimentTool.ToolName,
			DependsOn: []string{"prepare"},
			InputMapping: []core.DataMapping{
				{SourceField: "prepare.targets", TargetField: "targets", Required: true},
				{SourceField: "", TargetField: "phase", DefaultValue: "analyze"},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		},
		&core.WorkflowStep{
			ID:        "interpret",
			ToolID:    sentimentTool.ToolID,
			ToolName:  sentimentTool.ToolName,
			DependsOn: []string{"analyze"},
			Condition: "exists analyze.scores",
			InputMapping: []core.DataMapping{
				{SourceField: "analyze.scores", TargetField: "scores", Required: true},
				{SourceField: "intent.parameters.mbti_type", TargetField: "mbti_type"},
				{SourceField: "", TargetField: "phase", DefaultValue: "interpret"},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			Status:         core.StepPending,
		},
	)
	return wf, nil
}

func (m *TemplateManager) buildComprehensivePlanning(it core.Intent, tools []core.SelectedTool, cfg TemplateConfig) (*core.Workflow, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("comprehensive_planning requires at least one tool")
	}
	discover := tools[0]
	if t, ok := firstToolMatching(tools, "search"); ok {
		discover = t
	}
	execute := discover
	if t, ok := firstToolMatching(tools, "recommend"); ok {
		execute = t
	}
	synthesize := execute

	wf := newWorkflow("comprehensive_planning", core.StrategySequential)
	wf.Steps = append(wf.Steps,
		&core.WorkflowStep{
			ID:            "discover",
			ToolID:        discover.ToolID,
			ToolName:      discover.ToolName,
			FallbackTools: discover.FallbackTools,
			InputMapping: append(intentInputMappings(),
				core.DataMapping{SourceField: "intent.type", TargetField: "intent_type"},
				core.DataMapping{SourceField: "", TargetField: "phase", DefaultValue: "discover"},
			),
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		},
		&core.WorkflowStep{
			ID:            "execute",
			ToolID:        execute.ToolID,
			ToolName:      execute.ToolName,
			FallbackTools: execute.FallbackTools,
			DependsOn:     []string{"discover"},
			Condition:     "discover.candidate_count > 0",
			InputMapping: []core.DataMapping{
				{SourceField: "discover.candidates", TargetField: "candidates", Required: true},
				{SourceField: "intent.parameters.mbti_type", TargetField: "mbti_type"},
				{SourceField: "", TargetField: "phase", DefaultValue: "execute"},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			MaxRetries:     cfg.MaxStepRetries,
			Status:         core.StepPending,
		},
		&core.WorkflowStep{
			ID:            "synthesize",
			ToolID:        synthesize.ToolID,
			ToolName:      synthesize.ToolName,
			FallbackTools: synthesize.FallbackTools,
			DependsOn:     []string{"execute"},
			InputMapping: []core.DataMapping{
				{SourceField: "execute.recommendations", TargetField: "recommendations", DefaultValue: []interface{}{}},
				{SourceField: "discover.candidates", TargetField: "candidates", DefaultValue: []interface{}{}},
				{SourceField: "", TargetField: "phase", DefaultValue: "synthesize"},
			},
			TimeoutSeconds: cfg.StepTimeoutSeconds,
			Status:         core.StepPending,
		},
	)
	return wf, nil
}

func toolsMatching(tools []core.SelectedTool, substr string) []core.SelectedTool {
	var out []core.SelectedTool
	for _, t := range tools {
		if strings.Contains(strings.ToLower(t.ToolName), substr) {
			out = append(out, t)
		}
	}
	return out
}

func firstToolMatching(tools []core.SelectedTool, substr string) (core.SelectedTool, bool) {
	for _, t := range tools {
		if strings.Contains(strings.ToLower(t.ToolName), substr) {
			return t, true
		}
	}
	return core.SelectedTool{}, false
}
