package orchestration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tripmind/tripmind/core"
	"github.com/tripmind/tripmind/intent"
)

// ToolDescriptor describes one downstream tool the pipeline can select.
type ToolDescriptor struct {
	ToolID       string             `json:"tool_id" yaml:"tool_id"`
	ToolName     string             `json:"tool_name" yaml:"tool_name"`
	Capabilities []string           `json:"capabilities" yaml:"capabilities"`
	Performance  map[string]float64 `json:"performance,omitempty" yaml:"performance,omitempty"`
}

// ToolCatalog holds the registered tool descriptors. Tools register at
// startup; the catalog is read-mostly afterwards.
type ToolCatalog struct {
	mu    sync.RWMutex
	tools map[string]ToolDescriptor
}

// NewToolCatalog creates an empty catalog.
func NewToolCatalog() *ToolCatalog {
	return &ToolCatalog{tools: make(map[string]ToolDescriptor)}
}

// Register adds or replaces a tool descriptor.
func (c *ToolCatalog) Register(d ToolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[d.ToolID] = d
}

// Tools returns all descriptors, ordered by tool id for determinism.
func (c *ToolCatalog) Tools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(c.tools))
	for _, d := range c.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}

// FindByCapability returns the ids of tools advertising a capability.
func (c *ToolCatalog) FindByCapability(capability string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, d := range c.tools {
		for _, cap := range d.Capabilities {
			if cap == capability {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// SelectTools matches the intent's capabilities against the catalog.
// A tool's confidence is the fraction of the intent's required
// capabilities it covers, with a small bonus per optional capability.
// Fallbacks are other tools sharing at least one required capability.
func (c *ToolCatalog) SelectTools(it core.Intent) []core.SelectedTool {
	descriptors := c.Tools()
	var selected []core.SelectedTool

	for _, d := range descriptors {
		capSet := make(map[string]bool, len(d.Capabilities))
		for _, cap := range d.Capabilities {
			capSet[cap] = true
		}

		requiredHits := 0
		for _, cap := range it.RequiredCapabilities {
			if capSet[cap] {
				requiredHits++
			}
		}
		if requiredHits == 0 {
			continue
		}
		optionalHits := 0
		for _, cap := range it.OptionalCapabilities {
			if capSet[cap] {
				optionalHits++
			}
		}

		confidence := float64(requiredHits) / float64(len(it.RequiredCapabilities))
		confidence += 0.05 * float64(optionalHits)

		var fallbacks []string
		for _, other := range descriptors {
			if other.ToolID == d.ToolID {
				continue
			}
			for _, cap := range other.Capabilities {
				if capSet[cap] {
					fallbacks = append(fallbacks, other.ToolID)
					break
				}
			}
		}

		selected = append(selected, core.SelectedTool{
			ToolID:              d.ToolID,
			ToolName:            d.ToolName,
			Confidence:          core.ClampConfidence(confidence),
			ExpectedPerformance: d.Performance,
			FallbackTools:       fallbacks,
			SelectionReason:     fmt.Sprintf("covers %d/%d required capabilities", requiredHits, len(it.RequiredCapabilities)),
		})
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Confidence > selected[j].Confidence
	})
	return selected
}

// Pipeline wires the full request path: intent analysis, tool
// selection, template choice, workflow construction and execution. It
// is the facade the middleware routes orchestrated requests through.
type Pipeline struct {
	analyzer  *intent.ContextAnalyzer
	catalog   *ToolCatalog
	templates *TemplateManager
	engine    *WorkflowEngine
	config    TemplateConfig
	logger    core.Logger
}

// NewPipeline assembles a pipeline from its parts.
func NewPipeline(analyzer *intent.ContextAnalyzer, catalog *ToolCatalog, templates *TemplateManager, engine *WorkflowEngine, config TemplateConfig, logger core.Logger) *Pipeline {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Pipeline{
		analyzer:  analyzer,
		catalog:   catalog,
		templates: templates,
		engine:    engine,
		config:    config,
		logger:    logger,
	}
}

// Orchestrate runs one request end to end and returns the aggregated
// workflow result as a flat map.
func (p *Pipeline) Orchestrate(ctx context.Context, requestText string, userCtx *core.UserContext) (map[string]interface{}, error) {
	it := p.analyzer.AnalyzeIntentWithContext(ctx, requestText, userCtx)

	tools := p.catalog.SelectTools(it)
	if len(tools) == 0 {
		return nil, &core.OrchestrationError{
			Op:      "orchestrate",
			Kind:    core.ErrorKindDependency,
			Message: fmt.Sprintf("no tools available for capabilities %v", it.RequiredCapabilities),
		}
	}

	templateType := p.templates.RecommendTemplate(it, tools, userCtx)
	wf, err := p.templates.CreateWorkflowFromTemplate(templateType, it, tools, &p.config, userCtx)
	if err != nil {
		return nil, fmt.Errorf("building workflow from template %s: %w", templateType, err)
	}

	p.logger.Info("Orchestrating request", map[string]interface{}{
		"workflow_id": wf.ID,
		"template":    string(templateType),
		"intent":      string(it.Type),
		"confidence":  it.Confidence,
		"tools":       len(tools),
	})

	result, execErr := p.engine.ExecuteWorkflow(ctx, wf, userCtx, it)
	if result == nil {
		return nil, execErr
	}

	if p.analyzer != nil && userCtx != nil && userCtx.UserID != "" {
		p.analyzer.RecordOutcome(ctx, userCtx.UserID, result.Success)
	}

	out := map[string]interface{}{
		"workflow_id":       result.WorkflowID,
		"success":           result.Success,
		"status":            string(result.Status),
		"template":          string(templateType),
		"intent_type":       string(it.Type),
		"intent_confidence": it.Confidence,
		"steps":             result.Steps,
		"data":              result.Data,
		"execution_time_ms": result.ExecutionTimeMS,
	}
	if len(result.Restaurants) > 0 {
		out["restaurants"] = result.Restaurants
	}
	if len(result.Recommendations) > 0 {
		out["recommendations"] = result.Recommendations
	}
	if result.Error != "" {
		out["error"] = result.Error
	}
	if !result.Success {
		return out, fmt.Errorf("workflow %s finished with status %s", result.WorkflowID, result.Status)
	}
	return out, nil
}
