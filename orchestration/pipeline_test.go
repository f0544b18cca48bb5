package orchestration

import (
	"context"
	"testing"

	"github.com/tripmind/tripmind/core"
	"github.com/tripmind/tripmind/intent"
)

func TestSelectToolsConfidenceAndOrder(t *testing.T) {
	c := NewToolCatalog()
	c.Register(ToolDescriptor{
		ToolID:       "t-full",
		ToolName:     "restaurant_combined",
		Capabilities: []string{"search_restaurants_combined", "recommend_restaurants"},
	})
	c.Register(ToolDescriptor{
		ToolID:       "t-search-only",
		ToolName:     "restaurant_search",
		Capabilities: []string{"search_restaurants_combined"},
	})

	it := core.Intent{
		Type:                 core.IntentCombinedSearch,
		RequiredCapabilities: []string{"search_restaurants_combined", "recommend_restaurants"},
	}
	selected := c.SelectTools(it)
	if len(selected) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(selected))
	}
	if selected[0].ToolID != "t-full" || selected[0].Confidence != 1.0 {
		t.Errorf("best tool = %s (%f)", selected[0].ToolID, selected[0].Confidence)
	}
	if selected[1].ToolID != "t-search-only" || selected[1].Confidence != 0.5 {
		t.Errorf("second tool = %s (%f)", selected[1].ToolID, selected[1].Confidence)
	}
	if len(selected[0].FallbackTools) != 1 || selected[0].FallbackTools[0] != "t-search-only" {
		t.Errorf("fallbacks = %v", selected[0].FallbackTools)
	}
}

func TestSelectToolsOptionalBonus(t *testing.T) {
	c := NewToolCatalog()
	c.Register(ToolDescriptor{
		ToolID:       "t-search",
		ToolName:     "restaurant_search",
		Capabilities: []string{"search_restaurants_combined", "filter_by_cuisine"},
	})

	it := core.Intent{
		RequiredCapabilities: []string{"search_restaurants_combined", "recommend_restaurants"},
		OptionalCapabilities: []string{"filter_by_cuisine"},
	}
	selected := c.SelectTools(it)
	if len(selected) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(selected))
	}
	if got := selected[0].Confidence; got < 0.549 || got > 0.551 {
		t.Errorf("confidence = %f, want 0.55", got)
	}
}

func TestSelectToolsExcludesNonMatching(t *testing.T) {
	c := NewToolCatalog()
	c.Register(ToolDescriptor{
		ToolID:       "t-sentiment",
		ToolName:     "review_sentiment",
		Capabilities: []string{"analyze_restaurant_sentiment"},
	})

	it := core.Intent{RequiredCapabilities: []string{"recommend_restaurants"}}
	if selected := c.SelectTools(it); len(selected) != 0 {
		t.Errorf("expected no tools, got %v", selected)
	}
}

func TestFindByCapability(t *testing.T) {
	c := NewToolCatalog()
	c.Register(ToolDescriptor{ToolID: "t-b", Capabilities: []string{"recommend_restaurants"}})
	c.Register(ToolDescriptor{ToolID: "t-a", Capabilities: []string{"recommend_restaurants"}})
	c.Register(ToolDescriptor{ToolID: "t-c", Capabilities: []string{"analyze_restaurant_sentiment"}})

	ids := c.FindByCapability("recommend_restaurants")
	if len(ids) != 2 || ids[0] != "t-a" || ids[1] != "t-b" {
		t.Errorf("ids = %v", ids)
	}
}

func newTestPipeline(t *testing.T, invoker core.ToolInvoker, catalog *ToolCatalog) *Pipeline {
	t.Helper()
	analyzer := intent.NewContextAnalyzer(nil, intent.NewInMemoryProfileStore(10), nil, nil)
	engine := NewWorkflowEngine(invoker, nil, EngineConfig{}, nil, nil)
	return NewPipeline(analyzer, catalog, NewTemplateManager(nil), engine, DefaultTemplateConfig(), nil)
}

func TestOrchestrateEndToEnd(t *testing.T) {
	invoker := NewLocalToolInvoker()
	invoker.Register("restaurant_search", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"restaurants": []interface{}{
				map[string]interface{}{"id": "r1", "name": "Morning Bowl", "score": 0.8},
				map[string]interface{}{"id": "r2", "name": "Central Diner", "score": 0.7},
			},
			"total_count": 2,
		}, nil
	})
	invoker.Register("restaurant_recommend", func(ctx context.Context, toolName string, inputs map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"recommendations": []interface{}{
				map[string]interface{}{"id": "r1", "name": "Morning Bowl", "score": 0.9},
			},
		}, nil
	})

	catalog := NewToolCatalog()
	catalog.Register(ToolDescriptor{
		ToolID:       "t-search",
		ToolName:     "restaurant_search",
		Capabilities: []string{"search_restaurants_combined", "search_restaurants_by_district"},
	})
	catalog.Register(ToolDescriptor{
		ToolID:       "t-rec",
		ToolName:     "restaurant_recommend",
		Capabilities: []string{"recommend_restaurants"},
	})

	p := newTestPipeline(t, invoker, catalog)
	out, err := p.Orchestrate(context.Background(), "Find breakfast places in Central district",
		&core.UserContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("orchestrate failed: %v (out %v)", err, out)
	}

	if out["success"] != true {
		t.Errorf("success = %v", out["success"])
	}
	if out["workflow_id"] == "" || out["workflow_id"] == nil {
		t.Error("missing workflow_id")
	}
	if out["intent_type"] != string(core.IntentCombinedSearch) {
		t.Errorf("intent_type = %v", out["intent_type"])
	}
	if out["restaurants"] == nil {
		t.Error("missing aggregated restaurants")
	}
}

func TestOrchestrateNoMatchingTools(t *testing.T) {
	p := newTestPipeline(t, NewLocalToolInvoker(), NewToolCatalog())

	_, err := p.Orchestrate(context.Background(), "Find breakfast places in Central district", nil)
	if err == nil {
		t.Fatal("expected error with an empty catalog")
	}
	if core.KindOf(err) != core.ErrorKindDependency {
		t.Errorf("kind = %s", core.KindOf(err))
	}
}
