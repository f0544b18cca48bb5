package intent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tripmind/tripmind/core"
)

func fixedClock(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
	}
}

func TestContextAnalyzerWithoutUserReturnsBase(t *testing.T) {
	c := NewContextAnalyzer(nil, nil, nil, nil)

	it := c.AnalyzeIntentWithContext(context.Background(), "recommend dinner", nil)
	base := NewAnalyzer(nil).AnalyzeIntent("recommend dinner", nil)

	if it.Type != base.Type || it.Confidence != base.Confidence {
		t.Errorf("expected base intent unchanged, got %s/%f vs %s/%f",
			it.Type, it.Confidence, base.Type, base.Confidence)
	}
}

func TestTimeOfDayBoost(t *testing.T) {
	store := NewInMemoryProfileStore(0)
	c := NewContextAnalyzer(nil, store, nil, nil)
	userCtx := &core.UserContext{UserID: "u-time"}

	c.SetClock(fixedClock(8))
	morning := c.AnalyzeIntentWithContext(context.Background(), "find breakfast spots", userCtx)

	if err := store.Delete(context.Background(), "u-time"); err != nil {
		t.Fatal(err)
	}
	c.SetClock(fixedClock(20))
	evening := c.AnalyzeIntentWithContext(context.Background(), "find breakfast spots", userCtx)

	if morning.Confidence <= evening.Confidence {
		t.Errorf("breakfast request at 08:00 (%f) should score above 20:00 (%f)",
			morning.Confidence, evening.Confidence)
	}
}

func TestRepetitionBoost(t *testing.T) {
	store := NewInMemoryProfileStore(0)
	c := NewContextAnalyzer(nil, store, nil, nil)
	c.SetClock(fixedClock(14))
	ctx := context.Background()
	userCtx := &core.UserContext{UserID: "u-rep"}

	first := c.AnalyzeIntentWithContext(ctx, "recommend some restaurants", userCtx)
	var last core.Intent
	for i := 0; i < 4; i++ {
		last = c.AnalyzeIntentWithContext(ctx, "recommend some restaurants", userCtx)
	}

	if last.Confidence <= first.Confidence {
		t.Errorf("repeated intent should gain confidence: first %f, later %f",
			first.Confidence, last.Confidence)
	}
}

func TestConfidenceClampedWithAllBoosts(t *testing.T) {
	store := NewInMemoryProfileStore(0)
	c := NewContextAnalyzer(nil, store, nil, nil)
	c.SetClock(fixedClock(8))
	ctx := context.Background()
	userCtx := &core.UserContext{UserID: "u-clamp", MBTIType: "ENFP"}

	request := "recommend the best japanese breakfast in central for my ENFP personality"
	var it core.Intent
	for i := 0; i < 10; i++ {
		it = c.AnalyzeIntentWithContext(ctx, request, userCtx)
	}
	if it.Confidence < 0 || it.Confidence > 1 {
		t.Errorf("confidence %f outside [0, 1]", it.Confidence)
	}
}

func TestEnrichParametersFromProfile(t *testing.T) {
	store := NewInMemoryProfileStore(0)
	c := NewContextAnalyzer(nil, store, nil, nil)
	ctx := context.Background()
	userCtx := &core.UserContext{UserID: "u-enrich", MBTIType: "INTJ"}

	c.AnalyzeIntentWithContext(ctx, "find japanese dinner in mong kok", userCtx)

	// Later request with no MBTI or cuisine mentioned.
	it := c.AnalyzeIntentWithContext(ctx, "find somewhere for dinner", &core.UserContext{UserID: "u-enrich"})

	if got, _ := it.Parameters["mbti_type"].(string); got != "INTJ" {
		t.Errorf("expected mbti_type INTJ from profile, got %v", it.Parameters["mbti_type"])
	}
	cuisines, _ := it.Parameters["preferred_cuisines"].([]string)
	if len(cuisines) == 0 || cuisines[0] != "japanese" {
		t.Errorf("expected learned cuisine japanese, got %v", it.Parameters["preferred_cuisines"])
	}
}

func TestRecordOutcomeLowersSuccessRate(t *testing.T) {
	store := NewInMemoryProfileStore(0)
	c := NewContextAnalyzer(nil, store, nil, nil)
	ctx := context.Background()
	userCtx := &core.UserContext{UserID: "u-outcome"}

	c.AnalyzeIntentWithContext(ctx, "recommend lunch", userCtx)
	c.RecordOutcome(ctx, "u-outcome", false)

	profile, err := store.Get(ctx, "u-outcome")
	if err != nil || profile == nil {
		t.Fatalf("expected stored profile, err=%v", err)
	}
	if rate := profile.SuccessRate(); rate != 0 {
		t.Errorf("expected success rate 0 after failed outcome, got %f", rate)
	}
}

func TestPruneHistory(t *testing.T) {
	now := time.Now()
	p := &UserProfile{
		UserID: "u-prune",
		History: []HistoryEntry{
			{Request: "old", Timestamp: now.Add(-31 * 24 * time.Hour)},
			{Request: "recent", Timestamp: now.Add(-1 * time.Hour)},
		},
	}
	p.PruneHistory(now, 30*24*time.Hour)
	if len(p.History) != 1 || p.History[0].Request != "recent" {
		t.Errorf("expected only the recent entry, got %v", p.History)
	}
}

func TestSuccessRateEmptyHistory(t *testing.T) {
	p := &UserProfile{}
	if rate := p.SuccessRate(); rate != 1.0 {
		t.Errorf("empty history should report 1.0, got %f", rate)
	}
}

func TestInMemoryProfileStoreLRUEviction(t *testing.T) {
	store := NewInMemoryProfileStore(3)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Save(ctx, &UserProfile{UserID: fmt.Sprintf("u%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 profiles after eviction, got %d", store.Len())
	}

	// u0 was least recently used and should be gone.
	p, err := store.Get(ctx, "u0")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("expected u0 evicted")
	}
	if p, _ := store.Get(ctx, "u3"); p == nil {
		t.Error("expected u3 retained")
	}
}

func TestInMemoryProfileStoreGetRefreshesRecency(t *testing.T) {
	store := NewInMemoryProfileStore(2)
	ctx := context.Background()

	store.Save(ctx, &UserProfile{UserID: "a"})
	store.Save(ctx, &UserProfile{UserID: "b"})
	store.Get(ctx, "a") // a becomes most recent
	store.Save(ctx, &UserProfile{UserID: "c"})

	if p, _ := store.Get(ctx, "a"); p == nil {
		t.Error("expected a retained after recent access")
	}
	if p, _ := store.Get(ctx, "b"); p != nil {
		t.Error("expected b evicted")
	}
}
