package intent

import (
	"context"
	"strings"
	"time"

	"github.com/tripmind/tripmind/core"
)

const historyRetention = 30 * 24 * time.Hour

// ContextAnalyzer wraps the base Analyzer with user-history, MBTI, and
// temporal awareness. It owns no profile storage itself: the injected
// ProfileStore decides lifecycle and eviction.
type ContextAnalyzer struct {
	base    *Analyzer
	store   ProfileStore
	logger  core.Logger
	metrics core.MetricsSink
	now     func() time.Time
}

// NewContextAnalyzer creates a context-aware analyzer on top of base.
func NewContextAnalyzer(base *Analyzer, store ProfileStore, logger core.Logger, metrics core.MetricsSink) *ContextAnalyzer {
	if base == nil {
		base = NewAnalyzer(logger)
	}
	if store == nil {
		store = NewInMemoryProfileStore(DefaultMaxProfiles)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = &core.NoOpMetricsSink{}
	}
	return &ContextAnalyzer{
		base:    base,
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Intended for tests of the
// time-of-day heuristic.
func (c *ContextAnalyzer) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// AnalyzeIntentWithContext produces an enriched copy of the base
// analyzer's intent. It never fails: profile store errors are logged and
// the base intent is returned unboosted.
func (c *ContextAnalyzer) AnalyzeIntentWithContext(ctx context.Context, request string, userCtx *core.UserContext) core.Intent {
	start := c.now()
	base := c.base.AnalyzeIntent(request, userCtx)
	if userCtx == nil || userCtx.UserID == "" {
		return base
	}

	profile, err := c.store.Get(ctx, userCtx.UserID)
	if err != nil {
		c.logger.Warn("Profile lookup failed, continuing without context", map[string]interface{}{
			"user_id": userCtx.UserID,
			"error":   err.Error(),
		})
		return base
	}
	if profile == nil {
		profile = &UserProfile{UserID: userCtx.UserID}
	}
	profile.PruneHistory(c.now(), historyRetention)

	c.ensureTraits(profile, userCtx, base)

	confidence := base.Confidence
	confidence += c.mbtiTermBoost(request, profile)
	confidence += c.repetitionBoost(base.Type, profile)
	confidence += c.preferenceBoost(request, profile)
	confidence += c.timeOfDayBoost(base)

	enriched := c.enrichParameters(base, profile)
	enriched = enriched.WithConfidence(confidence)

	c.appendHistory(ctx, profile, request, enriched)

	c.metrics.RecordOperation("intent.analyze_with_context", c.now().Sub(start), true, map[string]interface{}{
		"intent_type": string(enriched.Type),
	})

	return enriched
}

// RecordOutcome flips the success flag on the most recent history entry
// for the user. Callers invoke it after the orchestrated request
// completes, which feeds the rolling success rate used by the
// repetition boost.
func (c *ContextAnalyzer) RecordOutcome(ctx context.Context, userID string, success bool) {
	if userID == "" {
		return
	}
	profile, err := c.store.Get(ctx, userID)
	if err != nil || profile == nil || len(profile.History) == 0 {
		return
	}
	profile.History[len(profile.History)-1].Success = success
	profile.UpdatedAt = c.now()
	if err := c.store.Save(ctx, profile); err != nil {
		c.logger.Warn("Failed to record request outcome", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// ensureTraits derives and caches the MBTI trait profile when a type is
// known from the request, the user context, or a previous session.
func (c *ContextAnalyzer) ensureTraits(profile *UserProfile, userCtx *core.UserContext, base core.Intent) {
	code := ""
	if v, ok := base.Parameters["mbti_type"].(string); ok {
		code = v
	}
	if code == "" && IsValidMBTIType(userCtx.MBTIType) {
		code = strings.ToUpper(userCtx.MBTIType)
	}
	if code == "" {
		code = profile.MBTIType
	}
	if code == "" {
		return
	}
	if profile.MBTIType != code || profile.Traits == nil {
		profile.MBTIType = code
		profile.Traits = DeriveTraitProfile(code)
	}
}

// mbtiTermBoost rewards requests that literally mention MBTI vocabulary
// or the user's own type. Capped at 0.1.
func (c *ContextAnalyzer) mbtiTermBoost(request string, profile *UserProfile) float64 {
	lower := strings.ToLower(request)
	boost := 0.0
	if strings.Contains(lower, "mbti") || strings.Contains(lower, "personality") {
		boost += 0.05
	}
	if profile.MBTIType != "" && strings.Contains(lower, strings.ToLower(profile.MBTIType)) {
		boost += 0.05
	}
	return boost
}

// repetitionBoost rewards intent types the user has repeated recently,
// weighted by the rolling success rate. Capped at 0.15.
func (c *ContextAnalyzer) repetitionBoost(t core.IntentType, profile *UserProfile) float64 {
	recent := profile.History
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if len(recent) == 0 {
		return 0
	}
	same := 0
	for _, h := range recent {
		if h.IntentType == t {
			same++
		}
	}
	return 0.15 * (float64(same) / 5.0) * profile.SuccessRate()
}

// preferenceBoost rewards alignment with learned cuisine, district and
// meal-time preferences. Each match adds 0.1, capped at 0.3 total.
func (c *ContextAnalyzer) preferenceBoost(request string, profile *UserProfile) float64 {
	lower := strings.ToLower(request)
	boost := 0.0
	for _, group := range [][]string{
		profile.PreferredCuisines,
		profile.PreferredDistricts,
		profile.PreferredMealTimes,
	} {
		for _, pref := range group {
			if pref != "" && strings.Contains(lower, strings.ToLower(pref)) {
				boost += 0.1
				break
			}
		}
	}
	if boost > 0.3 {
		boost = 0.3
	}
	return boost
}

// timeOfDayBoost nudges meal-type intents that match the local hour:
// breakfast 06-11, lunch 11-15, dinner 17-22.
func (c *ContextAnalyzer) timeOfDayBoost(base core.Intent) float64 {
	meals := asStringList(base.Parameters["meal_types"])
	if len(meals) == 0 {
		return 0
	}
	hour := c.now().Hour()
	for _, meal := range meals {
		switch meal {
		case "breakfast":
			if hour >= 6 && hour < 11 {
				return 0.05
			}
		case "lunch":
			if hour >= 11 && hour < 15 {
				return 0.05
			}
		case "dinner":
			if hour >= 17 && hour < 22 {
				return 0.05
			}
		}
	}
	return 0
}

// enrichParameters fills gaps in the extracted parameters from the
// stored profile without mutating the base intent.
func (c *ContextAnalyzer) enrichParameters(base core.Intent, profile *UserProfile) core.Intent {
	out := base
	out.Parameters = make(map[string]interface{}, len(base.Parameters)+2)
	for k, v := range base.Parameters {
		out.Parameters[k] = v
	}
	if _, ok := out.Parameters["mbti_type"]; !ok && profile.MBTIType != "" {
		out.Parameters["mbti_type"] = profile.MBTIType
		out.OptionalCapabilities = appendMissing(out.OptionalCapabilities, "personalize_by_mbti")
	}
	if _, ok := out.Parameters["cuisine_type"]; !ok && len(profile.PreferredCuisines) > 0 {
		out.Parameters["preferred_cuisines"] = profile.PreferredCuisines
	}
	return out
}

func (c *ContextAnalyzer) appendHistory(ctx context.Context, profile *UserProfile, request string, enriched core.Intent) {
	profile.History = append(profile.History, HistoryEntry{
		Request:    request,
		IntentType: enriched.Type,
		Confidence: enriched.Confidence,
		Success:    true, // assumed until RecordOutcome reports otherwise
		Timestamp:  c.now(),
	})
	c.learnPreferences(profile, enriched)
	profile.UpdatedAt = c.now()
	if err := c.store.Save(ctx, profile); err != nil {
		c.logger.Warn("Failed to persist user profile", map[string]interface{}{
			"user_id": profile.UserID,
			"error":   err.Error(),
		})
	}
}

// learnPreferences folds extracted parameters back into the profile.
func (c *ContextAnalyzer) learnPreferences(profile *UserProfile, enriched core.Intent) {
	if cuisine, ok := enriched.Parameters["cuisine_type"].(string); ok {
		profile.PreferredCuisines = appendMissing(profile.PreferredCuisines, cuisine)
	}
	for _, d := range asStringList(enriched.Parameters["districts"]) {
		profile.PreferredDistricts = appendMissing(profile.PreferredDistricts, d)
	}
	for _, m := range asStringList(enriched.Parameters["meal_types"]) {
		profile.PreferredMealTimes = appendMissing(profile.PreferredMealTimes, m)
	}
}

func appendMissing(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}
