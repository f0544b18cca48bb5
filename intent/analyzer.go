package intent

import (
	"strings"

	"github.com/tripmind/tripmind/core"
)

// classificationRule scores one intent type against a request.
//
// confidence = base + weight*requiredRatio + 0.5*weight*optionalRatio
//            - 0.2*negativeMatches, clamped to [0,1]
type classificationRule struct {
	intentType    core.IntentType
	base          float64
	keywordWeight float64
	required      []string
	optional      []string
	negative      []string
}

// Rule order is fixed; ties in confidence resolve to the earlier rule.
var classificationRules = []classificationRule{
	{
		intentType:    core.IntentCombinedSearch,
		base:          0.25,
		keywordWeight: 0.45,
		required:      []string{"find", "recommend"},
		optional:      []string{"district", "breakfast", "lunch", "dinner", "best", "restaurants"},
	},
	{
		intentType:    core.IntentSearchByMeal,
		base:          0.3,
		keywordWeight: 0.4,
		required:      []string{"breakfast", "lunch", "dinner", "brunch", "meal"},
		optional:      []string{"find", "search", "places", "eat", "food", "hungry"},
	},
	{
		intentType:    core.IntentSearchByLocation,
		base:          0.3,
		keywordWeight: 0.4,
		required:      []string{"find", "search", "where"},
		optional:      []string{"district", "in", "near", "around", "places", "restaurants"},
		negative:      []string{"recommend"},
	},
	{
		intentType:    core.IntentRecommendation,
		base:          0.35,
		keywordWeight: 0.4,
		required:      []string{"recommend", "suggest", "suggestion"},
		optional:      []string{"best", "top", "good", "mbti", "personality", "for me"},
	},
	{
		intentType:    core.IntentSentimentAnalysis,
		base:          0.35,
		keywordWeight: 0.5,
		required:      []string{"analyze", "sentiment"},
		optional:      []string{"review", "reviews", "opinion", "feedback", "mood"},
	},
}

// Analyzer classifies free-text requests into structured intents.
// It never fails: the worst case is an unknown intent at low confidence.
type Analyzer struct {
	logger core.Logger
}

// NewAnalyzer creates an intent analyzer.
func NewAnalyzer(logger core.Logger) *Analyzer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Analyzer{logger: logger}
}

// AnalyzeIntent classifies the request and extracts parameters. The
// optional user context adds bounded confidence boosts; final confidence
// is always within [0,1].
func (a *Analyzer) AnalyzeIntent(requestText string, userCtx *core.UserContext) core.Intent {
	lower := strings.ToLower(requestText)

	best, bestScore := a.classify(lower)
	if bestScore < 0.5 {
		best, bestScore = fallbackClassify(lower)
	}

	params := extractParameters(requestText)
	if userCtx != nil {
		if _, has := params["mbti_type"]; !has && IsValidMBTIType(userCtx.MBTIType) {
			params["mbti_type"] = strings.ToUpper(userCtx.MBTIType)
		}
		bestScore += contextBoost(lower, best, userCtx)
	}

	required, optional := deriveCapabilities(best, params)

	a.logger.Debug("Intent classified", map[string]interface{}{
		"intent_type": string(best),
		"confidence":  core.ClampConfidence(bestScore),
		"parameters":  len(params),
	})

	return core.Intent{
		Type:                 best,
		Confidence:           core.ClampConfidence(bestScore),
		Parameters:           params,
		RequiredCapabilities: required,
		OptionalCapabilities: optional,
	}
}

func (a *Analyzer) classify(lower string) (core.IntentType, float64) {
	best := core.IntentUnknown
	bestScore := 0.0

	for _, rule := range classificationRules {
		reqMatches := 0
		for _, kw := range rule.required {
			if containsWord(lower, kw) {
				reqMatches++
			}
		}
		if reqMatches == 0 {
			continue
		}
		optMatches := 0
		for _, kw := range rule.optional {
			if containsWord(lower, kw) {
				optMatches++
			}
		}
		negMatches := 0
		for _, kw := range rule.negative {
			if containsWord(lower, kw) {
				negMatches++
			}
		}

		score := rule.base +
			rule.keywordWeight*float64(reqMatches)/float64(len(rule.required)) +
			0.5*rule.keywordWeight*optionalRatio(optMatches, len(rule.optional)) -
			0.2*float64(negMatches)
		score = core.ClampConfidence(score)

		if score > bestScore {
			best = rule.intentType
			bestScore = score
		}
	}

	return best, bestScore
}

func optionalRatio(matches, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total)
}

// fallbackClassify is the low-confidence keyword fallback used when no
// rule clears 0.5.
func fallbackClassify(lower string) (core.IntentType, float64) {
	hasSearch := containsWord(lower, "search") || containsWord(lower, "find")
	switch {
	case hasSearch && len(extractMealTypes(lower)) > 0:
		return core.IntentSearchByMeal, 0.45
	case hasSearch:
		return core.IntentSearchByLocation, 0.45
	case containsWord(lower, "recommend") || containsWord(lower, "best") || containsWord(lower, "top"):
		return core.IntentRecommendation, 0.45
	case containsWord(lower, "analyze") || containsWord(lower, "sentiment"):
		return core.IntentSentimentAnalysis, 0.45
	case len(extractParameters(lower)) > 0:
		// Something recognizable was mentioned, just not an action.
		return core.IntentUnknown, 0.3
	default:
		return core.IntentUnknown, 0.1
	}
}

// deriveCapabilities maps intent type plus extracted parameters to the
// capability names downstream tool selection matches against.
func deriveCapabilities(t core.IntentType, params map[string]interface{}) (required, optional []string) {
	hasDistricts := len(asStringList(params["districts"])) > 0
	hasMeals := len(asStringList(params["meal_types"])) > 0

	switch t {
	case core.IntentSearchByLocation:
		if hasDistricts {
			required = append(required, "search_restaurants_by_district")
		} else {
			required = append(required, "search_restaurants_combined")
		}
	case core.IntentSearchByMeal:
		if hasMeals {
			required = append(required, "search_restaurants_by_meal_type")
		} else {
			required = append(required, "search_restaurants_combined")
		}
	case core.IntentRecommendation:
		required = append(required, "recommend_restaurants")
	case core.IntentCombinedSearch:
		required = append(required, "search_restaurants_combined", "recommend_restaurants")
	case core.IntentSentimentAnalysis:
		required = append(required, "analyze_restaurant_sentiment")
	}

	if _, ok := params["mbti_type"]; ok {
		optional = append(optional, "personalize_by_mbti")
	}
	if _, ok := params["cuisine_type"]; ok {
		optional = append(optional, "filter_by_cuisine")
	}
	if _, ok := params["price_range"]; ok {
		optional = append(optional, "filter_by_price")
	}
	return required, optional
}

// contextBoost adds bounded increments from conversation history, MBTI
// alignment, and location context. Each source is individually capped.
func contextBoost(lower string, t core.IntentType, userCtx *core.UserContext) float64 {
	boost := 0.0

	// Jaccard word overlap with recent history, best match wins.
	words := wordSet(lower)
	history := userCtx.ConversationHistory
	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	maxSim := 0.0
	for _, prev := range history {
		if sim := jaccard(words, wordSet(strings.ToLower(prev))); sim > maxSim {
			maxSim = sim
		}
	}
	boost += 0.1 * maxSim

	// A known MBTI type makes recommendation intents more plausible.
	if IsValidMBTIType(userCtx.MBTIType) &&
		(t == core.IntentRecommendation || t == core.IntentCombinedSearch) {
		boost += 0.05
	}

	// Location context matching a mentioned district.
	if userCtx.LocationContext != "" &&
		strings.Contains(lower, strings.ToLower(userCtx.LocationContext)) {
		boost += 0.05
	}

	return boost
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func asStringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
