package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// districtAliases normalizes the district spellings seen in free text to
// canonical district names.
var districtAliases = map[string]string{
	"central":       "Central district",
	"admiralty":     "Admiralty",
	"causeway bay":  "Causeway Bay",
	"wan chai":      "Wan Chai",
	"tsim sha tsui": "Tsim Sha Tsui",
	"tst":           "Tsim Sha Tsui",
	"mong kok":      "Mong Kok",
	"yau ma tei":    "Yau Ma Tei",
	"jordan":        "Jordan",
	"sheung wan":    "Sheung Wan",
	"sha tin":       "Sha Tin",
	"tsuen wan":     "Tsuen Wan",
	"stanley":       "Stanley",
	"aberdeen":      "Aberdeen",
}

// mealAliases normalizes meal-time vocabulary to canonical meal types.
var mealAliases = map[string]string{
	"breakfast": "breakfast",
	"morning":   "breakfast",
	"brunch":    "breakfast",
	"lunch":     "lunch",
	"noon":      "lunch",
	"midday":    "lunch",
	"dinner":    "dinner",
	"evening":   "dinner",
	"night":     "dinner",
	"supper":    "dinner",
}

var cuisineKeywords = []string{
	"cantonese", "chinese", "dim sum", "japanese", "sushi", "korean",
	"thai", "vietnamese", "italian", "french", "indian", "mexican",
	"seafood", "vegetarian", "vegan", "dessert",
}

var (
	mbtiPattern      = regexp.MustCompile(`(?i)\b([EI][NS][TF][JP])\b`)
	groupSizePattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:people|persons|person|pax|of us|friends|guests)\b`)
)

// extractParameters runs every extractor against the request text and
// returns only the parameters that matched.
func extractParameters(text string) map[string]interface{} {
	lower := strings.ToLower(text)
	params := make(map[string]interface{})

	if districts := extractDistricts(lower); len(districts) > 0 {
		params["districts"] = districts
	}
	if meals := extractMealTypes(lower); len(meals) > 0 {
		params["meal_types"] = meals
	}
	if code, ok := extractMBTIType(text); ok {
		params["mbti_type"] = code
	}
	if cuisine, ok := extractCuisineType(lower); ok {
		params["cuisine_type"] = cuisine
	}
	if price, ok := extractPriceRange(lower); ok {
		params["price_range"] = price
	}
	if size, ok := extractGroupSize(lower); ok {
		params["group_size"] = size
	}

	return params
}

func extractDistricts(lower string) []string {
	var out []string
	seen := make(map[string]bool)
	for alias, canonical := range districtAliases {
		if containsWord(lower, alias) && !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	sortStrings(out)
	return out
}

func extractMealTypes(lower string) []string {
	var out []string
	seen := make(map[string]bool)
	for alias, canonical := range mealAliases {
		if containsWord(lower, alias) && !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	sortStrings(out)
	return out
}

// extractMBTIType finds a canonical 4-letter code in the text. The axis
// pattern alone admits exactly the 16 canonical codes, but the lookup is
// still validated against the canonical set so future pattern edits
// cannot widen acceptance.
func extractMBTIType(text string) (string, bool) {
	m := mbtiPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := strings.ToUpper(m[1])
	if !IsValidMBTIType(code) {
		return "", false
	}
	return code, true
}

func extractCuisineType(lower string) (string, bool) {
	for _, c := range cuisineKeywords {
		if containsWord(lower, c) {
			return c, true
		}
	}
	return "", false
}

func extractPriceRange(lower string) (string, bool) {
	switch {
	case strings.Contains(lower, "$$$"), containsWord(lower, "expensive"),
		containsWord(lower, "upscale"), strings.Contains(lower, "fine dining"),
		containsWord(lower, "luxury"):
		return "high", true
	case strings.Contains(lower, "$$"), containsWord(lower, "moderate"),
		strings.Contains(lower, "mid-range"), strings.Contains(lower, "mid range"):
		return "medium", true
	case containsWord(lower, "cheap"), containsWord(lower, "budget"),
		containsWord(lower, "affordable"), containsWord(lower, "inexpensive"):
		return "low", true
	}
	return "", false
}

func extractGroupSize(lower string) (int, bool) {
	if m := groupSizePattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	switch {
	case containsWord(lower, "solo"), containsWord(lower, "alone"), containsWord(lower, "myself"):
		return 1, true
	case containsWord(lower, "couple"), strings.Contains(lower, "two of us"):
		return 2, true
	case containsWord(lower, "family"):
		return 4, true
	}
	return 0, false
}

// containsWord matches alias as a whole word (aliases may themselves
// contain spaces).
func containsWord(lower, alias string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], alias)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(alias)
		beforeOK := start == 0 || !isWordChar(lower[start-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// sortStrings keeps extractor output deterministic across map iteration.
func sortStrings(s []string) {
	sort.Strings(s)
}
