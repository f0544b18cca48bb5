package intent

import "strings"

// The 16 canonical MBTI codes. Extraction only accepts these.
var canonicalMBTITypes = map[string]bool{
	"INTJ": true, "INTP": true, "ENTJ": true, "ENTP": true,
	"INFJ": true, "INFP": true, "ENFJ": true, "ENFP": true,
	"ISTJ": true, "ISFJ": true, "ESTJ": true, "ESFJ": true,
	"ISTP": true, "ISFP": true, "ESTP": true, "ESFP": true,
}

// IsValidMBTIType reports whether code is one of the 16 canonical types.
func IsValidMBTIType(code string) bool {
	return canonicalMBTITypes[strings.ToUpper(code)]
}

// TraitProfile captures the dining tendencies derived from an MBTI code.
// Derivation is deterministic from the four individual axis letters.
type TraitProfile struct {
	MBTIType             string   `json:"mbti_type"`
	PreferredCuisines    []string `json:"preferred_cuisines"`
	PreferredAtmospheres []string `json:"preferred_atmospheres"`
	GroupSizeTendency    string   `json:"group_size_tendency"`
	Exploration          float64  `json:"exploration"` // [0,1]
	Social               float64  `json:"social"`      // [0,1]
}

// DeriveTraitProfile builds a TraitProfile from a canonical 4-letter
// code. Returns nil when the code is not valid.
func DeriveTraitProfile(code string) *TraitProfile {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !IsValidMBTIType(code) {
		return nil
	}

	p := &TraitProfile{MBTIType: code}

	// E/I axis drives the social scalar and group-size tendency.
	if code[0] == 'E' {
		p.Social = 0.8
		p.GroupSizeTendency = "large_group"
		p.PreferredAtmospheres = append(p.PreferredAtmospheres, "lively", "communal")
	} else {
		p.Social = 0.3
		p.GroupSizeTendency = "solo_or_small"
		p.PreferredAtmospheres = append(p.PreferredAtmospheres, "quiet", "intimate")
	}

	// N/S axis drives the exploration scalar and cuisine adventurousness.
	if code[1] == 'N' {
		p.Exploration = 0.8
		p.PreferredCuisines = append(p.PreferredCuisines, "fusion", "experimental", "international")
	} else {
		p.Exploration = 0.35
		p.PreferredCuisines = append(p.PreferredCuisines, "traditional", "comfort", "local")
	}

	// T/F axis shifts atmosphere preferences.
	if code[2] == 'T' {
		p.PreferredAtmospheres = append(p.PreferredAtmospheres, "efficient", "modern")
	} else {
		p.PreferredAtmospheres = append(p.PreferredAtmospheres, "cozy", "welcoming")
	}

	// J/P axis nudges both scalars: J plans, P wanders.
	if code[3] == 'J' {
		p.Exploration -= 0.1
		if p.Exploration < 0 {
			p.Exploration = 0
		}
	} else {
		p.Exploration += 0.1
		if p.Exploration > 1 {
			p.Exploration = 1
		}
	}

	return p
}

// RecommendationStyle maps an axis letter to the recommendation style
// used by the MBTI-conditional workflow template branches.
func RecommendationStyle(axisLetter byte) string {
	switch axisLetter {
	case 'E':
		return "energetic_group_dining"
	case 'I':
		return "quiet_personal_dining"
	case 'N':
		return "novel_experiences"
	case 'S':
		return "proven_favorites"
	case 'T':
		return "value_optimized"
	case 'F':
		return "ambiance_first"
	case 'J':
		return "planned_itinerary"
	case 'P':
		return "spontaneous_picks"
	default:
		return "balanced"
	}
}
