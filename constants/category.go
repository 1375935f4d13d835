package constants

import (
	"strings"
)

// Category is the line-item category tag.
type Category string

const (
	Material      Category = "MATERIAL"
	Labor         Category = "LABOR"
	Equipment     Category = "EQUIPMENT"
	Subcontractor Category = "SUBCONTRACTOR"
	Permits       Category = "PERMITS"
	Transport     Category = "TRANSPORT"
	Services      Category = "SERVICES"
	Other         Category = "OTHER"
)

var allCategories = []Category{
	Material,
	Labor,
	Equipment,
	Subcontractor,
	Permits,
	Transport,
	Services,
	Other,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// NormalizeCategory uppercases and trims a category value so that
// "labor", " Labor " and "LABOR" share one pattern key.
func NormalizeCategory(input string) string {
	return strings.ToUpper(strings.Join(strings.Fields(input), "_"))
}

// Canonicalize maps free-form input onto the known taxonomy.
// Unknown values fall back to Other with ok=false.
func Canonicalize(input string) (Category, bool) {
	if strings.TrimSpace(input) == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]Category{
		"materials":     Material,
		"supplies":      Material,
		"lumber":        Material,
		"steel":         Material,
		"labour":        Labor,
		"wages":         Labor,
		"man hours":     Labor,
		"installation":  Labor,
		"rental":        Equipment,
		"machinery":     Equipment,
		"subcontract":   Subcontractor,
		"sub":           Subcontractor,
		"permit":        Permits,
		"inspection":    Permits,
		"freight":       Transport,
		"delivery":      Transport,
		"shipping":      Transport,
		"consulting":    Services,
		"professional":  Services,
		"miscellaneous": Other,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if NormalizeCategory(normalized) == string(cat) {
			return cat, true
		}
	}

	return Other, false
}
