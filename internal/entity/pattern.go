package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
)

// MatcherKind selects how a pattern recognizes its value in new input.
type MatcherKind string

const (
	MatcherLiteral         MatcherKind = "LITERAL"
	MatcherNumericTemplate MatcherKind = "NUMERIC_TEMPLATE"
	MatcherDateTemplate    MatcherKind = "DATE_TEMPLATE"
)

// PatternKey identifies a pattern by field and normalized corrected value.
type PatternKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (k PatternKey) String() string { return k.Field + ":" + k.Value }

// ParsePatternKey is the inverse of PatternKey.String.
func ParsePatternKey(s string) (PatternKey, bool) {
	field, value, ok := strings.Cut(s, ":")
	if !ok || field == "" || value == "" {
		return PatternKey{}, false
	}
	return PatternKey{Field: field, Value: value}, true
}

// Example is one literal observation that produced or reinforced a pattern.
type Example struct {
	SourceIdentity string          `json:"sourceIdentity,omitempty"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
}

// LearnedPattern is a confidence-weighted rule learned from corrections.
type LearnedPattern struct {
	Key              PatternKey  `json:"key"`
	MatcherKind      MatcherKind `json:"matcherKind"`
	MatcherExpr      string      `json:"matcherExpr"`
	Confidence       float64     `json:"confidence"`
	Examples         []Example   `json:"examples"`
	SubCategory      string      `json:"subCategory,omitempty"`
	Reinforcements   int         `json:"reinforcements"`
	CreatedAt        time.Time   `json:"createdAt"`
	LastReinforcedAt time.Time   `json:"lastReinforcedAt"`
}

// MatchSuggestion is a read-only ranked projection of a pattern.
type MatchSuggestion struct {
	PatternKey       string    `json:"patternKey"`
	Field            string    `json:"field"`
	Value            string    `json:"value"`
	SubCategory      string    `json:"subCategory,omitempty"`
	Confidence       float64   `json:"confidence"`
	Examples         []Example `json:"examples"`
	LastReinforcedAt time.Time `json:"lastReinforcedAt"`
}

// MatchingHistory tracks a suggestion applied to a line item.
type MatchingHistory struct {
	ID             uuid.UUID             `json:"id"`
	LineItemID     uuid.UUID             `json:"lineItemId"`
	SourceIdentity string                `json:"sourceIdentity,omitempty"`
	Field          string                `json:"field"`
	PatternKey     string                `json:"patternKey"`
	SuggestedValue string                `json:"suggestedValue"`
	Confidence     float64               `json:"confidence"`
	Status         constants.MatchStatus `json:"status"`
	CorrectedValue string                `json:"correctedValue,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	ResolvedAt     *time.Time            `json:"resolvedAt,omitempty"`
}
