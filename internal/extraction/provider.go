// Package extraction runs invoice text through ordered chains of extraction
// providers, tracking confidence and cost for every attempt.
package extraction

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// ProviderRequest is what a provider sees for one attempt.
type ProviderRequest struct {
	Text              string
	Identity          string
	ExpectedFormat    string
	AllowedCategories []string
}

// ProviderResult may be returned together with an error; Cost and Usage are
// still accounted for in that case because the call was billed.
type ProviderResult struct {
	Invoice    *entity.Invoice
	Confidence float64
	// Cost is any direct charge the provider knows about. Token usage is
	// priced separately from the strategy file.
	Cost  decimal.Decimal
	Usage Usage
}

// Provider is a single automated extraction backend.
type Provider interface {
	Name() string
	Extract(ctx context.Context, req ProviderRequest) (ProviderResult, error)
}

// Suggester fills missing line-item categories from learned patterns.
type Suggester interface {
	GetSuggestions(ctx context.Context, sourceIdentity, descriptionText string, amount decimal.Decimal) []entity.MatchSuggestion
}
