package llm

import "context"

// LineItemFields is one invoice line as returned by a model.
type LineItemFields struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`   // decimal
	UnitPrice   string `json:"unit_price,omitempty"` // decimal
	Amount      string `json:"amount,omitempty"`     // decimal line total as printed
	Category    string `json:"category,omitempty"`   // must match AllowedCategories if provided
}

// InvoiceFields is the normalized shape we want from the LLM.
type InvoiceFields struct {
	InvoiceNumber   string           `json:"invoice_number"`
	IssueDate       string           `json:"issue_date"` // YYYY-MM-DD
	VendorName      string           `json:"vendor_name"`
	VendorTaxID     string           `json:"vendor_tax_id,omitempty"`
	Currency        string           `json:"currency"` // ISO 4217
	Total           string           `json:"total"`    // decimal
	Tax             string           `json:"tax,omitempty"`
	LineItems       []LineItemFields `json:"line_items,omitempty"`
	ModelConfidence float64          `json:"confidence,omitempty"` // optional (0..1)
}

type ExtractRequest struct {
	Text              string
	AllowedCategories []string
	DefaultCurrency   string
	// KnownVendors lists vendor names learned from past corrections.
	KnownVendors []string
}

// Usage is the token accounting reported by a model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// FieldExtractor is the interface providers depend on. Usage is returned even
// when err != nil so billed calls are still accounted for.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (InvoiceFields, Usage, []byte /*rawJSON*/, error)
}
