package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/resilience"
)

const sampleInvoice = `ACME Steel Supply
Vendor: ACME Steel Supply
Invoice Number: INV-2024-001
Date: 2024-03-15
Tax ID: 12-3456789
Steel beams 3 100.00 300.00
Welding rods 2 25.50 51.00
Tax: 28.08
Total: $379.08
`

type stubRecognizer map[string]string

func (s stubRecognizer) Recognize(string) map[string]string { return s }

func TestHeuristic_ExtractsKeyFields(t *testing.T) {
	h := NewHeuristic(nil, nil)
	res, err := h.Extract(context.Background(), extraction.ProviderRequest{Text: sampleInvoice})
	require.NoError(t, err)
	require.NotNil(t, res.Invoice)

	inv := res.Invoice
	assert.Equal(t, "INV-2024-001", inv.InvoiceNumber)
	assert.Equal(t, "2024-03-15", inv.IssueDate)
	assert.Equal(t, "ACME Steel Supply", inv.VendorName)
	assert.Equal(t, "12-3456789", inv.VendorTaxID)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, "379.08", inv.Total.StringFixed(2))
	assert.Equal(t, "28.08", inv.Tax.StringFixed(2))
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "Steel beams", inv.LineItems[0].Description)
	assert.Equal(t, "300.00", inv.LineItems[0].LineTotal.StringFixed(2))
	assert.Equal(t, 1, inv.LineItems[1].Position)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.True(t, res.Cost.IsZero())
}

func TestHeuristic_PartialTextLowersConfidence(t *testing.T) {
	h := NewHeuristic(nil, nil)
	res, err := h.Extract(context.Background(), extraction.ProviderRequest{Text: "Total: 12.50\nDate: 3/4/2024"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", res.Invoice.IssueDate)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestHeuristic_FallbackTextIsCapped(t *testing.T) {
	text := "[FALLBACK_EXTRACTION]\nERROR: decode failed\nTimestamp: 2026-01-01T00:00:00Z\nFile: f1\n\n" +
		"INVOICE\nInvoice Number: FB-1a2b3c4d\nDate: 2026-01-01\nVendor: UNKNOWN\nTotal: $1000.00"
	res, err := NewHeuristic(nil, nil).Extract(context.Background(), extraction.ProviderRequest{Text: text})
	require.NoError(t, err)
	assert.Equal(t, "FB-1a2b3c4d", res.Invoice.InvoiceNumber)
	assert.Empty(t, res.Invoice.VendorName)
	assert.Equal(t, "1000.00", res.Invoice.Total.StringFixed(2))
	assert.LessOrEqual(t, res.Confidence, 0.3)
}

func TestHeuristic_UsesRecognizerForMissingHeaders(t *testing.T) {
	rec := stubRecognizer{entity.FieldVendorName: "Acme Corp", entity.FieldCurrency: "EUR"}
	res, err := NewHeuristic(rec, nil).Extract(context.Background(), extraction.ProviderRequest{Text: "Invoice #A-100\nAmount 10.00"})
	require.NoError(t, err)
	assert.Equal(t, "A-100", res.Invoice.InvoiceNumber)
	assert.Equal(t, "Acme Corp", res.Invoice.VendorName)
	assert.Equal(t, "EUR", res.Invoice.Currency)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
}

func TestHeuristic_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristic(nil, nil).Extract(ctx, extraction.ProviderRequest{Text: sampleInvoice})
	assert.ErrorIs(t, err, context.Canceled)
}

type scriptedCall struct {
	fields llm.InvoiceFields
	usage  llm.Usage
	err    error
}

type scriptedExtractor struct {
	mu    sync.Mutex
	calls []scriptedCall
	n     int
	last  llm.ExtractRequest
}

func (s *scriptedExtractor) ExtractFields(_ context.Context, req llm.ExtractRequest) (llm.InvoiceFields, llm.Usage, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	c := s.calls[min(s.n, len(s.calls)-1)]
	s.n++
	return c.fields, c.usage, nil, c.err
}

type vendors []string

func (v vendors) KnownVendors() []string { return v }

func testGuard() *resilience.Guard {
	return resilience.NewGuard("test", resilience.GuardConfig{
		Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}, nil)
}

func goodFields() llm.InvoiceFields {
	return llm.InvoiceFields{
		InvoiceNumber:   "INV-1",
		IssueDate:       "2024-01-02",
		VendorName:      "Acme",
		Currency:        "usd",
		Total:           "10.00",
		ModelConfidence: 0.8,
		LineItems:       []llm.LineItemFields{{Description: "Bolts", Quantity: "2", UnitPrice: "5.00"}},
	}
}

func TestLLMProvider_AccumulatesUsageAcrossRetries(t *testing.T) {
	ex := &scriptedExtractor{calls: []scriptedCall{
		{usage: llm.Usage{InputTokens: 10, OutputTokens: 5}, err: &llm.StatusError{Code: 503}},
		{fields: goodFields(), usage: llm.Usage{InputTokens: 20, OutputTokens: 10}},
	}}
	p := NewLLMProvider("openai", ex, testGuard(), vendors{"Acme"}, nil)

	res, err := p.Extract(context.Background(), extraction.ProviderRequest{Text: "x", AllowedCategories: []string{"MATERIAL"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, extraction.Usage{Calls: 2, InputTokens: 30, OutputTokens: 15}, res.Usage)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "USD", res.Invoice.Currency)
	assert.True(t, res.Invoice.LineItems[0].LineTotal.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, []string{"Acme"}, ex.last.KnownVendors)
	assert.Equal(t, []string{"MATERIAL"}, ex.last.AllowedCategories)
}

func TestLLMProvider_ReportsUsageOnPermanentFailure(t *testing.T) {
	ex := &scriptedExtractor{calls: []scriptedCall{
		{usage: llm.Usage{InputTokens: 7, OutputTokens: 3}, err: &llm.StatusError{Code: 400}},
	}}
	p := NewLLMProvider("anthropic", ex, testGuard(), nil, nil)

	res, err := p.Extract(context.Background(), extraction.ProviderRequest{Text: "x"})
	require.Error(t, err)
	assert.Nil(t, res.Invoice)
	assert.Equal(t, extraction.Usage{Calls: 1, InputTokens: 7, OutputTokens: 3}, res.Usage)
}

func TestLLMProvider_BadDecimalFailsConversion(t *testing.T) {
	f := goodFields()
	f.Total = "ten"
	ex := &scriptedExtractor{calls: []scriptedCall{{fields: f, usage: llm.Usage{InputTokens: 1}}}}
	res, err := NewLLMProvider("openai", ex, testGuard(), nil, nil).Extract(context.Background(), extraction.ProviderRequest{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, res.Usage.Calls)
}
