// Package providers adapts extraction backends to the extraction.Provider interface.
package providers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/resilience"
)

// VendorLister supplies known vendor spellings to prompt builders.
type VendorLister interface {
	KnownVendors() []string
}

// LLMProvider runs an llm.FieldExtractor behind a resilience guard.
type LLMProvider struct {
	name      string
	extractor llm.FieldExtractor
	guard     *resilience.Guard
	vendors   VendorLister
	logger    *slog.Logger
}

func NewLLMProvider(name string, extractor llm.FieldExtractor, guard *resilience.Guard, vendors VendorLister, logger *slog.Logger) *LLMProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = resilience.NewGuard(name, resilience.DefaultGuardConfig(), logger)
	}
	return &LLMProvider{name: name, extractor: extractor, guard: guard, vendors: vendors, logger: logger}
}

func (p *LLMProvider) Name() string { return p.name }

// Extract calls the model and converts its answer. Usage from every billed
// call, retries included, is reported even when the attempt fails.
func (p *LLMProvider) Extract(ctx context.Context, req extraction.ProviderRequest) (extraction.ProviderResult, error) {
	lreq := llm.ExtractRequest{
		Text:              req.Text,
		AllowedCategories: req.AllowedCategories,
	}
	if p.vendors != nil {
		lreq.KnownVendors = p.vendors.KnownVendors()
	}

	var (
		mu    sync.Mutex
		usage extraction.Usage
	)
	fields, err := resilience.Call(ctx, p.guard, func(ctx context.Context) (llm.InvoiceFields, error) {
		f, u, _, err := p.extractor.ExtractFields(ctx, lreq)
		mu.Lock()
		usage = usage.Add(extraction.Usage{Calls: 1, InputTokens: u.InputTokens, OutputTokens: u.OutputTokens})
		mu.Unlock()
		return f, err
	})

	mu.Lock()
	res := extraction.ProviderResult{Usage: usage}
	mu.Unlock()
	if err != nil {
		return res, err
	}

	inv, err := fields.ToInvoice()
	if err != nil {
		return res, err
	}
	res.Invoice = inv
	res.Confidence = fields.Confidence()
	return res, nil
}
