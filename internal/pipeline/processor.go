// Package pipeline runs a document through text extraction, strategy-based
// parsing, persistence and learned category suggestions.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/repository"
)

// InvoiceStore persists parsed invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *entity.Invoice, meta repository.InvoiceMeta) error
}

// MatchRecorder tracks suggestions applied to stored line items.
type MatchRecorder interface {
	GetSuggestions(ctx context.Context, sourceIdentity, descriptionText string, amount decimal.Decimal) []entity.MatchSuggestion
	RecordMatch(ctx context.Context, lineItemID uuid.UUID, sourceIdentity string, s entity.MatchSuggestion) (entity.MatchingHistory, error)
}

// Outcome is the result of processing one document.
type Outcome struct {
	InvoiceID   *uuid.UUID               `json:"invoiceId,omitempty"`
	Result      entity.ExtractionResult  `json:"result"`
	Segments    []entity.Segment         `json:"segments"`
	NeedsReview bool                     `json:"needsReview"`
	Matches     []entity.MatchingHistory `json:"matches,omitempty"`
}

// Processor coordinates text extraction then parsing, and stores the invoice.
type Processor struct {
	Logger  *slog.Logger
	Extract *ExtractStage
	Parse   *ParseStage
	Store   InvoiceStore
	Matches MatchRecorder
}

func NewProcessor(logger *slog.Logger, extract *ExtractStage, parse *ParseStage, store InvoiceStore, matches MatchRecorder) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Extract: extract, Parse: parse, Store: store, Matches: matches}
}

// Process extracts text from doc, parses it and stores the invoice when the
// run succeeds. The outcome is populated even when err is non-nil so attempts
// and cost stay visible to the caller.
func (p *Processor) Process(ctx context.Context, doc entity.RawDocument, pc extraction.ParseContext) (Outcome, error) {
	start := time.Now()
	var out Outcome

	segs, text, err := p.Extract.Run(ctx, doc)
	if err != nil {
		return out, err
	}
	out.Segments = segs

	res, needsReview, err := p.Parse.Run(ctx, text, pc)
	out.Result = res
	out.NeedsReview = needsReview
	if err != nil {
		p.Logger.Error("processor.parse.failed",
			"req_id", common.RequestIDFromContext(ctx),
			"file", doc.FileName,
			"run_id", res.RunID,
			"error", err,
		)
		return out, err
	}

	if p.Store != nil {
		inv := res.Invoice
		meta := repository.InvoiceMeta{
			RunID:      res.RunID,
			FileName:   doc.FileName,
			Strategy:   res.Strategy,
			Confidence: res.Confidence,
			TotalCost:  res.TotalCost,
		}
		if err := p.Store.CreateInvoice(ctx, inv, meta); err != nil {
			p.Logger.Error("processor.store.failed", "run_id", res.RunID, "error", err)
			return out, err
		}
		id := inv.ID
		out.InvoiceID = &id
		out.Matches = p.recordMatches(ctx, inv)
	}

	invoiceID := ""
	if out.InvoiceID != nil {
		invoiceID = out.InvoiceID.String()
	}
	p.Logger.Info("processor.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"file", doc.FileName,
		"run_id", res.RunID,
		"invoice_id", invoiceID,
		"needs_review", out.NeedsReview,
		"matches", len(out.Matches),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// recordMatches opens a SUGGESTED history entry for every line item whose
// category came from a learned pattern. Failures are logged; the invoice is
// already stored.
func (p *Processor) recordMatches(ctx context.Context, inv *entity.Invoice) []entity.MatchingHistory {
	if p.Matches == nil {
		return nil
	}
	var out []entity.MatchingHistory
	for _, li := range inv.LineItems {
		if li.SuggestedBy == "" {
			continue
		}
		s := entity.MatchSuggestion{
			PatternKey:  li.SuggestedBy,
			Field:       entity.FieldCategory,
			Value:       li.Category,
			SubCategory: li.SubCategory,
		}
		for _, cand := range p.Matches.GetSuggestions(ctx, inv.VendorName, li.Description, li.LineTotal) {
			if cand.PatternKey == li.SuggestedBy {
				s = cand
				break
			}
		}
		h, err := p.Matches.RecordMatch(ctx, li.ID, inv.VendorName, s)
		if err != nil {
			p.Logger.Warn("processor.match.failed", "line_item_id", li.ID, "pattern", li.SuggestedBy, "error", err)
			continue
		}
		out = append(out, h)
	}
	return out
}
