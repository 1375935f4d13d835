package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
)

// Parser runs text through a strategy chain.
type Parser interface {
	ParseInvoice(ctx context.Context, text string, pc extraction.ParseContext) (entity.ExtractionResult, error)
}

// ParseConfig holds thresholds for flagging an invoice for review.
type ParseConfig struct {
	MinConfidence float64 // default 0.60
}

type ParseStage struct {
	Parser Parser
	Cfg    ParseConfig
	Logger *slog.Logger
}

func NewParseStage(p Parser, cfg ParseConfig, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.60
	}
	return &ParseStage{Parser: p, Cfg: cfg, Logger: logger}
}

// Run parses the text and reports whether the invoice needs human review.
// Extracted categories are mapped onto the known taxonomy; learned ones are
// kept as suggested.
func (s *ParseStage) Run(ctx context.Context, text string, pc extraction.ParseContext) (entity.ExtractionResult, bool, error) {
	res, err := s.Parser.ParseInvoice(ctx, text, pc)
	if err != nil || res.Invoice == nil {
		return res, true, err
	}

	inv := res.Invoice
	needsReview := false
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		if li.SuggestedBy != "" || li.Category == "" {
			continue
		}
		canon, ok := constants.Canonicalize(li.Category)
		if !ok {
			s.Logger.Warn("category unknown", "label", li.Category, "line", i)
			needsReview = true
		}
		li.Category = string(canon)
	}

	if strings.TrimSpace(inv.VendorName) == "" || inv.IssueDate == "" || inv.Total.IsZero() {
		needsReview = true
	}
	if res.Confidence < s.Cfg.MinConfidence {
		needsReview = true
	}
	if lines := inv.LineItemsTotal(); !lines.IsZero() && !lines.Equal(inv.Total) && !lines.Add(inv.Tax).Equal(inv.Total) {
		s.Logger.Warn("line items do not add up",
			"run_id", res.RunID,
			"total", inv.Total.String(),
			"lines", lines.String(),
		)
		needsReview = true
	}

	s.Logger.Info("parsed invoice",
		"run_id", res.RunID,
		"strategy", res.Strategy,
		"vendor", inv.VendorName,
		"date", inv.IssueDate,
		"total", inv.Total.String(),
		"line_items", len(inv.LineItems),
		"confidence", res.Confidence,
		"needs_review", needsReview,
	)
	return res, needsReview, nil
}
