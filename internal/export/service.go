package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

const (
	SheetPatterns    = "Patterns"
	SheetCorrections = "Corrections"

	// DefaultCorrectionLimit bounds the history sheet.
	DefaultCorrectionLimit = 1000
)

// PatternLister reads the persisted pattern index.
type PatternLister interface {
	ListPatterns(ctx context.Context) ([]entity.LearnedPattern, error)
}

// CorrectionLister reads correction history, newest first.
type CorrectionLister interface {
	ListRecentCorrections(ctx context.Context, limit int) ([]entity.CorrectionRecord, error)
}

// Options narrows the history sheet.
type Options struct {
	CorrectionLimit int
	// Since drops correction records created before it.
	Since *time.Time
}

// Service produces XLSX bytes for learning exports.
type Service struct {
	patterns    PatternLister
	corrections CorrectionLister
	logger      *slog.Logger
}

func NewService(patterns PatternLister, corrections CorrectionLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{patterns: patterns, corrections: corrections, logger: logger}
}

// ExportLearningXLSX returns a workbook with one sheet of learned patterns,
// highest confidence first, and one sheet of correction history.
func (s *Service) ExportLearningXLSX(ctx context.Context, opts Options) ([]byte, error) {
	start := time.Now()
	if opts.CorrectionLimit <= 0 {
		opts.CorrectionLimit = DefaultCorrectionLimit
	}

	patterns, err := s.patterns.ListPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	recs, err := s.corrections.ListRecentCorrections(ctx, opts.CorrectionLimit)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	if opts.Since != nil {
		kept := recs[:0]
		for _, r := range recs {
			if !r.CreatedAt.Before(*opts.Since) {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	sortPatterns(patterns)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetPatterns); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetCorrections); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	writePatterns(f, patterns, bold)
	writeCorrections(f, recs, bold)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"patterns", len(patterns),
		"corrections", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writePatterns(f *excelize.File, patterns []entity.LearnedPattern, headerStyle int) {
	headers := []string{
		"Field",
		"Value",
		"Sub-category",
		"Confidence",
		"Reinforcements",
		"Matcher",
		"Examples",
		"Created",
		"Last Reinforced",
	}
	writeHeader(f, SheetPatterns, headers, headerStyle)

	for i, p := range patterns {
		row := i + 2
		examples := make([]string, 0, len(p.Examples))
		for _, ex := range p.Examples {
			examples = append(examples, fmt.Sprintf("%s (%s)", ex.Description, ex.Amount.StringFixed(2)))
		}
		writeRow(f, SheetPatterns, row,
			p.Key.Field,
			p.Key.Value,
			p.SubCategory,
			p.Confidence,
			p.Reinforcements,
			string(p.MatcherKind)+" "+p.MatcherExpr,
			truncate(strings.Join(examples, "; "), 250),
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.LastReinforcedAt.UTC().Format(time.RFC3339),
		)
	}

	_ = f.SetColWidth(SheetPatterns, "A", "A", 16)
	_ = f.SetColWidth(SheetPatterns, "B", "C", 22)
	_ = f.SetColWidth(SheetPatterns, "D", "E", 14)
	_ = f.SetColWidth(SheetPatterns, "F", "F", 24)
	_ = f.SetColWidth(SheetPatterns, "G", "G", 60)
	_ = f.SetColWidth(SheetPatterns, "H", "I", 22)
}

func writeCorrections(f *excelize.File, recs []entity.CorrectionRecord, headerStyle int) {
	headers := []string{
		"Created",
		"Kind",
		"Identity",
		"Source",
		"Field",
		"Original",
		"Corrected",
		"Description",
		"Amount",
		"Pattern",
	}
	writeHeader(f, SheetCorrections, headers, headerStyle)

	row := 2
	for _, r := range recs {
		created := r.CreatedAt.UTC().Format(time.RFC3339)
		changes := r.Observations()
		if len(changes) == 0 {
			writeRow(f, SheetCorrections, row, created, string(r.Kind), r.Identity, r.SourceIdentity,
				"", "", "", "", "", r.PatternKey)
			row++
			continue
		}
		for _, c := range changes {
			writeRow(f, SheetCorrections, row, created, string(r.Kind), r.Identity, r.SourceIdentity,
				c.Field, c.Original, c.Corrected, truncate(c.Description, 140), c.Amount.StringFixed(2), r.PatternKey)
			row++
		}
	}

	_ = f.SetColWidth(SheetCorrections, "A", "A", 22)
	_ = f.SetColWidth(SheetCorrections, "B", "B", 18)
	_ = f.SetColWidth(SheetCorrections, "C", "E", 16)
	_ = f.SetColWidth(SheetCorrections, "F", "G", 22)
	_ = f.SetColWidth(SheetCorrections, "H", "H", 48)
	_ = f.SetColWidth(SheetCorrections, "I", "I", 14)
	_ = f.SetColWidth(SheetCorrections, "J", "J", 28)
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, vals ...any) {
	for i, v := range vals {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func sortPatterns(ps []entity.LearnedPattern) {
	slices.SortStableFunc(ps, func(a, b entity.LearnedPattern) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return strings.Compare(a.Key.String(), b.Key.String())
	})
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
