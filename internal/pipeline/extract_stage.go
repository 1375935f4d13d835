package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/textextract"
)

// TextExtractor turns a raw document into text segments.
type TextExtractor interface {
	Extract(ctx context.Context, doc entity.RawDocument) ([]entity.Segment, error)
}

// ExtractStage runs text extraction for one document.
type ExtractStage struct {
	Extractor TextExtractor
	Logger    *slog.Logger
}

func NewExtractStage(tx TextExtractor, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Extractor: tx, Logger: logger}
}

// Run returns the segments and their joined text.
func (s *ExtractStage) Run(ctx context.Context, doc entity.RawDocument) ([]entity.Segment, string, error) {
	start := time.Now()
	segs, err := s.Extractor.Extract(ctx, doc)
	if err != nil {
		s.Logger.Error("pipeline.extract.failed",
			"req_id", common.RequestIDFromContext(ctx),
			"file", doc.FileName,
			"error", err,
		)
		return nil, "", err
	}

	text := textextract.Text(segs)
	fallback := textextract.IsFallback(text)
	if fallback {
		s.Logger.Warn("pipeline.extract.fallback", "file", doc.FileName, "segments", len(segs))
	}
	s.Logger.Info("pipeline.extract.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"file", doc.FileName,
		"segments", len(segs),
		"text_len", len(text),
		"fallback", fallback,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return segs, text, nil
}
