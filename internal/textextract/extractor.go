// Package textextract turns binary invoice documents into text segments.
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	MaxPages      int    // 0 = no limit
	TempDir       string // scratch dir for external tools; "" = os default
}

type Extractor struct {
	cfg    Config
	runner Runner
	pdf    PDFReader
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the external command runner (tests stub tesseract).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithPDFReader replaces the PDF page reader.
func WithPDFReader(p PDFReader) Option {
	return func(e *Extractor) {
		if p != nil {
			e.pdf = p
		}
	}
}

// WithClock fixes the timestamp source used in fallback segments.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	e := &Extractor{
		cfg:    cfg,
		runner: execRunner{logger: logger},
		pdf:    tabulaReader{tempDir: cfg.TempDir},
		now:    time.Now,
		logger: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns one segment per page in document order. Empty input is
// rejected with INVALID_DOCUMENT; any other failure is converted into a single
// labeled fallback segment so callers always receive text.
func (e *Extractor) Extract(ctx context.Context, doc entity.RawDocument) ([]entity.Segment, error) {
	if doc.Size() == 0 {
		return nil, common.InvalidDocument("document is empty")
	}

	start := time.Now()
	format := detectFormat(doc)
	e.logger.Debug("textextract.start", "file_id", doc.FileID, "format", format, "bytes", doc.Size())

	var (
		segs []entity.Segment
		err  error
	)
	switch format {
	case constants.PDF:
		segs, err = e.extractPDF(ctx, doc)
	case constants.IMAGE:
		segs, err = e.extractImage(ctx, doc)
	case constants.TEXT:
		segs, err = e.extractText(doc)
	default:
		err = fmt.Errorf("unsupported media type %q", doc.MediaType)
	}

	if err == nil && allBlank(segs) {
		err = fmt.Errorf("no text found in %s document", format)
	}
	if err != nil {
		e.logger.Warn("textextract.fallback",
			"file_id", doc.FileID,
			"format", format,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return []entity.Segment{e.fallbackSegment(doc, err)}, nil
	}

	e.logger.Info("textextract.ok",
		"file_id", doc.FileID,
		"format", format,
		"segments", len(segs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return segs, nil
}

// Text joins segments with form feeds, the page separator used throughout.
func Text(segs []entity.Segment) string {
	var b bytes.Buffer
	for i, s := range segs {
		if i > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func (e *Extractor) extractText(doc entity.RawDocument) ([]entity.Segment, error) {
	if !utf8.Valid(doc.Content) {
		return nil, fmt.Errorf("text document is not valid UTF-8")
	}
	pages := bytes.Split(doc.Content, []byte("\f"))
	segs := make([]entity.Segment, 0, len(pages))
	for i, p := range pages {
		txt := Normalize(string(p))
		segs = append(segs, entity.Segment{
			Index:      i,
			Text:       txt,
			Method:     "plain-text",
			Confidence: heuristicConfidence(txt),
		})
	}
	return segs, nil
}

func detectFormat(doc entity.RawDocument) string {
	if f := constants.MapMediaTypeToFormat(doc.MediaType); f != "" {
		return f
	}
	if f := constants.MapExtToFormat(filepath.Ext(doc.FileName)); f != "" {
		return f
	}
	if bytes.HasPrefix(doc.Content, []byte("%PDF-")) {
		return constants.PDF
	}
	if f := constants.MapMediaTypeToFormat(http.DetectContentType(doc.Content)); f != "" {
		return f
	}
	if utf8.Valid(doc.Content) {
		return constants.TEXT
	}
	return ""
}

func allBlank(segs []entity.Segment) bool {
	for _, s := range segs {
		if s.Text != "" {
			return false
		}
	}
	return true
}
