package textextract

import (
	"context"
	"fmt"
	"os"

	"github.com/tsawler/tabula"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// PDFReader returns the text of each page of a PDF, in order.
type PDFReader interface {
	Pages(ctx context.Context, content []byte, maxPages int) ([]string, error)
}

type tabulaReader struct {
	tempDir string
}

// Pages spills the content to a temp file because tabula opens by path.
func (r tabulaReader) Pages(ctx context.Context, content []byte, maxPages int) (pages []string, err error) {
	f, err := os.CreateTemp(r.tempDir, "ii-pdf-*.pdf")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	// malformed input can panic deep inside the parser
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	counter := tabula.Open(path)
	n, err := counter.PageCount()
	_ = counter.Close()
	if err != nil {
		return nil, fmt.Errorf("pdf page count: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txt, _, err := tabula.Open(path).Pages(i).Text()
		if err != nil {
			return nil, fmt.Errorf("pdf page %d: %w", i, err)
		}
		pages = append(pages, txt)
	}
	return pages, nil
}

func (e *Extractor) extractPDF(ctx context.Context, doc entity.RawDocument) ([]entity.Segment, error) {
	pages, err := e.pdf.Pages(ctx, doc.Content, e.cfg.MaxPages)
	if err != nil {
		return nil, err
	}
	segs := make([]entity.Segment, 0, len(pages))
	for i, p := range pages {
		txt := Normalize(p)
		segs = append(segs, entity.Segment{
			Index:      i,
			Text:       txt,
			Method:     "pdf-text",
			Confidence: heuristicConfidence(txt),
		})
	}
	e.logger.Debug("textextract.pdf", "file_id", doc.FileID, "format", constants.PDF, "pages", len(pages))
	return segs, nil
}
