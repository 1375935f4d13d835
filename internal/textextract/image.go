package textextract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)

func (e *Extractor) extractImage(ctx context.Context, doc entity.RawDocument) ([]entity.Segment, error) {
	dir, err := os.MkdirTemp(e.cfg.TempDir, "ii-img-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	name := "page" + filepath.Ext(doc.FileName)
	if name == "page" {
		name = "page.img"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, doc.Content, 0o600); err != nil {
		return nil, err
	}

	txt, err := e.tesseractOCR(ctx, path)
	if err != nil {
		return nil, err
	}
	txt = Normalize(txt)
	return []entity.Segment{{
		Index:      0,
		Text:       txt,
		Method:     "image-ocr",
		Confidence: heuristicConfidence(txt),
	}}, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
