// Package ingest discovers invoice files on the local filesystem and loads
// them as raw documents.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string `json:"sourcePath"`
	FileID       string `json:"fileId,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Err          string `json:"error,omitempty"`
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Loader reads files into raw documents. Documents are identified by the
// sha256 of their content; a second file with the same content is reported
// as deduplicated.
type Loader struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewLoader() *Loader {
	return &Loader{seen: map[string]string{}}
}

// Load reads path. When dup is true the content was already loaded from
// another path and doc is still returned.
func (l *Loader) Load(path string) (doc entity.RawDocument, dup bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return doc, false, err
	}
	ext := filepath.Ext(abs)
	if !AllowedExt(ext) {
		return doc, false, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return doc, false, err
	}
	sum := sha256.Sum256(content)
	id := hex.EncodeToString(sum[:])

	l.mu.Lock()
	if prev, ok := l.seen[id]; ok && prev != abs {
		dup = true
	} else {
		l.seen[id] = abs
	}
	l.mu.Unlock()

	return entity.RawDocument{
		FileID:    id,
		FileName:  filepath.Base(abs),
		MediaType: mime.TypeByExtension(strings.ToLower(ext)),
		Content:   content,
	}, dup, nil
}
