package textextract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// FallbackMarker opens every synthetic segment produced for unreadable documents.
const FallbackMarker = "[FALLBACK_EXTRACTION]"

var reSalvageAmount = regexp.MustCompile(`[$€£]\s?\d[\d,]*(\.\d{2})?`)

// fallbackSegment builds the labeled synthetic page returned in place of an
// extraction failure. Its body is invoice-shaped so structured extraction
// downstream has a header token and an amount to work with.
func (e *Extractor) fallbackSegment(doc entity.RawDocument, cause error) entity.Segment {
	ts := e.now().UTC()

	fileID := doc.FileID
	if fileID == "" {
		fileID = doc.FileName
	}
	if fileID == "" {
		fileID = "unknown"
	}

	sum := sha256.Sum256(doc.Content)
	number := "FB-" + strings.ToUpper(hex.EncodeToString(sum[:4]))

	amount := "$0.00"
	if m := reSalvageAmount.FindString(printable(doc.Content)); m != "" {
		amount = strings.ReplaceAll(m, " ", "")
	}

	var b strings.Builder
	b.WriteString(FallbackMarker + "\n")
	fmt.Fprintf(&b, "ERROR: %s\n", cause.Error())
	fmt.Fprintf(&b, "Timestamp: %s\n", ts.Format(time.RFC3339))
	fmt.Fprintf(&b, "File: %s\n", fileID)
	b.WriteString("\nINVOICE\n")
	fmt.Fprintf(&b, "Invoice Number: %s\n", number)
	fmt.Fprintf(&b, "Date: %s\n", ts.Format("2006-01-02"))
	b.WriteString("Vendor: UNKNOWN\n")
	fmt.Fprintf(&b, "Total: %s", amount)

	return entity.Segment{
		Index:      0,
		Text:       b.String(),
		Method:     "fallback",
		Fallback:   true,
		Confidence: 0,
	}
}

// IsFallback reports whether text came from a synthetic fallback segment.
func IsFallback(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), FallbackMarker)
}

// printable keeps the ASCII-printable bytes of raw content for amount salvage.
func printable(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == '\n' || (c >= 0x20 && c < 0x7f) {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
