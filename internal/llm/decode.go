package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DecodeFields normalizes model output, validates it against schema and
// decodes it. When lenient is set, optional offenders are dropped and the
// document is validated a second time before giving up.
func DecodeFields(content []byte, schema map[string]any, allowedCategories []string, lenient bool, logger *slog.Logger, reqID string) (InvoiceFields, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	raw := []byte(stripCodeFence(string(content)))
	normalized, _, err := NormalizeAndSanitizeJSON(raw, logger)
	if err != nil {
		return InvoiceFields{}, raw, err
	}

	if err := ValidateJSONAgainstSchema(schema, normalized); err != nil {
		if !lenient {
			logger.Error("llm.extract.schema_validation_failed",
				"req_id", reqID, "error", err, "content", string(normalized),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return InvoiceFields{}, normalized, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned, dropped, sErr := SanitizeOptionalFields(normalized, allowedCategories)
		if sErr != nil {
			logger.Error("llm.extract.sanitize_failed", "req_id", reqID, "error", sErr)
			return InvoiceFields{}, normalized, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			logger.Error("llm.extract.schema_validation_failed",
				"req_id", reqID, "error", vErr, "content", string(cleaned),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return InvoiceFields{}, cleaned, fmt.Errorf("schema validation failed: %w", vErr)
		}
		logger.Warn("llm.extract.lenient_sanitize_applied", "req_id", reqID, "dropped", dropped)
		normalized = cleaned
	}

	var out InvoiceFields
	if err := json.Unmarshal(normalized, &out); err != nil {
		return InvoiceFields{}, normalized, fmt.Errorf("unmarshal fields: %w", err)
	}
	return out, normalized, nil
}

// stripCodeFence removes a ```json fence some models wrap around their answer.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
