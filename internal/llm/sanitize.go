package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
)

var allowedTopLevel = map[string]struct{}{
	"invoice_number": {}, "issue_date": {}, "vendor_name": {}, "vendor_tax_id": {},
	"currency": {}, "total": {}, "tax": {}, "line_items": {}, "confidence": {},
}

var allowedLineKeys = map[string]struct{}{
	"description": {}, "quantity": {}, "unit_price": {}, "amount": {}, "category": {},
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (vendor -> vendor_name, items -> line_items, ...)
// - Drops null/empty optionals
// - Coerces numeric -> string for money-ish fields
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	rename := func(obj map[string]any, from, to string) {
		if v, ok := obj[from]; ok {
			if _, exists := obj[to]; !exists {
				obj[to] = v
			}
			delete(obj, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	rename(m, "vendor", "vendor_name")
	rename(m, "supplier", "vendor_name")
	rename(m, "invoice_no", "invoice_number")
	rename(m, "number", "invoice_number")
	rename(m, "date", "issue_date")
	rename(m, "invoice_date", "issue_date")
	rename(m, "tax_id", "vendor_tax_id")
	rename(m, "vat_number", "vendor_tax_id")
	rename(m, "currency_code", "currency")
	rename(m, "items", "line_items")
	rename(m, "lines", "line_items")

	coerceMoney := func(obj map[string]any, k, where string) {
		v, ok := obj[k]
		if !ok {
			return
		}
		switch t := v.(type) {
		case float64:
			obj[k] = formatNumber(t)
		case string:
			s := strings.TrimSpace(strings.NewReplacer(",", "", "$", "", "€", "", "£", "").Replace(t))
			if s == "" {
				delete(obj, k)
				dropped = append(dropped, where+k+"(empty)")
			} else {
				obj[k] = s
			}
		case nil:
			delete(obj, k)
			dropped = append(dropped, where+k+"(null)")
		default:
			delete(obj, k)
			dropped = append(dropped, where+k+"(type)")
		}
	}
	for _, k := range []string{"total", "tax"} {
		coerceMoney(m, k, "")
	}

	if items, ok := m["line_items"].([]any); ok {
		kept := make([]any, 0, len(items))
		for i, it := range items {
			li, ok := it.(map[string]any)
			if !ok {
				dropped = append(dropped, fmt.Sprintf("line_items[%d](type)", i))
				continue
			}
			where := fmt.Sprintf("line_items[%d].", i)
			rename(li, "qty", "quantity")
			rename(li, "price", "unit_price")
			rename(li, "line_total", "amount")
			rename(li, "total", "amount")
			for _, k := range []string{"quantity", "unit_price", "amount"} {
				coerceMoney(li, k, where)
			}
			for k := range maps.Clone(li) {
				if _, ok := allowedLineKeys[k]; !ok {
					delete(li, k)
					dropped = append(dropped, where+k+"(unknown)")
				}
			}
			kept = append(kept, li)
		}
		m["line_items"] = kept
	} else if v, exists := m["line_items"]; exists && v != nil {
		delete(m, "line_items")
		dropped = append(dropped, "line_items(type)")
	}

	for k := range maps.Clone(m) {
		if _, ok := allowedTopLevel[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	for _, k := range []string{"invoice_number", "issue_date", "vendor_name", "vendor_tax_id", "currency"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, isStr := v.(string)
		s = strings.TrimSpace(s)
		if !isStr || s == "" {
			delete(m, k)
			dropped = append(dropped, k+"(empty)")
			continue
		}
		if k == "currency" {
			s = strings.ToUpper(s)
		}
		m[k] = s
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
