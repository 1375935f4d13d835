package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var reDecimal = regexp.MustCompile(`^-?\d+(\.\d{1,4})?$`)

// SanitizeOptionalFields removes or normalizes optional fields that don't meet our stricter schema,
// so the overall document can still validate. We only touch OPTIONALS.
func SanitizeOptionalFields(doc []byte, allowedCategories []string) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	if v, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := m["issue_date"].(string); ok {
		if d, ok := normalizeDate(v); ok {
			m["issue_date"] = d
		} else {
			delete(m, "issue_date")
			dropped = append(dropped, "issue_date")
		}
	}
	if v, ok := m["confidence"]; ok {
		if f, isNum := v.(float64); !isNum || f < 0 || f > 1 {
			delete(m, "confidence")
			dropped = append(dropped, "confidence")
		}
	}
	if fixOptionalMoney(m, "tax") {
		dropped = append(dropped, "tax")
	}

	if items, ok := m["line_items"].([]any); ok {
		for i, it := range items {
			li, ok := it.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range []string{"quantity", "unit_price", "amount"} {
				if fixOptionalMoney(li, k) {
					dropped = append(dropped, fmt.Sprintf("line_items[%d].%s", i, k))
				}
			}
			if c, ok := li["category"].(string); ok && len(allowedCategories) > 0 && !slices.Contains(allowedCategories, c) {
				delete(li, "category")
				dropped = append(dropped, fmt.Sprintf("line_items[%d].category", i))
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

// fixOptionalMoney normalizes obj[k] to a decimal string and reports whether it had to be dropped.
func fixOptionalMoney(obj map[string]any, k string) bool {
	v, ok := obj[k]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case float64:
		obj[k] = strconv.FormatFloat(t, 'f', -1, 64)
		return false
	case string:
		s := strings.TrimSpace(t)
		if reDecimal.MatchString(s) {
			obj[k] = s
			return false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			obj[k] = fmt.Sprintf("%.2f", f)
			return false
		}
	}
	delete(obj, k)
	return true
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02.01.2006", "01/02/2006", "Jan 2, 2006", "2 Jan 2006", "January 2, 2006"}

func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
