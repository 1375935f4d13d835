package llm

import (
	"encoding/json"
	"strings"
)

const maxPromptText = 6000

// BuildSystemPrompt composes the system message with currency defaults, allowed categories
// and strict-but-practical formatting rules.
func BuildSystemPrompt(req ExtractRequest) string {
	var catLine string
	if len(req.AllowedCategories) > 0 {
		catLine = "Each line item 'category' MUST be exactly one of the allowed enum; if uncertain, choose 'OTHER'. " +
			"Allowed categories (enum): " + strings.Join(req.AllowedCategories, ", ") + "."
	} else {
		catLine = "Each line item may carry a short 'category' label; if uncertain, omit it."
	}

	defCur := strings.TrimSpace(req.DefaultCurrency)
	if defCur == "" {
		defCur = "USD"
	}

	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Use ISO-8601 dates (YYYY-MM-DD) for 'issue_date'.",
		"Currency must be a 3-letter ISO 4217 code; default to " + defCur + " if uncertain.",
		"Money values are strings with a dot decimal separator and no thousands separators or symbols.",
		"'total' is the amount due including tax; put tax alone under 'tax'.",
		"List every billed line under 'line_items' with description, quantity, unit_price and amount as printed.",
		catLine,
		"Set 'confidence' between 0 and 1 to reflect how legible and complete the invoice was.",
		"Never output null. If a field is not present, omit it.",
	}
	if len(req.KnownVendors) > 0 {
		parts = append(parts, "Known vendors (prefer these exact spellings when they match): "+strings.Join(req.KnownVendors, "; ")+".")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the extracted text, truncated to keep requests bounded.
func BuildUserPrompt(req ExtractRequest) string {
	txt := strings.TrimSpace(req.Text)
	var b strings.Builder
	b.WriteString("Invoice text:\n")
	if len(txt) > maxPromptText {
		b.WriteString(txt[:maxPromptText])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(txt)
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

// SchemaInstruction renders the schema for providers that take it as plain text.
func SchemaInstruction(schema map[string]any) string {
	b, _ := json.MarshalIndent(schema, "", "  ")
	return "JSON Schema:\n" + string(b)
}
