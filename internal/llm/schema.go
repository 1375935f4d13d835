package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is sent to the model as a structured output constraint and also used locally to validate.
func BuildInvoiceJSONSchema(allowedCategories []string) map[string]any {
	category := map[string]any{"type": "string"}
	if len(allowedCategories) > 0 {
		category = map[string]any{"type": "string", "enum": allowedCategories}
	}

	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    decimalProp(),
			"unit_price":  decimalProp(),
			"amount":      decimalProp(),
			"category":    category,
		},
		"required": []string{"description"},
	}

	props := map[string]any{
		"invoice_number": map[string]any{"type": "string", "minLength": 1},
		"issue_date":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"vendor_name":    map[string]any{"type": "string", "minLength": 1},
		"vendor_tax_id":  map[string]any{"type": "string"},
		"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"total":          decimalProp(),
		"tax":            decimalProp(),
		"line_items":     map[string]any{"type": "array", "items": lineItem},
		"confidence":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"invoice_number", "vendor_name", "total", "currency"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,4})?$`, // credit notes carry negatives
	}
}
