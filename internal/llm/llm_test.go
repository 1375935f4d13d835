package llm

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categories = []string{"MATERIAL", "LABOR", "OTHER"}

func TestNormalizeAndSanitizeJSON_RenamesAndCoerces(t *testing.T) {
	raw := []byte(`{
		"vendor": " Acme Steel ",
		"invoice_no": "INV-1",
		"date": "2026-01-05",
		"currency_code": "eur",
		"total": 1500,
		"tax": null,
		"notes": "thanks",
		"items": [{"description": "Beam", "qty": 3, "price": "$1,000.00", "sku": "B1"}]
	}`)
	out, dropped, err := NormalizeAndSanitizeJSON(raw, nil)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "Acme Steel", m["vendor_name"])
	assert.Equal(t, "INV-1", m["invoice_number"])
	assert.Equal(t, "2026-01-05", m["issue_date"])
	assert.Equal(t, "EUR", m["currency"])
	assert.Equal(t, "1500", m["total"])
	assert.NotContains(t, m, "tax")
	assert.NotContains(t, m, "notes")

	items := m["line_items"].([]any)
	require.Len(t, items, 1)
	li := items[0].(map[string]any)
	assert.Equal(t, "3", li["quantity"])
	assert.Equal(t, "1000.00", li["unit_price"])
	assert.NotContains(t, li, "sku")

	assert.Contains(t, dropped, "notes(unknown)")
	assert.Contains(t, dropped, "tax(null)")
}

func TestDecodeFields_StrictRejectsBadOptional(t *testing.T) {
	schema := BuildInvoiceJSONSchema(categories)
	content := []byte(`{"invoice_number":"A1","vendor_name":"Acme","currency":"USD","total":"10.00","issue_date":"Jan 5, 2026"}`)

	_, _, err := DecodeFields(content, schema, categories, false, nil, "t")
	require.Error(t, err)

	fields, _, err := DecodeFields(content, schema, categories, true, nil, "t")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-05", fields.IssueDate)
}

func TestDecodeFields_LenientDropsUnknownCategory(t *testing.T) {
	schema := BuildInvoiceJSONSchema(categories)
	content := []byte(`{"invoice_number":"A1","vendor_name":"Acme","currency":"USD","total":"10.00",
		"line_items":[{"description":"Paint","amount":"10.00","category":"DECOR"}]}`)

	fields, _, err := DecodeFields(content, schema, categories, true, nil, "t")
	require.NoError(t, err)
	require.Len(t, fields.LineItems, 1)
	assert.Empty(t, fields.LineItems[0].Category)
}

func TestDecodeFields_MissingRequiredFails(t *testing.T) {
	schema := BuildInvoiceJSONSchema(nil)
	_, _, err := DecodeFields([]byte(`{"vendor_name":"Acme"}`), schema, nil, true, nil, "t")
	require.Error(t, err)
}

func TestInvoiceFields_ToInvoice(t *testing.T) {
	f := InvoiceFields{
		InvoiceNumber: "INV-9",
		VendorName:    "Acme",
		Currency:      "usd",
		Total:         "1210.00",
		Tax:           "210.00",
		LineItems: []LineItemFields{
			{Description: "Beam", Quantity: "2", UnitPrice: "400.00", Category: "material"},
			{Description: "Install", Amount: "200.00"},
		},
	}
	inv, err := f.ToInvoice()
	require.NoError(t, err)

	assert.Equal(t, "USD", inv.Currency)
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("1210.00")))
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "MATERIAL", inv.LineItems[0].Category)
	assert.True(t, inv.LineItems[0].LineTotal.Equal(decimal.RequireFromString("800")))
	assert.True(t, inv.LineItems[1].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, inv.LineItems[1].LineTotal.Equal(decimal.RequireFromString("200")))
	assert.Equal(t, 1, inv.LineItems[1].Position)
}

func TestInvoiceFields_ToInvoiceRejectsBadDecimal(t *testing.T) {
	_, err := InvoiceFields{Total: "ten"}.ToInvoice()
	require.Error(t, err)
}

func TestInvoiceFields_Confidence(t *testing.T) {
	assert.InDelta(t, 0.8, InvoiceFields{ModelConfidence: 0.8}.Confidence(), 1e-9)
	assert.InDelta(t, 0.6, InvoiceFields{InvoiceNumber: "1", VendorName: "A", Total: "1"}.Confidence(), 1e-9)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(` {"a":1} `))
}
