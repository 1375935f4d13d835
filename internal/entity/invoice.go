package entity

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice holds the structured fields extracted from one document.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	IssueDate     string          `json:"issueDate"` // YYYY-MM-DD
	VendorName    string          `json:"vendorName"`
	VendorTaxID   string          `json:"vendorTaxId,omitempty"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	Tax           decimal.Decimal `json:"tax"`
	LineItems     []LineItem      `json:"lineItems"`
}

// LineItem is a single billed row. LineTotal is always Quantity x UnitPrice.
type LineItem struct {
	ID                uuid.UUID       `json:"id"`
	InvoiceID         uuid.UUID       `json:"invoiceId"`
	Position          int             `json:"position"`
	Description       string          `json:"description"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
	Category          string          `json:"category,omitempty"`
	SubCategory       string          `json:"subCategory,omitempty"`
	ExtractedCategory string          `json:"extractedCategory,omitempty"`
	SuggestedBy       string          `json:"suggestedBy,omitempty"`
}

// NewLineItem builds a line item and computes its total.
func NewLineItem(description string, quantity, unitPrice decimal.Decimal, category string) LineItem {
	li := LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Category:    category,
	}
	li.Recompute()
	return li
}

// Recompute refreshes LineTotal from Quantity and UnitPrice.
func (li *LineItem) Recompute() {
	li.LineTotal = li.Quantity.Mul(li.UnitPrice).Round(2)
}

// LineItemsTotal sums every line total.
func (inv *Invoice) LineItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range inv.LineItems {
		sum = sum.Add(li.LineTotal)
	}
	return sum
}

// Fields flattens the invoice into the typed field set used by corrections.
func (inv *Invoice) Fields() FieldSet {
	fs := FieldSet{
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     inv.IssueDate,
		VendorName:    inv.VendorName,
		VendorTaxID:   inv.VendorTaxID,
		Currency:      inv.Currency,
		Total:         decimalText(inv.Total),
		Tax:           decimalText(inv.Tax),
	}
	for _, li := range inv.LineItems {
		fs.LineItems = append(fs.LineItems, LineItemFields{
			Description: li.Description,
			Quantity:    decimalText(li.Quantity),
			UnitPrice:   decimalText(li.UnitPrice),
			Amount:      decimalText(li.LineTotal),
			Category:    li.Category,
			SubCategory: li.SubCategory,
		})
	}
	return fs
}

func decimalText(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
