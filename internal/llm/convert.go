package llm

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// ToInvoice converts validated model output into an invoice. Line totals are
// recomputed from quantity and unit price; a printed amount is only used to
// back-fill a missing unit price.
func (f InvoiceFields) ToInvoice() (*entity.Invoice, error) {
	total, err := parseDecimal(f.Total)
	if err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	tax, err := parseDecimal(f.Tax)
	if err != nil {
		return nil, fmt.Errorf("tax: %w", err)
	}

	inv := &entity.Invoice{
		InvoiceNumber: strings.TrimSpace(f.InvoiceNumber),
		IssueDate:     strings.TrimSpace(f.IssueDate),
		VendorName:    strings.TrimSpace(f.VendorName),
		VendorTaxID:   strings.TrimSpace(f.VendorTaxID),
		Currency:      strings.ToUpper(strings.TrimSpace(f.Currency)),
		Total:         total,
		Tax:           tax,
	}

	for i, li := range f.LineItems {
		qty, err := parseDecimal(li.Quantity)
		if err != nil {
			return nil, fmt.Errorf("line_items[%d].quantity: %w", i, err)
		}
		price, err := parseDecimal(li.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line_items[%d].unit_price: %w", i, err)
		}
		amount, err := parseDecimal(li.Amount)
		if err != nil {
			return nil, fmt.Errorf("line_items[%d].amount: %w", i, err)
		}
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		if price.IsZero() && !amount.IsZero() {
			price = amount.Div(qty).Round(4)
		}
		category := ""
		if li.Category != "" {
			category = constants.NormalizeCategory(li.Category)
		}
		item := entity.NewLineItem(strings.TrimSpace(li.Description), qty, price, category)
		item.Position = i
		item.ExtractedCategory = category
		inv.LineItems = append(inv.LineItems, item)
	}
	return inv, nil
}

// Confidence returns the model's self-reported confidence, or completeness of
// the required fields when the model did not report one.
func (f InvoiceFields) Confidence() float64 {
	if f.ModelConfidence > 0 && f.ModelConfidence <= 1 && !math.IsNaN(f.ModelConfidence) {
		return f.ModelConfidence
	}
	present := 0
	for _, s := range []string{f.InvoiceNumber, f.IssueDate, f.VendorName, f.Currency, f.Total} {
		if strings.TrimSpace(s) != "" {
			present++
		}
	}
	return float64(present) / 5
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
