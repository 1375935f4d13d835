package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
)

// Field names that can carry a learning signal.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldIssueDate     = "issue_date"
	FieldVendorName    = "vendor_name"
	FieldVendorTaxID   = "vendor_tax_id"
	FieldCurrency      = "currency"
	FieldTotal         = "total"
	FieldTax           = "tax"
	FieldCategory      = "category"
)

// FieldSet is the typed field map of one invoice extraction.
type FieldSet struct {
	InvoiceNumber string           `json:"invoiceNumber,omitempty"`
	IssueDate     string           `json:"issueDate,omitempty"`
	VendorName    string           `json:"vendorName,omitempty"`
	VendorTaxID   string           `json:"vendorTaxId,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Total         string           `json:"total,omitempty"`
	Tax           string           `json:"tax,omitempty"`
	LineItems     []LineItemFields `json:"lineItems,omitempty"`
}

// LineItemFields is the typed field map of one line item.
type LineItemFields struct {
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unitPrice,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"subCategory,omitempty"`
}

// IsEmpty reports whether no field is set.
func (fs FieldSet) IsEmpty() bool {
	return fs.InvoiceNumber == "" && fs.IssueDate == "" && fs.VendorName == "" &&
		fs.VendorTaxID == "" && fs.Currency == "" && fs.Total == "" && fs.Tax == "" &&
		len(fs.LineItems) == 0
}

// FieldChange is one observed original-to-corrected transition.
type FieldChange struct {
	Field       string          `json:"field"`
	Original    string          `json:"original"`
	Corrected   string          `json:"corrected"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	SubCategory string          `json:"subCategory,omitempty"`
}

// CorrectionRecord is an immutable row of correction history.
type CorrectionRecord struct {
	ID                uuid.UUID            `json:"id"`
	Kind              constants.RecordKind `json:"kind"`
	InvoiceText       string               `json:"invoiceText,omitempty"`
	Original          FieldSet             `json:"original"`
	Corrected         FieldSet             `json:"corrected"`
	UserConfidence    map[string]float64   `json:"userConfidence,omitempty"`
	Document          DocumentMetadata     `json:"document"`
	SourceIdentity    string               `json:"sourceIdentity,omitempty"`
	Identity          string               `json:"identity"`
	PatternKey        string               `json:"patternKey,omitempty"`
	LineItemID        *uuid.UUID           `json:"lineItemId,omitempty"`
	MatchingHistoryID *uuid.UUID           `json:"matchingHistoryId,omitempty"`
	Changes           []FieldChange        `json:"changes,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	// Seq is assigned by storage in insert order and breaks CreatedAt ties.
	Seq int64 `json:"seq,omitempty"`
}

// Observations returns the learning signal carried by the record.
// Field-map corrections are re-derived from Original vs Corrected so that
// only changed fields count; explicit mappings replay their stored changes.
func (r CorrectionRecord) Observations() []FieldChange {
	switch r.Kind {
	case constants.RecordKindCorrection:
		return DiffFields(r.Original, r.Corrected)
	case constants.RecordKindMapping, constants.RecordKindMatchCorrection:
		return r.Changes
	default:
		return nil
	}
}

// DiffFields lists every field whose corrected value differs from the original.
// Line items are paired by position.
func DiffFields(original, corrected FieldSet) []FieldChange {
	amount := parseAmount(corrected.Total)
	if amount.IsZero() {
		amount = parseAmount(original.Total)
	}

	var out []FieldChange
	header := []struct {
		field     string
		orig, cor string
	}{
		{FieldInvoiceNumber, original.InvoiceNumber, corrected.InvoiceNumber},
		{FieldIssueDate, original.IssueDate, corrected.IssueDate},
		{FieldVendorName, original.VendorName, corrected.VendorName},
		{FieldVendorTaxID, original.VendorTaxID, corrected.VendorTaxID},
		{FieldCurrency, original.Currency, corrected.Currency},
		{FieldTotal, original.Total, corrected.Total},
		{FieldTax, original.Tax, corrected.Tax},
	}
	for _, h := range header {
		if !changed(h.orig, h.cor) {
			continue
		}
		out = append(out, FieldChange{
			Field:       h.field,
			Original:    strings.TrimSpace(h.orig),
			Corrected:   strings.TrimSpace(h.cor),
			Description: strings.TrimSpace(h.orig),
			Amount:      amount,
		})
	}

	for i, cli := range corrected.LineItems {
		var oli LineItemFields
		if i < len(original.LineItems) {
			oli = original.LineItems[i]
		}
		if !changed(oli.Category, cli.Category) {
			continue
		}
		desc := cli.Description
		if strings.TrimSpace(desc) == "" {
			desc = oli.Description
		}
		amt := parseAmount(cli.Amount)
		if amt.IsZero() {
			amt = parseAmount(oli.Amount)
		}
		out = append(out, FieldChange{
			Field:       FieldCategory,
			Original:    strings.TrimSpace(oli.Category),
			Corrected:   strings.TrimSpace(cli.Category),
			Description: strings.TrimSpace(desc),
			Amount:      amt,
			SubCategory: cli.SubCategory,
		})
	}
	return out
}

// changed is true when the corrected value is set and differs from the original.
func changed(orig, cor string) bool {
	c := strings.TrimSpace(cor)
	if c == "" {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(orig), c)
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
