package providers

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/textextract"
)

// HeuristicName is the registry name of the local regex provider.
const HeuristicName = "heuristic"

// Recognizer finds header field values in text using learned patterns.
type Recognizer interface {
	Recognize(text string) map[string]string
}

var (
	reInvNumber = regexp.MustCompile(`(?i)\binvoice[ \t]*(?:no\.?|number|num|#)?[ \t]*[:#]?[ \t]*([A-Z0-9][A-Z0-9\-/]{2,})`)
	reISODate   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	reSlashDate = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`)
	reVendor    = regexp.MustCompile(`(?im)^\s*(?:from|vendor|supplier|bill from|seller)\s*:\s*(.+?)\s*$`)
	reTaxID     = regexp.MustCompile(`(?i)\b(?:vat|tax[ \t]*id|tin|ein|abn)[ \t]*(?:no\.?|number|#)?[ \t]*[:#]?[ \t]*([A-Z0-9][A-Z0-9\-]{5,})`)
	reTotal     = regexp.MustCompile(`(?im)^\s*(?:grand\s+total|total\s+due|amount\s+due|balance\s+due|total|amount)\b[^\d\n]*?([$€£]|\b[A-Z]{3}\b)?\s*(-?[\d,]+\.\d{2})\s*$`)
	reTax       = regexp.MustCompile(`(?im)^\s*(?:sales\s+tax|tax|vat|gst)\b[^\d\n]*?(-?[\d,]+\.\d{2})\s*$`)
	reLine      = regexp.MustCompile(`(?m)^\s*([A-Za-z][^\n]*?)\s+(\d+(?:\.\d+)?)\s*(?:x|@)?\s*[$€£]?([\d,]+\.\d{2})\s+[$€£]?([\d,]+\.\d{2})\s*$`)
	reCurCode   = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|CHF|JPY)\b`)
)

var symbolCurrency = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

// Heuristic is the zero-cost local provider. Its confidence is the fraction of
// key fields (number, date, vendor, total) it could find.
type Heuristic struct {
	recognizer Recognizer
	logger     *slog.Logger
}

func NewHeuristic(recognizer Recognizer, logger *slog.Logger) *Heuristic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heuristic{recognizer: recognizer, logger: logger}
}

func (h *Heuristic) Name() string { return HeuristicName }

func (h *Heuristic) Extract(ctx context.Context, req extraction.ProviderRequest) (extraction.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return extraction.ProviderResult{}, err
	}
	text := req.Text
	inv := &entity.Invoice{}
	found := 0

	if v := firstWithDigit(reInvNumber, text); v != "" {
		inv.InvoiceNumber = v
		found++
	}
	if d := findDate(text); d != "" {
		inv.IssueDate = d
		found++
	}
	if m := reVendor.FindStringSubmatch(text); m != nil && !strings.EqualFold(m[1], "unknown") {
		inv.VendorName = m[1]
	}
	inv.VendorTaxID = firstWithDigit(reTaxID, text)
	if h.recognizer != nil {
		learned := h.recognizer.Recognize(text)
		if inv.VendorName == "" {
			inv.VendorName = learned[entity.FieldVendorName]
		}
		if inv.VendorTaxID == "" {
			inv.VendorTaxID = learned[entity.FieldVendorTaxID]
		}
		if inv.Currency == "" {
			inv.Currency = learned[entity.FieldCurrency]
		}
	}
	if inv.VendorName != "" {
		found++
	}

	if ms := reTotal.FindAllStringSubmatch(text, -1); len(ms) > 0 {
		m := ms[len(ms)-1]
		if d, err := parseMoney(m[2]); err == nil {
			inv.Total = d
			found++
			if c, ok := symbolCurrency[m[1]]; ok {
				inv.Currency = c
			} else if m[1] != "" {
				inv.Currency = strings.ToUpper(m[1])
			}
		}
	}
	if m := reTax.FindStringSubmatch(text); m != nil {
		if d, err := parseMoney(m[1]); err == nil {
			inv.Tax = d
		}
	}
	if inv.Currency == "" {
		if m := reCurCode.FindStringSubmatch(text); m != nil {
			inv.Currency = m[1]
		}
	}

	for _, m := range reLine.FindAllStringSubmatch(text, -1) {
		qty, err1 := decimal.NewFromString(m[2])
		price, err2 := parseMoney(m[3])
		if err1 != nil || err2 != nil {
			continue
		}
		li := entity.NewLineItem(strings.TrimSpace(m[1]), qty, price, "")
		li.Position = len(inv.LineItems)
		inv.LineItems = append(inv.LineItems, li)
	}
	if inv.Total.IsZero() && len(inv.LineItems) > 0 {
		inv.Total = inv.LineItemsTotal()
	}

	conf := float64(found) / 4
	if textextract.IsFallback(text) {
		// synthetic text is never trustworthy on its own
		conf = min(conf, 0.3)
	}

	h.logger.Debug("provider.heuristic.done",
		"found", found,
		"confidence", conf,
		"line_items", len(inv.LineItems),
	)
	return extraction.ProviderResult{Invoice: inv, Confidence: conf, Cost: decimal.Zero}, nil
}

func findDate(text string) string {
	if m := reISODate.FindStringSubmatch(text); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err == nil {
			return m[1]
		}
	}
	if m := reSlashDate.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("1/2/2006", m[1]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// firstWithDigit skips captures like "INVOICE" that are plain words.
func firstWithDigit(re *regexp.Regexp, text string) string {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if strings.ContainsAny(m[1], "0123456789") {
			return m[1]
		}
	}
	return ""
}

func parseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}
