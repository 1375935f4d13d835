package learning

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// Matcher recognizes a learned value in new input. Expr is a plain template
// string that can be persisted and rebuilt with ParseMatcher.
type Matcher interface {
	Kind() entity.MatcherKind
	Expr() string
	// Match reports whether s as a whole has the learned shape.
	Match(s string) bool
	// Find returns the first occurrence of the shape inside text.
	Find(text string) (string, bool)
}

var (
	numericFields = map[string]bool{entity.FieldTotal: true, entity.FieldTax: true, "amount": true, "unit_price": true}
	dateFields    = map[string]bool{entity.FieldIssueDate: true, "due_date": true}
)

// MatcherFor selects the matcher kind by field and derives it from value.
func MatcherFor(field, value string) Matcher {
	switch {
	case numericFields[field]:
		if m, ok := newNumericTemplate(value); ok {
			return m
		}
	case dateFields[field]:
		if m, ok := newDateTemplate(value); ok {
			return m
		}
	}
	return newLiteral(value)
}

// ParseMatcher rebuilds a persisted matcher.
func ParseMatcher(kind entity.MatcherKind, expr string) (Matcher, error) {
	switch kind {
	case entity.MatcherLiteral:
		return newLiteral(expr), nil
	case entity.MatcherNumericTemplate:
		return numericFromTemplate(expr)
	case entity.MatcherDateTemplate:
		for _, l := range dateLayouts {
			if l.layout == expr {
				return dateTemplate{l}, nil
			}
		}
		return nil, fmt.Errorf("unknown date template %q", expr)
	default:
		return nil, fmt.Errorf("unknown matcher kind %q", kind)
	}
}

// literal matches the escaped value case-insensitively with flexible spacing.
type literal struct {
	text  string
	whole *regexp.Regexp
	inner *regexp.Regexp
}

func newLiteral(value string) literal {
	words := strings.Fields(value)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	body := strings.Join(quoted, `\s+`)
	return literal{
		text:  strings.Join(words, " "),
		whole: regexp.MustCompile(`(?i)^\s*` + body + `\s*$`),
		inner: regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(` + body + `)(?:$|[^\pL\pN])`),
	}
}

func (l literal) Kind() entity.MatcherKind { return entity.MatcherLiteral }
func (l literal) Expr() string             { return l.text }

func (l literal) Match(s string) bool {
	return l.text != "" && l.whole.MatchString(s)
}

func (l literal) Find(text string) (string, bool) {
	if l.text == "" {
		return "", false
	}
	m := l.inner.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// numericTemplate matches amounts with the same integer width and scale.
// The template is written with '#' for digits, e.g. "####.##".
type numericTemplate struct {
	tmpl  string
	whole *regexp.Regexp
	inner *regexp.Regexp
}

func newNumericTemplate(value string) (numericTemplate, bool) {
	d, err := decimal.NewFromString(cleanAmount(value))
	if err != nil {
		return numericTemplate{}, false
	}
	m, err := numericFromTemplate(shapeOf(d))
	return m, err == nil
}

func shapeOf(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return '#'
		}
		return r
	}, s)
}

func numericFromTemplate(tmpl string) (numericTemplate, error) {
	intPart, frac, _ := strings.Cut(tmpl, ".")
	if intPart == "" || strings.Trim(intPart, "#") != "" || strings.Trim(frac, "#") != "" {
		return numericTemplate{}, fmt.Errorf("bad numeric template %q", tmpl)
	}
	body := fmt.Sprintf(`\d{%d}`, len(intPart))
	if frac != "" {
		body += fmt.Sprintf(`\.\d{%d}`, len(frac))
	}
	return numericTemplate{
		tmpl:  tmpl,
		whole: regexp.MustCompile(`^-?` + body + `$`),
		inner: regexp.MustCompile(`(?:^|[^\d.])(` + body + `)(?:$|[^\d])`),
	}, nil
}

func (n numericTemplate) Kind() entity.MatcherKind { return entity.MatcherNumericTemplate }
func (n numericTemplate) Expr() string             { return n.tmpl }

func (n numericTemplate) Match(s string) bool {
	return n.whole.MatchString(cleanAmount(s))
}

func (n numericTemplate) Find(text string) (string, bool) {
	m := n.inner.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func cleanAmount(s string) string {
	r := strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "")
	return r.Replace(strings.TrimSpace(s))
}

type dateLayout struct {
	layout string
	re     *regexp.Regexp
}

var dateLayouts = []dateLayout{
	{"2006-01-02", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
	{"01/02/2006", regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`)},
	{"02.01.2006", regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)},
	{"Jan 2, 2006", regexp.MustCompile(`\b[A-Z][a-z]{2} \d{1,2}, \d{4}\b`)},
	{"2 Jan 2006", regexp.MustCompile(`\b\d{1,2} [A-Z][a-z]{2} \d{4}\b`)},
}

// dateTemplate matches dates written in the same layout as the learned value.
type dateTemplate struct{ dateLayout }

func newDateTemplate(value string) (dateTemplate, bool) {
	v := strings.TrimSpace(value)
	for _, l := range dateLayouts {
		if _, err := time.Parse(l.layout, v); err == nil {
			return dateTemplate{l}, true
		}
	}
	return dateTemplate{}, false
}

func (d dateTemplate) Kind() entity.MatcherKind { return entity.MatcherDateTemplate }
func (d dateTemplate) Expr() string             { return d.layout }

func (d dateTemplate) Match(s string) bool {
	_, err := time.Parse(d.layout, strings.TrimSpace(s))
	return err == nil
}

func (d dateTemplate) Find(text string) (string, bool) {
	for _, m := range d.re.FindAllString(text, -1) {
		if _, err := time.Parse(d.layout, m); err == nil {
			return m, true
		}
	}
	return "", false
}

// NormalizeValue produces the pattern-key form of a corrected value.
func NormalizeValue(field, value string) string {
	v := strings.Join(strings.Fields(value), " ")
	if v == "" {
		return ""
	}
	switch {
	case field == entity.FieldCategory:
		return constants.NormalizeCategory(v)
	case field == entity.FieldCurrency:
		return strings.ToUpper(v)
	case numericFields[field]:
		if d, err := decimal.NewFromString(cleanAmount(v)); err == nil {
			return d.StringFixed(2)
		}
	case dateFields[field]:
		if m, ok := newDateTemplate(v); ok {
			t, _ := time.Parse(m.layout, v)
			return t.Format("2006-01-02")
		}
	}
	return v
}
