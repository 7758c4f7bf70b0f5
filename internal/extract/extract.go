// Package extract pulls structured fields out of raw document text. It is
// a fallback feeder for the matcher: when the extraction service supplies
// no structured value for a field but raw text is present, a regex scan
// recovers what it can at reduced confidence.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// FallbackConfidence is assigned to fields recovered by regex scanning,
// below structured extraction but above the default confidence floor.
const FallbackConfidence = 0.5

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})`),
	regexp.MustCompile(`\$\s*\d+\.\d{2}`),
	regexp.MustCompile(`(?i)(?:Total|Amount|Due|Balance)[\s:]*\$?\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?:USD|CAD)?\s*\$?\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2}))`),
}

var datePatterns = []struct {
	re      *regexp.Regexp
	layouts []string
}{
	{regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`), []string{"1/2/2006"}},
	{regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`), []string{"1-2-2006"}},
	{regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`), []string{"2006-1-2"}},
	{
		regexp.MustCompile(`(?i)(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`),
		[]string{"January 2, 2006", "January 2 2006"},
	},
	{
		regexp.MustCompile(`(?i)(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+\d{4}`),
		[]string{"Jan 2, 2006", "Jan 2 2006"},
	},
}

var invoicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)invoice\s*#?\s*:?\s*([A-Z]{2,4}-\d{4}-\d{4,6})`),
	regexp.MustCompile(`(?i)inv\s*#?\s*:?\s*([A-Z]{2,4}-\d{4}-\d{4,6})`),
	regexp.MustCompile(`(?i)invoice\s*(?:number|no|#)\s*:?\s*([A-Z0-9-]{6,})`),
	regexp.MustCompile(`(?i)bill\s*#?\s*:?\s*([A-Z0-9-]{6,})`),
	regexp.MustCompile(`(?i)reference\s*#?\s*:?\s*([A-Z0-9-]{6,})`),
	regexp.MustCompile(`\b([A-Z]{2,4}-\d{4}-\d{4,6})\b`),
}

var nonAmountChars = regexp.MustCompile(`[^\d.,]`)

// Amounts extracts deduplicated monetary amounts, largest first. The main
// invoice amount is usually the largest value on the page.
func Amounts(text string) []decimal.Decimal {
	seen := make(map[string]bool)
	var amounts []decimal.Decimal

	for _, re := range amountPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if len(m) > 1 && m[1] != "" {
				raw = m[1]
			}
			raw = strings.ReplaceAll(nonAmountChars.ReplaceAllString(raw, ""), ",", "")

			d, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			// Drop obvious OCR noise.
			if d.LessThan(decimal.RequireFromString("0.01")) || d.GreaterThan(decimal.NewFromInt(1000000)) {
				continue
			}
			key := d.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			amounts = append(amounts, d)
		}
	}

	sort.Slice(amounts, func(i, j int) bool { return amounts[i].GreaterThan(amounts[j]) })
	return amounts
}

// Dates extracts deduplicated calendar dates in document order.
func Dates(text string) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time

	for _, p := range datePatterns {
		for _, raw := range p.re.FindAllString(text, -1) {
			for _, layout := range p.layouts {
				t, err := time.Parse(layout, normalizeMonth(raw))
				if err != nil {
					continue
				}
				t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
				if !seen[t] {
					seen[t] = true
					dates = append(dates, t)
				}
				break
			}
		}
	}

	return dates
}

// normalizeMonth title-cases a leading month name so case-insensitive
// regex hits still parse with time layouts.
func normalizeMonth(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// InvoiceNumbers extracts deduplicated invoice references.
func InvoiceNumbers(text string) []string {
	seen := make(map[string]bool)
	var numbers []string

	for _, re := range invoicePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			num := strings.TrimSpace(m[1])
			if len(num) < 6 || seen[num] {
				continue
			}
			seen[num] = true
			numbers = append(numbers, num)
		}
	}

	return numbers
}

// Enrich fills absent structured fields on a document from its raw text,
// marking recovered fields with FallbackConfidence. Present fields are
// never overwritten.
func Enrich(doc *model.ExtractedDocument) {
	if doc.RawText == "" {
		return
	}

	if doc.Amount == nil {
		if amounts := Amounts(doc.RawText); len(amounts) > 0 {
			doc.Amount = &amounts[0]
			doc.Confidence.Amount = FallbackConfidence
			if doc.Currency == "" {
				doc.Currency = "USD"
			}
		}
	}

	if doc.DocumentDate == nil {
		if dates := Dates(doc.RawText); len(dates) > 0 {
			doc.DocumentDate = &dates[0]
			doc.Confidence.Date = FallbackConfidence
		}
	}

	if doc.InvoiceNumber == nil {
		if numbers := InvoiceNumbers(doc.RawText); len(numbers) > 0 {
			doc.InvoiceNumber = &numbers[0]
			doc.Confidence.Invoice = FallbackConfidence
		}
	}
}
