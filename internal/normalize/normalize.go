// Package normalize canonicalizes extracted document fields into the
// comparable forms the matcher scores against. All functions are pure.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// legalSuffixes are corporate designators stripped from vendor names.
// Comparison happens after case folding, so entries are lower case.
var legalSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"ltd":          true,
	"limited":      true,
	"gmbh":         true,
	"ag":           true,
	"sa":           true,
	"srl":          true,
	"bv":           true,
	"nv":           true,
	"plc":          true,
	"pty":          true,
	"oy":           true,
	"ab":           true,
}

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
	"ISK": true,
}

// Document produces the canonical form of an extracted document. Fields
// whose extraction confidence falls below confidenceFloor are treated as
// absent so a garbage OCR read never drives a confident match.
func Document(doc *model.ExtractedDocument, confidenceFloor float64) *model.NormalizedDocument {
	n := &model.NormalizedDocument{
		DocumentID: doc.ID,
		Currency:   strings.ToUpper(strings.TrimSpace(doc.Currency)),
	}

	if doc.VendorName != nil && doc.Confidence.Vendor >= confidenceFloor {
		canonical, tokens := Vendor(*doc.VendorName)
		if canonical != "" {
			n.Vendor = &canonical
			n.VendorTokens = tokens
		}
	}

	if doc.Amount != nil && doc.Confidence.Amount >= confidenceFloor {
		minor := AmountMinor(*doc.Amount, n.Currency)
		n.AmountMinor = &minor
	}

	if doc.DocumentDate != nil && doc.Confidence.Date >= confidenceFloor {
		day := Date(*doc.DocumentDate)
		n.Date = &day
	}

	if doc.InvoiceNumber != nil && doc.Confidence.Invoice >= confidenceFloor {
		inv := Invoice(*doc.InvoiceNumber)
		if inv != "" {
			n.Invoice = &inv
		}
	}

	return n
}

// Vendor canonicalizes a vendor name: case-folded, punctuation dropped,
// legal suffixes stripped, whitespace collapsed. Returns the canonical
// string and its tokens. An unusable input returns ("", nil) so an absent
// vendor can never normalize to a match-everything empty string.
func Vendor(name string) (string, []string) {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	raw := strings.Fields(b.String())
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if legalSuffixes[t] {
			continue
		}
		tokens = append(tokens, t)
	}

	// A name made entirely of legal suffixes keeps its raw tokens rather
	// than vanishing.
	if len(tokens) == 0 {
		tokens = raw
	}
	if len(tokens) == 0 {
		return "", nil
	}

	return strings.Join(tokens, " "), tokens
}

// Invoice canonicalizes an invoice number: upper-cased with separators
// and whitespace removed, so "inv-100" and "INV 100" compare equal.
func Invoice(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AmountMinor converts a decimal amount to fixed-point minor units for
// the given currency. No FX conversion happens here; mismatched
// currencies are a non-match signal downstream, not an error.
func AmountMinor(amount decimal.Decimal, currency string) int64 {
	exponent := int32(2)
	if zeroDecimalCurrencies[currency] {
		exponent = 0
	}
	return amount.Shift(exponent).Round(0).IntPart()
}

// Date truncates to a calendar date in UTC with no time component.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Candidate canonicalizes the vendor name of a ledger transaction using
// the same rules applied to documents.
func Candidate(c *model.CandidateTransaction) (string, []string) {
	return Vendor(c.VendorName)
}
