// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus tracks where a document sits in the matching lifecycle.
type DocumentStatus string

// Document status constants.
const (
	StatusPending     DocumentStatus = "PENDING"
	StatusMatched     DocumentStatus = "MATCHED"
	StatusNeedsReview DocumentStatus = "NEEDS_REVIEW"
	StatusNoMatch     DocumentStatus = "NO_MATCH"
	StatusRejected    DocumentStatus = "REJECTED"
)

// FieldConfidence holds per-field extraction confidence in [0, 1].
type FieldConfidence struct {
	Vendor  float64
	Amount  float64
	Date    float64
	Invoice float64
}

// ExtractedDocument is a single inbound document after text extraction.
// Fields are pointers because extraction routinely fails to find them;
// an absent field must stay absent rather than decay to a zero value.
type ExtractedDocument struct {
	CreatedAt     time.Time
	DocumentDate  *time.Time
	Amount        *decimal.Decimal
	VendorName    *string
	InvoiceNumber *string
	ID            string
	EmailID       string
	Currency      string
	RawText       string
	Status        DocumentStatus
	Confidence    FieldConfidence
}

// Completeness returns the fraction of the four key fields that were
// extracted. Used as a document-level quality signal, not for matching.
func (d *ExtractedDocument) Completeness() float64 {
	found := 0
	if d.VendorName != nil {
		found++
	}
	if d.Amount != nil {
		found++
	}
	if d.DocumentDate != nil {
		found++
	}
	if d.InvoiceNumber != nil {
		found++
	}
	return float64(found) / 4.0
}

// NormalizedDocument is the canonical form of an ExtractedDocument used
// for scoring. All fields are comparable directly; absent stays absent.
type NormalizedDocument struct {
	Date         *time.Time
	AmountMinor  *int64
	Vendor       *string
	Invoice      *string
	DocumentID   string
	Currency     string
	VendorTokens []string
}

// MissingFields names the score features this document cannot supply.
// An empty result means every feature participates in scoring.
func (n *NormalizedDocument) MissingFields() []string {
	var missing []string
	if n.Vendor == nil {
		missing = append(missing, FeatureVendor)
	}
	if n.AmountMinor == nil {
		missing = append(missing, FeatureAmount)
	}
	if n.Date == nil {
		missing = append(missing, FeatureDate)
	}
	if n.Invoice == nil {
		missing = append(missing, FeatureInvoice)
	}
	return missing
}

// DuplicateKey produces a stable hash over (vendor, amount, currency,
// invoice number) for duplicate detection. Returns false when the document
// lacks enough fields for the tuple to be meaningful.
func (n *NormalizedDocument) DuplicateKey() (string, bool) {
	if n.Vendor == nil || n.AmountMinor == nil || n.Invoice == nil {
		return "", false
	}
	data := fmt.Sprintf("%s:%s:%s:%s",
		*n.Vendor,
		strconv.FormatInt(*n.AmountMinor, 10),
		n.Currency,
		*n.Invoice)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash), true
}
