package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandidateTransaction is a read-only snapshot of a ledger transaction
// pulled from the accounting system at match time. This core never writes
// it back.
type CandidateTransaction struct {
	Date       time.Time
	ImportedAt time.Time
	ID         string
	VendorName string
	Currency   string
	Category   string
	AccountID  string
	// InvoiceRef is the reference or check number carried by the ledger
	// export, when one exists. Most exports leave it empty.
	InvoiceRef string
	Amount     decimal.Decimal
}
