package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

func TestAmounts(t *testing.T) {
	t.Run("dollar amounts largest first", func(t *testing.T) {
		text := "Subtotal: $1,150.00\nTax: $100.00\nTotal Due: $1,250.00"
		amounts := Amounts(text)

		require.NotEmpty(t, amounts)
		assert.True(t, amounts[0].Equal(decimal.RequireFromString("1250.00")),
			"want 1250.00 first, got %s", amounts[0])
	})

	t.Run("thousands separators stripped", func(t *testing.T) {
		amounts := Amounts("Amount: $12,345.67")
		require.NotEmpty(t, amounts)
		assert.True(t, amounts[0].Equal(decimal.RequireFromString("12345.67")))
	})

	t.Run("duplicates collapsed", func(t *testing.T) {
		amounts := Amounts("Total $500.00 ... pay $500.00 now")
		assert.Len(t, amounts, 1)
	})

	t.Run("noise bounds", func(t *testing.T) {
		assert.Empty(t, Amounts("balance $0.00"))
		assert.Empty(t, Amounts("no amounts here"))
	})
}

func TestDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"slash format", "Invoice date: 1/15/2026", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"iso format", "Date: 2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"long month", "Issued January 15, 2026", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"short month", "Due Feb 1 2026", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"case-insensitive month", "issued JANUARY 15, 2026", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := Dates(tt.text)
			require.NotEmpty(t, dates)
			assert.Equal(t, tt.want, dates[0])
		})
	}

	t.Run("no dates", func(t *testing.T) {
		assert.Empty(t, Dates("nothing dated in here"))
	})
}

func TestInvoiceNumbers(t *testing.T) {
	t.Run("labeled invoice", func(t *testing.T) {
		nums := InvoiceNumbers("Invoice #: INV-2026-001234")
		require.NotEmpty(t, nums)
		assert.Equal(t, "INV-2026-001234", nums[0])
	})

	t.Run("bare reference pattern", func(t *testing.T) {
		nums := InvoiceNumbers("see ACME-2026-0042 for details")
		require.NotEmpty(t, nums)
		assert.Equal(t, "ACME-2026-0042", nums[0])
	})

	t.Run("bill number", func(t *testing.T) {
		nums := InvoiceNumbers("Bill #: B2026-0099")
		require.NotEmpty(t, nums)
		assert.Equal(t, "B2026-0099", nums[0])
	})

	t.Run("short tokens rejected", func(t *testing.T) {
		assert.Empty(t, InvoiceNumbers("Invoice no: AB1"))
	})
}

func TestEnrich(t *testing.T) {
	t.Run("recovers absent fields at fallback confidence", func(t *testing.T) {
		doc := &model.ExtractedDocument{
			ID:      "doc-1",
			EmailID: "email-1",
			RawText: "Invoice #: INV-2026-001234\nDate: 2026-01-15\nTotal Due: $1,250.00",
		}

		Enrich(doc)

		require.NotNil(t, doc.Amount)
		assert.True(t, doc.Amount.Equal(decimal.RequireFromString("1250.00")))
		assert.Equal(t, FallbackConfidence, doc.Confidence.Amount)
		assert.Equal(t, "USD", doc.Currency)

		require.NotNil(t, doc.DocumentDate)
		assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), *doc.DocumentDate)
		assert.Equal(t, FallbackConfidence, doc.Confidence.Date)

		require.NotNil(t, doc.InvoiceNumber)
		assert.Equal(t, "INV-2026-001234", *doc.InvoiceNumber)
	})

	t.Run("never overwrites structured fields", func(t *testing.T) {
		amount := decimal.RequireFromString("999.99")
		doc := &model.ExtractedDocument{
			ID:         "doc-2",
			EmailID:    "email-2",
			Amount:     &amount,
			Currency:   "EUR",
			Confidence: model.FieldConfidence{Amount: 0.95},
			RawText:    "Total Due: $1,250.00",
		}

		Enrich(doc)

		assert.True(t, doc.Amount.Equal(amount))
		assert.Equal(t, 0.95, doc.Confidence.Amount)
		assert.Equal(t, "EUR", doc.Currency)
	})

	t.Run("empty raw text is a no-op", func(t *testing.T) {
		doc := &model.ExtractedDocument{ID: "doc-3", EmailID: "email-3"}
		Enrich(doc)
		assert.Nil(t, doc.Amount)
		assert.Nil(t, doc.DocumentDate)
		assert.Nil(t, doc.InvoiceNumber)
	})
}
