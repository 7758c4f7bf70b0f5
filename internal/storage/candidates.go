package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

// SaveCandidates upserts a batch of ledger transactions into the local
// candidate pool snapshot. Re-importing the same export is idempotent.
func (s *SQLiteStorage) SaveCandidates(ctx context.Context, candidates []model.CandidateTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candidates (
				id, vendor_name, amount, currency, transaction_date,
				category, account_id, invoice_ref, imported_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				vendor_name = excluded.vendor_name,
				amount = excluded.amount,
				currency = excluded.currency,
				transaction_date = excluded.transaction_date,
				category = excluded.category,
				account_id = excluded.account_id,
				invoice_ref = excluded.invoice_ref,
				imported_at = excluded.imported_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare candidate insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for i := range candidates {
			c := &candidates[i]
			if c.ID == "" {
				return fmt.Errorf("%w: candidate at index %d has no id", ErrInvalidInput, i)
			}
			importedAt := c.ImportedAt
			if importedAt.IsZero() {
				importedAt = now
			}
			if _, err := stmt.ExecContext(ctx,
				c.ID, c.VendorName, c.Amount.String(), c.Currency,
				c.Date, c.Category, c.AccountID, c.InvoiceRef, importedAt,
			); err != nil {
				return fmt.Errorf("failed to save candidate %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetCandidates returns the candidate pool for a matching window.
func (s *SQLiteStorage) GetCandidates(ctx context.Context, filter service.CandidateFilter) ([]model.CandidateTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, vendor_name, amount, currency, transaction_date,
		       category, account_id, invoice_ref, imported_at
		FROM candidates WHERE 1=1`
	var args []any

	if filter.StartDate != nil {
		query += ` AND transaction_date >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND transaction_date <= ?`
		args = append(args, *filter.EndDate)
	}
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}

	query += ` ORDER BY transaction_date, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []model.CandidateTransaction
	for rows.Next() {
		var c model.CandidateTransaction
		var amount string
		if err := rows.Scan(
			&c.ID, &c.VendorName, &amount, &c.Currency, &c.Date,
			&c.Category, &c.AccountID, &c.InvoiceRef, &c.ImportedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: stored candidate amount %q is not decimal", common.ErrDatabaseCorrupted, amount)
		}
		c.Amount = d
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
