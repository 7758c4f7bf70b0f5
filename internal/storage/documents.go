package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

const documentColumns = `id, email_id, vendor_name, amount, currency, document_date,
	invoice_number, raw_text, conf_vendor, conf_amount, conf_date, conf_invoice,
	status, created_at`

// SaveDocument stores an inbound document. Documents are immutable after
// creation except for their status tag, so a conflicting id is an error.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *model.ExtractedDocument) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = model.StatusPending
	}

	var amount *string
	if doc.Amount != nil {
		str := doc.Amount.String()
		amount = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, email_id, vendor_name, amount, currency, document_date,
			invoice_number, raw_text, conf_vendor, conf_amount, conf_date,
			conf_invoice, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID, doc.EmailID, doc.VendorName, amount, doc.Currency,
		doc.DocumentDate, doc.InvoiceNumber, doc.RawText,
		doc.Confidence.Vendor, doc.Confidence.Amount, doc.Confidence.Date,
		doc.Confidence.Invoice, string(doc.Status), doc.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: document %s or email %s already stored", common.ErrDuplicateEntry, doc.ID, doc.EmailID)
		}
		return fmt.Errorf("failed to save document: %w", err)
	}

	return nil
}

// GetDocumentByID fetches a single document.
func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, id string) (*model.ExtractedDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetDocumentsByStatus lists documents in a lifecycle state, oldest
// first. A non-positive limit returns the whole backlog.
func (s *SQLiteStorage) GetDocumentsByStatus(ctx context.Context, status model.DocumentStatus, limit int) ([]model.ExtractedDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectDocuments(rows)
}

// SearchDocuments queries documents by vendor, invoice, status and date range.
func (s *SQLiteStorage) SearchDocuments(ctx context.Context, filter service.DocumentFilter) ([]model.ExtractedDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any

	if filter.Vendor != "" {
		query += ` AND vendor_name LIKE ?`
		args = append(args, "%"+filter.Vendor+"%")
	}
	if filter.Invoice != "" {
		query += ` AND invoice_number = ?`
		args = append(args, filter.Invoice)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.StartDate != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND created_at <= ?`
		args = append(args, *filter.EndDate)
	}

	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectDocuments(rows)
}

// UpdateDocumentStatus advances a document through its lifecycle.
func (s *SQLiteStorage) UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	return nil
}

// ClaimDuplicateKey records the document's normalized (vendor, amount,
// currency, invoice) key and returns the earliest other claimant dated
// inside the window. Claim and lookup run in one transaction, so of two
// documents matched concurrently with the same key exactly one sees the
// other: the first claimant wins and the later one is reported its
// predecessor. Documents already ruled out (no-match, rejected) do not
// count as claimants. Documents without an extracted date fall back to
// their ingestion time.
func (s *SQLiteStorage) ClaimDuplicateKey(ctx context.Context, id, key string, start, end time.Time) (*model.ExtractedDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}

	var doc *model.ExtractedDocument
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET duplicate_key = ? WHERE id = ?`, key, id); err != nil {
			return fmt.Errorf("failed to claim duplicate key: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+documentColumns+` FROM documents
			WHERE duplicate_key = ? AND id != ?
			  AND status NOT IN (?, ?)
			  AND COALESCE(document_date, created_at) BETWEEN ? AND ?
			ORDER BY created_at, id LIMIT 1
		`, key, id, string(model.StatusNoMatch), string(model.StatusRejected), start, end)

		d, err := scanDocument(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find duplicate: %w", err)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: no duplicate for key", common.ErrNotFound)
	}
	return doc, nil
}

// CountDocumentsByStatus returns document counts grouped by status.
func (s *SQLiteStorage) CountDocumentsByStatus(ctx context.Context) (map[model.DocumentStatus]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.DocumentStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[model.DocumentStatus(status)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.ExtractedDocument, error) {
	var doc model.ExtractedDocument
	var amount sql.NullString
	var vendor, invoice sql.NullString
	var docDate sql.NullTime
	var status string

	err := row.Scan(
		&doc.ID, &doc.EmailID, &vendor, &amount, &doc.Currency, &docDate,
		&invoice, &doc.RawText, &doc.Confidence.Vendor, &doc.Confidence.Amount,
		&doc.Confidence.Date, &doc.Confidence.Invoice, &status, &doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = model.DocumentStatus(status)
	if vendor.Valid {
		doc.VendorName = &vendor.String
	}
	if invoice.Valid {
		doc.InvoiceNumber = &invoice.String
	}
	if docDate.Valid {
		doc.DocumentDate = &docDate.Time
	}
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("%w: stored amount %q is not decimal", common.ErrDatabaseCorrupted, amount.String)
		}
		doc.Amount = &d
	}

	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]model.ExtractedDocument, error) {
	var docs []model.ExtractedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}
