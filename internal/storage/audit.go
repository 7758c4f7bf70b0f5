package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

// AppendAudit writes one immutable audit entry. The database assigns the
// monotonic sequence number, so concurrent writers cannot produce
// ambiguous ordering even with identical timestamps. Entries are never
// updated or deleted.
func (s *SQLiteStorage) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil || entry.Kind == "" {
		return fmt.Errorf("%w: audit entry with kind is required", ErrInvalidInput)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (document_id, kind, decision, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.DocumentID, string(entry.Kind), string(entry.Decision), entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read audit sequence: %w", err)
	}
	entry.Sequence = seq
	return nil
}

// QueryAudit returns audit entries for review tooling, filtered by
// document, date range and decision kind, in sequence order.
func (s *SQLiteStorage) QueryAudit(ctx context.Context, filter service.AuditFilter) ([]model.AuditEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end %v is before start %v", ErrInvalidDateRange, filter.EndDate, filter.StartDate)
	}

	query := `SELECT seq, document_id, kind, decision, detail, created_at FROM audit_log WHERE 1=1`
	var args []any

	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(filter.Decision))
	}
	if filter.StartDate != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND created_at <= ?`
		args = append(args, *filter.EndDate)
	}

	query += ` ORDER BY seq`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var kind, decision string
		if err := rows.Scan(&e.Sequence, &e.DocumentID, &kind, &decision, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Kind = model.AuditKind(kind)
		e.Decision = model.Decision(decision)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
