package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// SaveCorrection stores a human confirmation or override. Corrections are
// append-only and start unapplied.
func (s *SQLiteStorage) SaveCorrection(ctx context.Context, c *model.Correction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrection(c); err != nil {
		return err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (
			id, document_id, match_result_id, predicted_category,
			confirmed_category, corrected_by, applied_model_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.DocumentID, c.MatchResultID, c.PredictedCategory,
		c.ConfirmedCategory, c.CorrectedBy, c.AppliedModelVersion, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}
	return nil
}

// GetUnappliedCorrections returns the corrections not yet folded into any
// model version, oldest first so folding order is deterministic.
func (s *SQLiteStorage) GetUnappliedCorrections(ctx context.Context) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, match_result_id, predicted_category,
		       confirmed_category, corrected_by, applied_model_version, created_at
		FROM corrections WHERE applied_model_version IS NULL
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unapplied corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectCorrections(rows)
}

// MarkCorrectionsApplied stamps a batch of corrections with the model
// version they produced, guaranteeing no correction is folded twice.
func (s *SQLiteStorage) MarkCorrectionsApplied(ctx context.Context, ids []string, modelVersion int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return markCorrectionsApplied(ctx, s.db, ids, modelVersion)
}

func markCorrectionsApplied(ctx context.Context, q querier, ids []string, modelVersion int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, modelVersion)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := q.ExecContext(ctx,
		`UPDATE corrections SET applied_model_version = ?
		 WHERE id IN (`+placeholders+`) AND applied_model_version IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark corrections applied: %w", err)
	}
	return nil
}

// GetRecentCorrections returns the most recent corrections, applied or
// not, for feature weight recomputation.
func (s *SQLiteStorage) GetRecentCorrections(ctx context.Context, limit int) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, match_result_id, predicted_category,
		       confirmed_category, corrected_by, applied_model_version, created_at
		FROM corrections ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectCorrections(rows)
}

func collectCorrections(rows *sql.Rows) ([]model.Correction, error) {
	var corrections []model.Correction
	for rows.Next() {
		var c model.Correction
		var applied sql.NullInt64
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.MatchResultID, &c.PredictedCategory,
			&c.ConfirmedCategory, &c.CorrectedBy, &applied, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		if applied.Valid {
			c.AppliedModelVersion = &applied.Int64
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}
