package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
)

// priorEntry is the JSON wire form of one learned (vendor, category)
// weight. A map keyed by struct cannot round-trip through JSON directly.
type priorEntry struct {
	Vendor   string  `json:"vendor"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// SaveModelVersion persists a fully-computed model version. Versions are
// immutable: inserting an existing version is an error, never an update.
func (s *SQLiteStorage) SaveModelVersion(ctx context.Context, m *model.AdaptiveModel) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return insertModelVersion(ctx, s.db, m)
}

// PublishModelVersion persists a model version, advances the current
// pointer and stamps the corrections it folded, all in one transaction.
// Either the new version becomes current with its corrections marked
// applied, or nothing changes and every correction stays foldable.
func (s *SQLiteStorage) PublishModelVersion(ctx context.Context, m *model.AdaptiveModel, appliedCorrectionIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertModelVersion(ctx, tx, m); err != nil {
			return err
		}
		if err := repointCurrentModel(ctx, tx, m.Version); err != nil {
			return err
		}
		return markCorrectionsApplied(ctx, tx, appliedCorrectionIDs, m.Version)
	})
}

func insertModelVersion(ctx context.Context, q querier, m *model.AdaptiveModel) error {
	if m == nil || m.Version <= 0 {
		return fmt.Errorf("%w: model with positive version is required", ErrInvalidInput)
	}

	weights, err := json.Marshal(m.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	entries := make([]priorEntry, 0, len(m.Priors))
	for k, v := range m.Priors {
		entries = append(entries, priorEntry{Vendor: k.Vendor, Category: k.Category, Weight: v})
	}
	priors, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode priors: %w", err)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO model_versions (version, weights, priors, correction_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.Version, string(weights), string(priors), m.CorrectionCount, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save model version %d: %w", m.Version, err)
	}
	return nil
}

// GetModelVersion loads one model version in full.
func (s *SQLiteStorage) GetModelVersion(ctx context.Context, version int64) (*model.AdaptiveModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT version, weights, priors, correction_count, created_at
		FROM model_versions WHERE version = ?
	`, version)

	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: model version %d", common.ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model version: %w", err)
	}
	return m, nil
}

// ListModelVersions returns every retained model version, newest first.
func (s *SQLiteStorage) ListModelVersions(ctx context.Context) ([]model.AdaptiveModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, weights, priors, correction_count, created_at
		FROM model_versions ORDER BY version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var models []model.AdaptiveModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		models = append(models, *m)
	}
	return models, rows.Err()
}

// GetCurrentModelVersion returns the version the current pointer names.
func (s *SQLiteStorage) GetCurrentModelVersion(ctx context.Context) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM model_current WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: no current model", common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read current model version: %w", err)
	}
	return version, nil
}

// SetCurrentModelVersion atomically repoints the current model. The
// referenced version must already be fully persisted.
func (s *SQLiteStorage) SetCurrentModelVersion(ctx context.Context, version int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return repointCurrentModel(ctx, tx, version)
	})
}

func repointCurrentModel(ctx context.Context, q querier, version int64) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM model_versions WHERE version = ?)`, version).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check model version: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: model version %d", common.ErrNotFound, version)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO model_current (id, version, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
	`, version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set current model version: %w", err)
	}
	return nil
}

func scanModel(row rowScanner) (*model.AdaptiveModel, error) {
	var m model.AdaptiveModel
	var weights, priors string

	if err := row.Scan(&m.Version, &weights, &priors, &m.CorrectionCount, &m.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(weights), &m.Weights); err != nil {
		return nil, fmt.Errorf("%w: stored weights are not valid JSON", common.ErrDatabaseCorrupted)
	}

	var entries []priorEntry
	if err := json.Unmarshal([]byte(priors), &entries); err != nil {
		return nil, fmt.Errorf("%w: stored priors are not valid JSON", common.ErrDatabaseCorrupted)
	}
	m.Priors = make(map[model.PriorKey]float64, len(entries))
	for _, e := range entries {
		m.Priors[model.PriorKey{Vendor: e.Vendor, Category: e.Category}] = e.Weight
	}

	return &m, nil
}
