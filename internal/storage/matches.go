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

// SaveMatchResult appends a match attempt. Results are never updated: a
// re-run inserts a new row superseding older ones by timestamp.
func (s *SQLiteStorage) SaveMatchResult(ctx context.Context, result *model.MatchResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMatchResult(result); err != nil {
		return err
	}

	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	rankings, err := json.Marshal(result.Rankings)
	if err != nil {
		return fmt.Errorf("failed to encode rankings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_results (
			id, document_id, decision, chosen_candidate_id,
			chosen_category, model_version, rankings, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID, result.DocumentID, string(result.Decision),
		result.ChosenCandidateID, result.ChosenCategory,
		result.ModelVersion, string(rankings), result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save match result: %w", err)
	}
	return nil
}

// GetMatchResultByID fetches one match attempt.
func (s *SQLiteStorage) GetMatchResultByID(ctx context.Context, id string) (*model.MatchResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, decision, chosen_candidate_id,
		       chosen_category, model_version, rankings, created_at
		FROM match_results WHERE id = ?
	`, id)

	result, err := scanMatchResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: match result %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match result: %w", err)
	}
	return result, nil
}

// GetMatchResultsByDocument lists all match attempts for a document,
// newest first.
func (s *SQLiteStorage) GetMatchResultsByDocument(ctx context.Context, documentID string) ([]model.MatchResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, decision, chosen_candidate_id,
		       chosen_category, model_version, rankings, created_at
		FROM match_results WHERE document_id = ?
		ORDER BY created_at DESC, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.MatchResult
	for rows.Next() {
		result, err := scanMatchResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match result: %w", err)
		}
		results = append(results, *result)
	}
	return results, rows.Err()
}

// GetLatestMatchResult returns the most recent match attempt for a
// document, the one that currently speaks for it.
func (s *SQLiteStorage) GetLatestMatchResult(ctx context.Context, documentID string) (*model.MatchResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, decision, chosen_candidate_id,
		       chosen_category, model_version, rankings, created_at
		FROM match_results WHERE document_id = ?
		ORDER BY created_at DESC, id LIMIT 1
	`, documentID)

	result, err := scanMatchResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no match results for document %s", common.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest match result: %w", err)
	}
	return result, nil
}

// CountMatchResultsSince reports matching throughput: the number of match
// attempts recorded at or after the given instant.
func (s *SQLiteStorage) CountMatchResultsSince(ctx context.Context, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_results WHERE created_at >= ?`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count match results: %w", err)
	}
	return n, nil
}

func scanMatchResult(row rowScanner) (*model.MatchResult, error) {
	var result model.MatchResult
	var decision, rankings string
	var chosenID, chosenCategory sql.NullString

	err := row.Scan(
		&result.ID, &result.DocumentID, &decision, &chosenID,
		&chosenCategory, &result.ModelVersion, &rankings, &result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.Decision = model.Decision(decision)
	if chosenID.Valid {
		result.ChosenCandidateID = &chosenID.String
	}
	if chosenCategory.Valid {
		result.ChosenCategory = &chosenCategory.String
	}
	if err := json.Unmarshal([]byte(rankings), &result.Rankings); err != nil {
		return nil, fmt.Errorf("%w: stored rankings are not valid JSON", common.ErrDatabaseCorrupted)
	}

	return &result, nil
}
