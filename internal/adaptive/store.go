// Package adaptive owns the versioned adaptive model: the process-wide
// current snapshot, the correction learner, and feature reweighting.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

// Store holds the current model pointer. Readers take an immutable
// snapshot; only the learner publishes new versions, and publication is
// atomic: a version becomes current only after it is fully persisted.
type Store struct {
	storage service.Storage
	current *model.AdaptiveModel
	mu      sync.RWMutex
}

// NewStore creates a model store backed by the given storage.
func NewStore(storage service.Storage) *Store {
	return &Store{storage: storage}
}

// Load initializes the current pointer from the latest persisted model,
// bootstrapping version 1 with default weights on first run.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.storage.GetCurrentModelVersion(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
		initial := model.NewAdaptiveModel()
		if saveErr := s.storage.SaveModelVersion(ctx, initial); saveErr != nil {
			return fmt.Errorf("failed to persist initial model: %w", saveErr)
		}
		if ptrErr := s.storage.SetCurrentModelVersion(ctx, initial.Version); ptrErr != nil {
			return fmt.Errorf("failed to set initial model pointer: %w", ptrErr)
		}
		s.current = initial
		slog.Info("Bootstrapped adaptive model", "version", initial.Version)
		return nil
	case err != nil:
		return fmt.Errorf("failed to read current model version: %w", err)
	}

	m, err := s.storage.GetModelVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to load model version %d: %w", version, err)
	}

	s.current = m
	slog.Info("Loaded adaptive model", "version", m.Version, "priors", len(m.Priors))
	return nil
}

// Snapshot returns the current model. The returned model is immutable;
// matches in flight keep scoring with the snapshot they started with even
// if a new version is published meanwhile.
func (s *Store) Snapshot() *model.AdaptiveModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish persists a fully-computed model version, advances the current
// pointer and marks the corrections it folded, in one storage
// transaction. The in-memory pointer only moves after the commit, so a
// failed publish leaves both the model and the corrections untouched
// and a retry folds the same batch once. Called only from the learner's
// single-writer path.
func (s *Store) Publish(ctx context.Context, m *model.AdaptiveModel, appliedCorrectionIDs []string) error {
	if err := m.Weights.Validate(); err != nil {
		return fmt.Errorf("refusing to publish model %d: %w", m.Version, err)
	}

	if err := s.storage.PublishModelVersion(ctx, m, appliedCorrectionIDs); err != nil {
		return fmt.Errorf("failed to publish model version %d: %w", m.Version, err)
	}

	s.mu.Lock()
	s.current = m
	s.mu.Unlock()

	slog.Info("Published adaptive model",
		"version", m.Version,
		"priors", len(m.Priors),
		"corrections_folded", m.CorrectionCount)
	return nil
}

// Rollback repoints the current model to an earlier retained version.
// Nothing is deleted; the newer versions stay in history.
func (s *Store) Rollback(ctx context.Context, version int64) error {
	m, err := s.storage.GetModelVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("cannot roll back to version %d: %w", version, err)
	}

	if err := s.storage.SetCurrentModelVersion(ctx, m.Version); err != nil {
		return fmt.Errorf("failed to repoint model to %d: %w", version, err)
	}

	s.mu.Lock()
	s.current = m
	s.mu.Unlock()

	slog.Info("Rolled back adaptive model", "version", version)
	return nil
}
