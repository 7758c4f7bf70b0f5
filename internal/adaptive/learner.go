package adaptive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/normalize"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

// LearnerConfig holds the tunable learning parameters.
type LearnerConfig struct {
	// Rate is the EMA step applied to (vendor, category) priors.
	Rate float64
	// ReweightEvery triggers a global feature weight recomputation after
	// this many folded corrections.
	ReweightEvery int64
	// RecentWindow bounds how many recent corrections feed reweighting.
	RecentWindow int
}

// DefaultLearnerConfig returns the default learning configuration.
func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		Rate:          0.1,
		ReweightEvery: 20,
		RecentWindow:  100,
	}
}

// Learner folds human corrections into new model versions. It is the
// single writer for the model store: concurrent Apply calls serialize on
// the mutex, so two correction batches can never interleave into an
// inconsistent model.
type Learner struct {
	store   *Store
	storage service.Storage
	cfg     LearnerConfig
	mu      sync.Mutex
}

// NewLearner creates a correction learner.
func NewLearner(store *Store, storage service.Storage, cfg LearnerConfig) *Learner {
	if cfg.Rate <= 0 || cfg.Rate >= 1 {
		cfg.Rate = DefaultLearnerConfig().Rate
	}
	if cfg.ReweightEvery <= 0 {
		cfg.ReweightEvery = DefaultLearnerConfig().ReweightEvery
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultLearnerConfig().RecentWindow
	}
	return &Learner{store: store, storage: storage, cfg: cfg}
}

// Apply folds every unapplied correction into a new model version and
// publishes it. Each correction is folded exactly once: the set applied
// here is marked with the version it produced. With nothing to fold the
// current model is returned unchanged.
func (l *Learner) Apply(ctx context.Context) (*model.AdaptiveModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	corrections, err := l.storage.GetUnappliedCorrections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unapplied corrections: %w", err)
	}
	if len(corrections) == 0 {
		return l.store.Snapshot(), nil
	}

	next := l.store.Snapshot().Clone()
	reweightDue := false

	ids := make([]string, 0, len(corrections))
	for i := range corrections {
		c := &corrections[i]
		if err := l.fold(ctx, next, c); err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)

		next.CorrectionCount++
		if next.CorrectionCount%l.cfg.ReweightEvery == 0 {
			reweightDue = true
		}
	}

	if reweightDue {
		if err := l.reweight(ctx, next); err != nil {
			return nil, err
		}
	}

	// Publishing and stamping the folded batch commit together; a failure
	// here leaves every correction unapplied for the next attempt.
	if err := l.store.Publish(ctx, next, ids); err != nil {
		return nil, err
	}

	detail, _ := json.Marshal(map[string]any{
		"version":     next.Version,
		"corrections": len(ids),
		"reweighted":  reweightDue,
	})
	if err := l.storage.AppendAudit(ctx, &model.AuditEntry{
		Kind:      model.AuditModelUpdate,
		Detail:    string(detail),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to record model update: %w", err)
	}

	return next, nil
}

// fold applies one correction's prior updates to the in-progress model.
func (l *Learner) fold(ctx context.Context, next *model.AdaptiveModel, c *model.Correction) error {
	vendor, err := l.correctionVendor(ctx, c)
	if err != nil {
		return err
	}
	if vendor == "" {
		// No vendor, no pairing to learn. The correction is still marked
		// applied so it is never revisited.
		slog.Debug("Correction has no vendor to learn from", "correction", c.ID)
		return nil
	}

	alpha := l.cfg.Rate
	confirmedKey := model.PriorKey{Vendor: vendor, Category: c.ConfirmedCategory}

	if c.Confirmed() {
		p := next.Priors[confirmedKey]
		next.Priors[confirmedKey] = p + alpha*(1.0-p)
		return nil
	}

	// The human overrode the prediction: punish the wrong pairing and
	// reinforce the confirmed one.
	wrongKey := model.PriorKey{Vendor: vendor, Category: c.PredictedCategory}
	if p, ok := next.Priors[wrongKey]; ok {
		next.Priors[wrongKey] = p - alpha*p
	}
	p := next.Priors[confirmedKey]
	next.Priors[confirmedKey] = p + alpha*(1.0-p)
	return nil
}

// correctionVendor resolves the normalized vendor for a correction's
// document, reporting stale model references as typed audit events rather
// than failing: such corrections apply against the current model directly.
func (l *Learner) correctionVendor(ctx context.Context, c *model.Correction) (string, error) {
	result, err := l.storage.GetMatchResultByID(ctx, c.MatchResultID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		// Tolerated; fall through to the document lookup.
	case err != nil:
		return "", fmt.Errorf("failed to load match result %s: %w", c.MatchResultID, err)
	default:
		if _, verr := l.storage.GetModelVersion(ctx, result.ModelVersion); errors.Is(verr, common.ErrNotFound) {
			slog.Warn("Correction references a retired model version, applying against current",
				"correction", c.ID,
				"model_version", result.ModelVersion)
			detail, _ := json.Marshal(map[string]any{
				"error":         common.ErrStaleModel.Error(),
				"correction":    c.ID,
				"model_version": result.ModelVersion,
			})
			if aerr := l.storage.AppendAudit(ctx, &model.AuditEntry{
				DocumentID: c.DocumentID,
				Kind:       model.AuditStaleModel,
				Detail:     string(detail),
				CreatedAt:  time.Now().UTC(),
			}); aerr != nil {
				return "", fmt.Errorf("failed to record stale model event: %w", aerr)
			}
		}
	}

	doc, err := l.storage.GetDocumentByID(ctx, c.DocumentID)
	if err != nil {
		return "", fmt.Errorf("failed to load document %s: %w", c.DocumentID, err)
	}
	if doc.VendorName == nil {
		return "", nil
	}

	canonical, _ := normalize.Vendor(*doc.VendorName)
	return canonical, nil
}
