package adaptive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

func seedReviewedDocument(t *testing.T, db service.Storage, docID, vendor, predicted string) *model.MatchResult {
	t.Helper()
	ctx := context.Background()

	v := vendor
	doc := &model.ExtractedDocument{
		ID:         docID,
		EmailID:    "email-" + docID,
		VendorName: &v,
		Currency:   "USD",
		Status:     model.StatusNeedsReview,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.SaveDocument(ctx, doc))

	one := 1.0
	result := &model.MatchResult{
		ID:         "mr-" + docID,
		DocumentID: docID,
		Decision:   model.DecisionNeedsReview,
		Rankings: model.CandidateScores{{
			CandidateID:      "cand-" + docID,
			Category:         predicted,
			Score:            0.8,
			DateDistanceDays: 2,
			Breakdown:        model.ScoreBreakdown{VendorSimilarity: &one, AmountCloseness: &one},
		}},
		ModelVersion: 1,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.SaveMatchResult(ctx, result))
	return result
}

func seedCorrection(t *testing.T, db service.Storage, result *model.MatchResult, predicted, confirmed string) *model.Correction {
	t.Helper()

	c := &model.Correction{
		ID:                fmt.Sprintf("corr-%s-%s", result.ID, confirmed),
		DocumentID:        result.DocumentID,
		MatchResultID:     result.ID,
		PredictedCategory: predicted,
		ConfirmedCategory: confirmed,
		CorrectedBy:       "reviewer",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.SaveCorrection(context.Background(), c))
	return c
}

func TestLearner_ConfirmationReinforcesPrior(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	store := NewStore(db)
	require.NoError(t, store.Load(ctx))

	result := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, result, "Office Supplies", "Office Supplies")

	learner := NewLearner(store, db, DefaultLearnerConfig())
	next, err := learner.Apply(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, int64(1), next.CorrectionCount)
	assert.InDelta(t, 0.1, next.Prior("acme corp", "Office Supplies"), 1e-9)

	// The published version is what new snapshots see.
	assert.Equal(t, int64(2), store.Snapshot().Version)
}

func TestLearner_OverrideMovesMassBetweenCategories(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	store := NewStore(db)
	require.NoError(t, store.Load(ctx))

	r1 := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, r1, "Office Supplies", "Office Supplies")
	r2 := seedReviewedDocument(t, db, "doc-2", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, r2, "Office Supplies", "Software")

	learner := NewLearner(store, db, DefaultLearnerConfig())
	next, err := learner.Apply(ctx)
	require.NoError(t, err)

	// Confirmation raised the pairing to 0.1, the later override decayed it.
	assert.InDelta(t, 0.09, next.Prior("acme corp", "Office Supplies"), 1e-9)
	assert.InDelta(t, 0.1, next.Prior("acme corp", "Software"), 1e-9)
}

func TestLearner_CorrectionsFoldExactlyOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	store := NewStore(db)
	require.NoError(t, store.Load(ctx))

	result := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, result, "Office Supplies", "Office Supplies")

	learner := NewLearner(store, db, DefaultLearnerConfig())

	first, err := learner.Apply(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), first.Version)

	// Re-applying with nothing new returns the same version unchanged.
	second, err := learner.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.InDelta(t, 0.1, second.Prior("acme corp", "Office Supplies"), 1e-9)

	unapplied, err := db.GetUnappliedCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

// flakyPublishStorage fails the first publish attempt, simulating a
// crash between computing a version and committing it.
type flakyPublishStorage struct {
	service.Storage
	failures int
}

func (f *flakyPublishStorage) PublishModelVersion(ctx context.Context, m *model.AdaptiveModel, appliedCorrectionIDs []string) error {
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("disk full")
	}
	return f.Storage.PublishModelVersion(ctx, m, appliedCorrectionIDs)
}

func TestLearner_FailedPublishLeavesCorrectionsFoldable(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	flaky := &flakyPublishStorage{Storage: db, failures: 1}

	store := NewStore(flaky)
	require.NoError(t, store.Load(ctx))

	result := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, result, "Office Supplies", "Office Supplies")

	learner := NewLearner(store, flaky, DefaultLearnerConfig())

	// First attempt dies mid-publish: no new version, nothing marked.
	_, err := learner.Apply(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(1), store.Snapshot().Version)

	unapplied, err := db.GetUnappliedCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, unapplied, 1)

	// The retry folds the same correction exactly once.
	next, err := learner.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, int64(1), next.CorrectionCount)
	assert.InDelta(t, 0.1, next.Prior("acme corp", "Office Supplies"), 1e-9)

	unapplied, err = db.GetUnappliedCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

func TestLearner_StaleModelReferenceIsAuditedNotFatal(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	store := NewStore(db)
	require.NoError(t, store.Load(ctx))

	result := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")

	// Rewrite the result to reference a version that never existed, as if
	// the version had been pruned by an operator.
	stale := *result
	stale.ID = "mr-stale"
	stale.ModelVersion = 999
	require.NoError(t, db.SaveMatchResult(ctx, &stale))
	seedCorrection(t, db, &stale, "Office Supplies", "Office Supplies")

	learner := NewLearner(store, db, DefaultLearnerConfig())
	next, err := learner.Apply(ctx)
	require.NoError(t, err)

	// The correction still applied against the current model.
	assert.InDelta(t, 0.1, next.Prior("acme corp", "Office Supplies"), 1e-9)

	events, err := db.QueryAudit(ctx, service.AuditFilter{Kind: model.AuditStaleModel})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "doc-1", events[0].DocumentID)
}

func TestLearner_ReweightNeedsBothClasses(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	store := NewStore(db)
	require.NoError(t, store.Load(ctx))

	cfg := DefaultLearnerConfig()
	cfg.ReweightEvery = 2

	// Two confirmations, no overrides: reweighting must not move weights.
	r1 := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, r1, "Office Supplies", "Office Supplies")
	r2 := seedReviewedDocument(t, db, "doc-2", "Globex", "Utilities")
	seedCorrection(t, db, r2, "Utilities", "Utilities")

	learner := NewLearner(store, db, cfg)
	next, err := learner.Apply(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.DefaultFeatureWeights(), next.Weights)
}

func TestLearner_ReweightFavorsSeparatingFeatures(t *testing.T) {
	ctx := context.Background()
	db := newTestStorage(t)
	store := NewStore(db)
	require.NoError(t, store.Load(ctx))

	// Confirmed prediction with perfect amount agreement.
	r1 := seedReviewedDocument(t, db, "doc-1", "Acme Corp", "Office Supplies")
	seedCorrection(t, db, r1, "Office Supplies", "Office Supplies")

	// Overridden prediction whose amount sub-score was weak.
	v := "Globex"
	doc := &model.ExtractedDocument{
		ID: "doc-2", EmailID: "email-doc-2", VendorName: &v,
		Currency: "USD", Status: model.StatusNeedsReview, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.SaveDocument(ctx, doc))

	vendorScore, amountScore := 0.9, 0.2
	r2 := &model.MatchResult{
		ID: "mr-doc-2", DocumentID: "doc-2", Decision: model.DecisionNeedsReview,
		Rankings: model.CandidateScores{{
			CandidateID: "cand-2", Category: "Utilities", Score: 0.62, DateDistanceDays: 4,
			Breakdown: model.ScoreBreakdown{VendorSimilarity: &vendorScore, AmountCloseness: &amountScore},
		}},
		ModelVersion: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.SaveMatchResult(ctx, r2))
	seedCorrection(t, db, r2, "Utilities", "Rent")

	cfg := DefaultLearnerConfig()
	cfg.ReweightEvery = 2

	learner := NewLearner(store, db, cfg)
	next, err := learner.Apply(ctx)
	require.NoError(t, err)

	// Amount separated the classes far better than vendor, so its weight
	// climbs above vendor's after renormalization.
	assert.Greater(t, next.Weights.Amount, next.Weights.Vendor)
	assert.InDelta(t, 1.0, next.Weights.Sum(), 1e-9)
}
