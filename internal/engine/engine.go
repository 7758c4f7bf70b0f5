// Package engine orchestrates document matching: normalization, scoring,
// decisioning, duplicate detection and audit recording.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/ledgerlink/internal/adaptive"
	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/match"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/normalize"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

// Config holds configuration options for the matching engine.
type Config struct {
	Match   match.Config
	Workers int
	// PoolWindowDays bounds the candidate pool window each side of the
	// document date. Zero means the whole pool.
	PoolWindowDays int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Match:          match.DefaultConfig(),
		Workers:        4,
		PoolWindowDays: 90,
	}
}

// MatchingEngine coordinates matching runs. Matching is read-only against
// the candidate pool and the model snapshot, so documents are processed
// concurrently without locking; each document pins the snapshot current
// when its match starts.
type MatchingEngine struct {
	storage service.Storage
	models  *adaptive.Store
	scorer  *match.Scorer
	policy  *match.Policy
	cfg     Config
}

// New creates a matching engine with the given dependencies.
func New(storage service.Storage, models *adaptive.Store, cfg Config) *MatchingEngine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &MatchingEngine{
		storage: storage,
		models:  models,
		scorer:  match.NewScorer(cfg.Match),
		policy:  match.NewPolicy(cfg.Match),
		cfg:     cfg,
	}
}

// MatchPending matches every pending document. The progress callback, if
// non-nil, is invoked after each document completes.
func (e *MatchingEngine) MatchPending(ctx context.Context, progress func(done, total int)) (*service.MatchStats, error) {
	started := time.Now()

	docs, err := e.storage.GetDocumentsByStatus(ctx, model.StatusPending, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending documents: %w", err)
	}

	stats := &service.MatchStats{TotalDocuments: len(docs)}
	if len(docs) == 0 {
		slog.Info("No pending documents to match")
		stats.Duration = time.Since(started)
		return stats, nil
	}

	slog.Info("Starting matching run", "documents", len(docs), "workers", e.cfg.Workers)

	jobs := make(chan *model.ExtractedDocument)
	var mu sync.Mutex
	done := 0

	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				// A pool failure is worth one more attempt: a concurrent
				// import may land candidates between attempts.
				var result *model.MatchResult
				err := common.WithRetry(ctx, func() error {
					var matchErr error
					result, matchErr = e.matchOne(ctx, doc)
					if matchErr != nil {
						return &common.RetryableError{Err: matchErr, Retryable: common.IsRetryable(matchErr)}
					}
					return nil
				}, common.RetryOptions{
					MaxAttempts:  2,
					InitialDelay: 250 * time.Millisecond,
					MaxDelay:     time.Second,
					Multiplier:   2.0,
				})

				mu.Lock()
				switch {
				case err != nil:
					stats.Failed++
					common.LogError(err, "Document match failed", common.Fields{"document": doc.ID})
				case result.Decision == model.DecisionAutoApprove:
					stats.AutoApproved++
				case result.Decision == model.DecisionNeedsReview:
					stats.NeedsReview++
				default:
					stats.NoMatch++
				}
				done++
				if progress != nil {
					progress(done, len(docs))
				}
				mu.Unlock()
			}
		}()
	}

	for i := range docs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return stats, ctx.Err()
		case jobs <- &docs[i]:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Duration = time.Since(started)
	slog.Info("Matching run complete",
		"auto_approved", stats.AutoApproved,
		"needs_review", stats.NeedsReview,
		"no_match", stats.NoMatch,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return stats, nil
}

// MatchDocument runs a single match attempt for one document. Re-running
// produces a new MatchResult; prior results are never touched.
func (e *MatchingEngine) MatchDocument(ctx context.Context, documentID string) (*model.MatchResult, error) {
	doc, err := e.storage.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return e.matchOne(ctx, doc)
}

func (e *MatchingEngine) matchOne(ctx context.Context, doc *model.ExtractedDocument) (*model.MatchResult, error) {
	// Pin the model snapshot for the whole attempt. A version published
	// mid-match does not affect this document.
	snapshot := e.models.Snapshot()

	pool, err := e.candidatePool(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		if auditErr := e.auditError(ctx, doc.ID, model.AuditEmptyPool, "no candidates in matching window"); auditErr != nil {
			return nil, auditErr
		}
		return nil, fmt.Errorf("%w: document %s", common.ErrInconsistentCandidatePool, doc.ID)
	}

	norm := normalize.Document(doc, e.cfg.Match.ConfidenceFloor)

	scores, err := e.scorer.ScoreAll(norm, pool, snapshot)
	if err != nil {
		if auditErr := e.auditError(ctx, doc.ID, model.AuditEmptyPool, err.Error()); auditErr != nil {
			return nil, auditErr
		}
		return nil, err
	}

	decision, best := e.policy.Decide(scores)

	// An auto-approve for a document whose normalized key already matched
	// is downgraded to review: the same invoice must never bind twice.
	duplicate := false
	if key, ok := norm.DuplicateKey(); ok {
		dup, err := e.claimDuplicate(ctx, key, doc)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			duplicate = true
			if decision == model.DecisionAutoApprove {
				decision = model.DecisionNeedsReview
			}
			detail, _ := json.Marshal(map[string]any{
				"error":           common.ErrDuplicateDocument.Error(),
				"duplicate_of":    dup.ID,
				"original_status": string(dup.Status),
			})
			if err := e.storage.AppendAudit(ctx, &model.AuditEntry{
				DocumentID: doc.ID,
				Kind:       model.AuditDuplicateFlagged,
				Decision:   decision,
				Detail:     string(detail),
				CreatedAt:  time.Now().UTC(),
			}); err != nil {
				return nil, fmt.Errorf("failed to record duplicate flag: %w", err)
			}
		}
	}

	result := &model.MatchResult{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		Rankings:     scores,
		Decision:     decision,
		ModelVersion: snapshot.Version,
		CreatedAt:    time.Now().UTC(),
	}
	if best != nil && decision != model.DecisionNoMatch {
		result.ChosenCandidateID = &best.CandidateID
		category := best.Category
		result.ChosenCategory = &category
	}

	if err := e.storage.SaveMatchResult(ctx, result); err != nil {
		return nil, err
	}
	if err := e.storage.UpdateDocumentStatus(ctx, doc.ID, statusFor(decision)); err != nil {
		return nil, err
	}

	matchDetail := map[string]any{
		"match_result":  result.ID,
		"model_version": snapshot.Version,
		"best_score":    bestScore(best),
		"margin":        scores.Margin(),
		"candidates":    len(scores),
		"duplicate":     duplicate,
	}
	// Features the document could not supply were excluded from scoring;
	// the audit trail names them so the exclusion is visible.
	if missing := norm.MissingFields(); len(missing) > 0 {
		matchDetail["missing_fields"] = missing
	}
	detail, _ := json.Marshal(matchDetail)
	if err := e.storage.AppendAudit(ctx, &model.AuditEntry{
		DocumentID: doc.ID,
		Kind:       model.AuditMatch,
		Decision:   decision,
		Detail:     string(detail),
		CreatedAt:  result.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record match: %w", err)
	}

	slog.Debug("Matched document",
		"document", doc.ID,
		"decision", decision,
		"best_score", bestScore(best),
		"model_version", snapshot.Version)
	return result, nil
}

// candidatePool loads the ledger snapshot for a document, windowed around
// the document date when one exists.
func (e *MatchingEngine) candidatePool(ctx context.Context, doc *model.ExtractedDocument) ([]model.CandidateTransaction, error) {
	filter := service.CandidateFilter{}
	if e.cfg.PoolWindowDays > 0 && doc.DocumentDate != nil {
		window := time.Duration(e.cfg.PoolWindowDays) * 24 * time.Hour
		start := doc.DocumentDate.Add(-window)
		end := doc.DocumentDate.Add(window)
		filter.StartDate = &start
		filter.EndDate = &end
	}

	pool, err := e.storage.GetCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate pool: %w", err)
	}
	return pool, nil
}

// claimDuplicate records the document's key and reports the earliest
// other claimant inside the configured date window. The claim is atomic
// in storage, so two documents racing on the same key never both come
// back clean.
func (e *MatchingEngine) claimDuplicate(ctx context.Context, key string, doc *model.ExtractedDocument) (*model.ExtractedDocument, error) {
	window := time.Duration(e.cfg.Match.DateWindowDays) * 24 * time.Hour
	anchor := doc.CreatedAt
	if doc.DocumentDate != nil {
		anchor = *doc.DocumentDate
	}

	dup, err := e.storage.ClaimDuplicateKey(ctx, doc.ID, key, anchor.Add(-window), anchor.Add(window))
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dup, nil
}

func (e *MatchingEngine) auditError(ctx context.Context, documentID string, kind model.AuditKind, message string) error {
	detail, _ := json.Marshal(map[string]any{"error": message})
	if err := e.storage.AppendAudit(ctx, &model.AuditEntry{
		DocumentID: documentID,
		Kind:       kind,
		Detail:     string(detail),
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record matching error: %w", err)
	}
	return nil
}

func statusFor(decision model.Decision) model.DocumentStatus {
	switch decision {
	case model.DecisionAutoApprove:
		return model.StatusMatched
	case model.DecisionNeedsReview:
		return model.StatusNeedsReview
	default:
		return model.StatusNoMatch
	}
}

func bestScore(best *model.CandidateScore) float64 {
	if best == nil {
		return 0
	}
	return best.Score
}
