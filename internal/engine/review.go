package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// RecordCorrection stores a human confirmation or override of the
// document's latest match result. The correction is queued for the
// learner; the document moves to its terminal matched state immediately.
func (e *MatchingEngine) RecordCorrection(ctx context.Context, documentID, confirmedCategory, correctedBy string) (*model.Correction, error) {
	latest, err := e.storage.GetLatestMatchResult(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("document %s has no match result to correct: %w", documentID, err)
	}

	predicted := ""
	if latest.ChosenCategory != nil {
		predicted = *latest.ChosenCategory
	}

	correction := &model.Correction{
		ID:                uuid.NewString(),
		DocumentID:        documentID,
		MatchResultID:     latest.ID,
		PredictedCategory: predicted,
		ConfirmedCategory: confirmedCategory,
		CorrectedBy:       correctedBy,
		CreatedAt:         time.Now().UTC(),
	}

	if err := e.storage.SaveCorrection(ctx, correction); err != nil {
		return nil, err
	}
	if err := e.storage.UpdateDocumentStatus(ctx, documentID, model.StatusMatched); err != nil {
		return nil, err
	}

	detail, _ := json.Marshal(map[string]any{
		"correction":         correction.ID,
		"match_result":       latest.ID,
		"predicted_category": predicted,
		"confirmed_category": confirmedCategory,
		"corrected_by":       correctedBy,
		"confirmed":          correction.Confirmed(),
	})
	if err := e.storage.AppendAudit(ctx, &model.AuditEntry{
		DocumentID: documentID,
		Kind:       model.AuditCorrection,
		Decision:   latest.Decision,
		Detail:     string(detail),
		CreatedAt:  correction.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record correction: %w", err)
	}

	return correction, nil
}

// RejectDocument resolves a needs-review document as no-match after a
// human declined every proposed candidate.
func (e *MatchingEngine) RejectDocument(ctx context.Context, documentID, correctedBy string) error {
	if err := e.storage.UpdateDocumentStatus(ctx, documentID, model.StatusRejected); err != nil {
		return err
	}

	detail, _ := json.Marshal(map[string]any{"corrected_by": correctedBy})
	if err := e.storage.AppendAudit(ctx, &model.AuditEntry{
		DocumentID: documentID,
		Kind:       model.AuditCorrection,
		Decision:   model.DecisionNoMatch,
		Detail:     string(detail),
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}
