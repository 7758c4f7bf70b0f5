package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// Validation errors.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidDateRange = errors.New("invalid date range")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("%w: context is required", ErrInvalidInput)
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	return nil
}

func validateDocument(doc *model.ExtractedDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is required", ErrInvalidInput)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if doc.EmailID == "" {
		return fmt.Errorf("%w: document email id is required", ErrInvalidInput)
	}
	return nil
}

func validateMatchResult(result *model.MatchResult) error {
	if result == nil {
		return fmt.Errorf("%w: match result is required", ErrInvalidInput)
	}
	if result.ID == "" || result.DocumentID == "" {
		return fmt.Errorf("%w: match result id and document id are required", ErrInvalidInput)
	}
	if result.ModelVersion <= 0 {
		return fmt.Errorf("%w: match result must reference a model version", ErrInvalidInput)
	}
	for i := range result.Rankings {
		if err := result.Rankings[i].Validate(); err != nil {
			return fmt.Errorf("%w: ranking %d: %v", ErrInvalidInput, i, err)
		}
	}
	return nil
}

func validateCorrection(c *model.Correction) error {
	if c == nil {
		return fmt.Errorf("%w: correction is required", ErrInvalidInput)
	}
	if c.ID == "" || c.DocumentID == "" || c.MatchResultID == "" {
		return fmt.Errorf("%w: correction id, document id and match result id are required", ErrInvalidInput)
	}
	if c.ConfirmedCategory == "" {
		return fmt.Errorf("%w: confirmed category is required", ErrInvalidInput)
	}
	return nil
}
