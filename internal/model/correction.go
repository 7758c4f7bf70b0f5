package model

import "time"

// Correction is a human confirmation or override of a match decision,
// supplied by the external review workflow.
type Correction struct {
	CreatedAt            time.Time
	AppliedModelVersion  *int64
	ID                   string
	DocumentID           string
	MatchResultID        string
	PredictedCategory    string
	ConfirmedCategory    string
	CorrectedBy          string
}

// Confirmed reports whether the human agreed with the prediction.
func (c *Correction) Confirmed() bool {
	return c.PredictedCategory == c.ConfirmedCategory
}

// Applied reports whether this correction has been folded into a model
// version already. The learner must never fold a correction twice.
func (c *Correction) Applied() bool {
	return c.AppliedModelVersion != nil
}
