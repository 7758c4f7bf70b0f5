package model

import (
	"fmt"
	"sort"
	"time"
)

// Decision is the outcome the policy assigns to a match attempt.
type Decision string

// Decision constants.
const (
	DecisionAutoApprove Decision = "AUTO_APPROVE"
	DecisionNeedsReview Decision = "NEEDS_REVIEW"
	DecisionNoMatch     Decision = "NO_MATCH"
)

// ScoreBreakdown holds the per-feature sub-scores for one candidate.
// A nil entry means the feature was absent on one side and excluded from
// the weighted sum entirely, which is different from scoring zero.
type ScoreBreakdown struct {
	VendorSimilarity  *float64
	AmountCloseness   *float64
	DateProximity     *float64
	InvoiceExactMatch *float64
	PriorBoost        float64
}

// Features returns the breakdown as (name, value, present) tuples in a
// fixed order, for serialization and weight recomputation.
func (b ScoreBreakdown) Features() []Feature {
	return []Feature{
		{Name: FeatureVendor, Value: b.VendorSimilarity},
		{Name: FeatureAmount, Value: b.AmountCloseness},
		{Name: FeatureDate, Value: b.DateProximity},
		{Name: FeatureInvoice, Value: b.InvoiceExactMatch},
	}
}

// Feature names used in breakdowns and weight maps.
const (
	FeatureVendor  = "vendor_similarity"
	FeatureAmount  = "amount_closeness"
	FeatureDate    = "date_proximity"
	FeatureInvoice = "invoice_exact_match"
)

// Feature pairs a feature name with its (possibly excluded) sub-score.
type Feature struct {
	Value *float64
	Name  string
}

// CandidateScore is one entry of a ranked score list.
type CandidateScore struct {
	Breakdown        ScoreBreakdown
	CandidateID      string
	Category         string
	Score            float64
	DateDistanceDays float64
}

// Validate ensures the score is well-formed.
func (c *CandidateScore) Validate() error {
	if c.CandidateID == "" {
		return fmt.Errorf("candidate id is required")
	}
	if c.Score < 0.0 || c.Score > 1.0 {
		return fmt.Errorf("score must be between 0.0 and 1.0, got %.4f", c.Score)
	}
	return nil
}

// invoiceExact reports whether the invoice feature scored a perfect match.
func (c *CandidateScore) invoiceExact() bool {
	return c.Breakdown.InvoiceExactMatch != nil && *c.Breakdown.InvoiceExactMatch == 1.0
}

// CandidateScores is a ranked score list with deterministic ordering.
type CandidateScores []CandidateScore

// Sort orders scores best-first. Ties break by invoice exactness, then by
// smaller date distance, then by lexicographic candidate id so repeated
// runs produce identical rankings.
func (s CandidateScores) Sort() {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		if s[i].invoiceExact() != s[j].invoiceExact() {
			return s[i].invoiceExact()
		}
		if s[i].DateDistanceDays != s[j].DateDistanceDays {
			return s[i].DateDistanceDays < s[j].DateDistanceDays
		}
		return s[i].CandidateID < s[j].CandidateID
	})
}

// Top returns the best-scoring candidate, or nil if the list is empty.
func (s CandidateScores) Top() *CandidateScore {
	if len(s) == 0 {
		return nil
	}
	s.Sort()
	return &s[0]
}

// Margin returns the gap between the best and second-best score. With
// fewer than two candidates the margin is 1.0: there is nothing to
// confuse the best candidate with.
func (s CandidateScores) Margin() float64 {
	if len(s) < 2 {
		return 1.0
	}
	s.Sort()
	return s[0].Score - s[1].Score
}

// MatchResult records one match attempt. Results are append-only: a re-run
// produces a new result superseding older ones by timestamp.
type MatchResult struct {
	CreatedAt         time.Time
	ChosenCandidateID *string
	ChosenCategory    *string
	ID                string
	DocumentID        string
	Decision          Decision
	Rankings          CandidateScores
	ModelVersion      int64
}
