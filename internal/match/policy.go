package match

import "github.com/ledgerlink/ledgerlink/internal/model"

// Policy converts a ranked score list into a decision using the
// configured thresholds and margin. It is deterministic and never
// touches the adaptive model.
type Policy struct {
	cfg Config
}

// NewPolicy creates a decision policy with the given configuration.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Decide applies the two-threshold, margin-gated policy:
//
//   - best ≥ auto threshold with a sufficient gap to the runner-up (or no
//     runner-up at all) binds the document to the best candidate;
//   - best ≥ review threshold proposes the best candidate for human review;
//   - anything else is no-match with nothing proposed.
//
// The returned candidate is nil exactly when the decision is no-match.
func (p *Policy) Decide(scores model.CandidateScores) (model.Decision, *model.CandidateScore) {
	best := scores.Top()
	if best == nil {
		return model.DecisionNoMatch, nil
	}

	if best.Score >= p.cfg.AutoThreshold {
		if len(scores) == 1 || scores.Margin() >= p.cfg.Margin {
			return model.DecisionAutoApprove, best
		}
		// A confident-looking tie is still a tie.
		return model.DecisionNeedsReview, best
	}

	if best.Score >= p.cfg.ReviewThreshold {
		return model.DecisionNeedsReview, best
	}

	return model.DecisionNoMatch, nil
}
