package match

import (
	"fmt"
	"math"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/normalize"
)

// priorBoostFactor bounds the multiplicative lift a learned (vendor,
// category) prior can apply. The boost closes a fraction of the gap to
// 1.0, so a boosted score reaches 1.0 only when the raw score already is.
const priorBoostFactor = 0.2

// unknownDateDistance sorts candidates without a comparable date after
// every candidate with one during tie-breaking.
const unknownDateDistance = 1e9

// Scorer ranks candidate transactions against a normalized document.
// It only reads: the candidate pool and the model snapshot are never
// mutated, so concurrent scorers need no locking.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// ScoreAll scores the document against every candidate in the pool using
// the supplied model snapshot and returns the ranked list.
func (s *Scorer) ScoreAll(doc *model.NormalizedDocument, pool []model.CandidateTransaction, snapshot *model.AdaptiveModel) (model.CandidateScores, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no candidates supplied for document %s", common.ErrInconsistentCandidatePool, doc.DocumentID)
	}

	scores := make(model.CandidateScores, 0, len(pool))
	for i := range pool {
		cs := s.scoreOne(doc, &pool[i], snapshot)
		if err := cs.Validate(); err != nil {
			return nil, fmt.Errorf("%w: candidate %s: %v", common.ErrInconsistentCandidatePool, pool[i].ID, err)
		}
		scores = append(scores, cs)
	}

	scores.Sort()
	return scores, nil
}

func (s *Scorer) scoreOne(doc *model.NormalizedDocument, cand *model.CandidateTransaction, snapshot *model.AdaptiveModel) model.CandidateScore {
	candVendor, candTokens := normalize.Candidate(cand)
	candCurrency := normalizeCurrency(cand.Currency)
	candMinor := normalize.AmountMinor(cand.Amount, candCurrency)
	candDate := normalize.Date(cand.Date)

	breakdown := model.ScoreBreakdown{}
	dateDistance := unknownDateDistance

	if doc.Vendor != nil && candVendor != "" {
		v := 1.0
		if *doc.Vendor != candVendor {
			v = VendorSimilarity(doc.VendorTokens, candTokens)
		}
		breakdown.VendorSimilarity = &v
	}

	if doc.AmountMinor != nil {
		a := s.amountCloseness(*doc.AmountMinor, doc.Currency, candMinor, candCurrency)
		breakdown.AmountCloseness = &a
	}

	if doc.Date != nil {
		days := math.Abs(doc.Date.Sub(candDate).Hours() / 24)
		dateDistance = days
		d := s.dateProximity(days)
		breakdown.DateProximity = &d
	}

	if doc.Invoice != nil {
		candInvoice := normalize.Invoice(cand.InvoiceRef)
		if candInvoice != "" {
			inv := 0.0
			if *doc.Invoice == candInvoice {
				inv = 1.0
			}
			breakdown.InvoiceExactMatch = &inv
		}
	}

	score := weightedSum(breakdown, snapshot.Weights)

	// Learned (vendor, category) priors lift candidates whose category the
	// document's vendor has history with, bounded so the ceiling holds.
	if doc.Vendor != nil {
		prior := snapshot.Prior(*doc.Vendor, cand.Category)
		if prior > 0 {
			boosted := score + priorBoostFactor*prior*(1.0-score)
			breakdown.PriorBoost = boosted - score
			score = boosted
		}
	}

	return model.CandidateScore{
		CandidateID:      cand.ID,
		Category:         cand.Category,
		Score:            score,
		Breakdown:        breakdown,
		DateDistanceDays: dateDistance,
	}
}

// amountCloseness is 1.0 for an exact amount+currency match, decays
// linearly to 0 across the relative tolerance band, and is 0 outright
// when the currencies differ. No FX conversion is attempted.
func (s *Scorer) amountCloseness(docMinor int64, docCurrency string, candMinor int64, candCurrency string) float64 {
	if docCurrency != candCurrency {
		return 0
	}
	if docMinor == candMinor {
		return 1.0
	}

	denom := math.Max(math.Abs(float64(candMinor)), math.Abs(float64(docMinor)))
	if denom == 0 {
		return 0
	}
	relDiff := math.Abs(float64(docMinor)-float64(candMinor)) / denom

	closeness := 1.0 - relDiff/s.cfg.AmountTolerance
	if closeness < 0 {
		return 0
	}
	return closeness
}

// dateProximity is 1.0 on the same calendar date, decaying linearly to 0
// across the configured window.
func (s *Scorer) dateProximity(days float64) float64 {
	window := float64(s.cfg.DateWindowDays)
	if window <= 0 || days >= window {
		return 0
	}
	return 1.0 - days/window
}

// weightedSum combines present sub-scores using the model's weights,
// renormalized over the features actually present. Absent features are
// excluded, not zeroed: a missing field must never read as disagreement.
func weightedSum(breakdown model.ScoreBreakdown, weights model.FeatureWeights) float64 {
	sum := 0.0
	weightTotal := 0.0
	for _, f := range breakdown.Features() {
		if f.Value == nil {
			continue
		}
		w := weights.Get(f.Name)
		sum += w * *f.Value
		weightTotal += w
	}

	if weightTotal == 0 {
		return 0
	}
	return sum / weightTotal
}

func normalizeCurrency(c string) string {
	out := make([]rune, 0, len(c))
	for _, r := range c {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r != ' ' {
			out = append(out, r)
		}
	}
	return string(out)
}
