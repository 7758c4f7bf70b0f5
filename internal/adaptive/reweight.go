package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
)

// reweightStep bounds how far a single recomputation can move one
// feature's weight.
const reweightStep = 0.05

// minFeatureWeight keeps every feature alive so it can recover if its
// discriminative power returns.
const minFeatureWeight = 0.05

// reweight recomputes the global feature weights from recent corrected
// documents. For each feature it compares the mean sub-score among
// predictions the human confirmed against the mean among predictions the
// human overrode; features that separate the two classes well are nudged
// up by a bounded step and the weights renormalized.
func (l *Learner) reweight(ctx context.Context, next *model.AdaptiveModel) error {
	corrections, err := l.storage.GetRecentCorrections(ctx, l.cfg.RecentWindow)
	if err != nil {
		return fmt.Errorf("failed to load recent corrections: %w", err)
	}

	type stats struct {
		correctSum   float64
		correctN     int
		incorrectSum float64
		incorrectN   int
	}
	byFeature := make(map[string]*stats)
	for _, name := range []string{model.FeatureVendor, model.FeatureAmount, model.FeatureDate, model.FeatureInvoice} {
		byFeature[name] = &stats{}
	}

	classes := 0
	sawCorrect, sawIncorrect := false, false
	for i := range corrections {
		c := &corrections[i]
		result, err := l.storage.GetMatchResultByID(ctx, c.MatchResultID)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load match result %s: %w", c.MatchResultID, err)
		}
		top := result.Rankings.Top()
		if top == nil {
			continue
		}

		correct := c.Confirmed()
		if correct && !sawCorrect {
			sawCorrect = true
			classes++
		}
		if !correct && !sawIncorrect {
			sawIncorrect = true
			classes++
		}

		for _, f := range top.Breakdown.Features() {
			if f.Value == nil {
				continue
			}
			st := byFeature[f.Name]
			if correct {
				st.correctSum += *f.Value
				st.correctN++
			} else {
				st.incorrectSum += *f.Value
				st.incorrectN++
			}
		}
	}

	// Separation is only meaningful with both confirmed and overridden
	// predictions in the window.
	if classes < 2 {
		slog.Debug("Skipping feature reweighting, correction window has a single class")
		return nil
	}

	weights := next.Weights
	for name, st := range byFeature {
		if st.correctN == 0 || st.incorrectN == 0 {
			continue
		}
		separation := st.correctSum/float64(st.correctN) - st.incorrectSum/float64(st.incorrectN)
		step := reweightStep * separation
		if step > reweightStep {
			step = reweightStep
		}
		if step < -reweightStep {
			step = -reweightStep
		}

		w := weights.Get(name) + step
		if w < minFeatureWeight {
			w = minFeatureWeight
		}
		weights.Set(name, w)
	}

	weights.Normalize()
	next.Weights = weights

	slog.Info("Recomputed feature weights",
		"vendor", weights.Vendor,
		"amount", weights.Amount,
		"date", weights.Date,
		"invoice", weights.Invoice)
	return nil
}
