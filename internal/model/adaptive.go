package model

import (
	"fmt"
	"math"
	"time"
)

// FeatureWeights are the global weights applied to the four sub-scores.
// They always sum to 1; the matcher renormalizes on the fly when a
// feature is excluded for a particular document/candidate pair.
type FeatureWeights struct {
	Vendor  float64 `json:"vendor_similarity"`
	Amount  float64 `json:"amount_closeness"`
	Date    float64 `json:"date_proximity"`
	Invoice float64 `json:"invoice_exact_match"`
}

// DefaultFeatureWeights returns the starting weights used before any
// corrections have been learned from.
func DefaultFeatureWeights() FeatureWeights {
	return FeatureWeights{
		Vendor:  0.35,
		Amount:  0.35,
		Date:    0.20,
		Invoice: 0.10,
	}
}

// Get returns the weight for a named feature.
func (w FeatureWeights) Get(name string) float64 {
	switch name {
	case FeatureVendor:
		return w.Vendor
	case FeatureAmount:
		return w.Amount
	case FeatureDate:
		return w.Date
	case FeatureInvoice:
		return w.Invoice
	}
	return 0
}

// Set assigns the weight for a named feature.
func (w *FeatureWeights) Set(name string, value float64) {
	switch name {
	case FeatureVendor:
		w.Vendor = value
	case FeatureAmount:
		w.Amount = value
	case FeatureDate:
		w.Date = value
	case FeatureInvoice:
		w.Invoice = value
	}
}

// Sum returns the total of all weights.
func (w FeatureWeights) Sum() float64 {
	return w.Vendor + w.Amount + w.Date + w.Invoice
}

// Normalize rescales the weights to sum to 1.
func (w *FeatureWeights) Normalize() {
	sum := w.Sum()
	if sum <= 0 {
		*w = DefaultFeatureWeights()
		return
	}
	w.Vendor /= sum
	w.Amount /= sum
	w.Date /= sum
	w.Invoice /= sum
}

// Validate ensures weights are non-negative and sum to 1.
func (w FeatureWeights) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{FeatureVendor, w.Vendor},
		{FeatureAmount, w.Amount},
		{FeatureDate, w.Date},
		{FeatureInvoice, w.Invoice},
	} {
		if f.value < 0 {
			return fmt.Errorf("weight %s is negative: %.4f", f.name, f.value)
		}
	}
	if math.Abs(w.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", w.Sum())
	}
	return nil
}

// PriorKey identifies a learned (vendor, category) pairing.
type PriorKey struct {
	Vendor   string `json:"vendor"`
	Category string `json:"category"`
}

// AdaptiveModel is one immutable, fully-computed model version. Matchers
// read a snapshot and never mutate it; the learner builds a clone, bumps
// the version, and publishes it atomically.
type AdaptiveModel struct {
	CreatedAt       time.Time
	Priors          map[PriorKey]float64
	Weights         FeatureWeights
	Version         int64
	CorrectionCount int64
}

// NewAdaptiveModel returns the initial model version with default weights
// and no learned priors.
func NewAdaptiveModel() *AdaptiveModel {
	return &AdaptiveModel{
		Version:   1,
		Weights:   DefaultFeatureWeights(),
		Priors:    make(map[PriorKey]float64),
		CreatedAt: time.Now().UTC(),
	}
}

// Prior returns the learned weight for a (vendor, category) pairing,
// zero when the pairing has no history.
func (m *AdaptiveModel) Prior(vendor, category string) float64 {
	return m.Priors[PriorKey{Vendor: vendor, Category: category}]
}

// Clone returns a deep copy with the version advanced by one. The copy is
// the only model the learner mutates; the original stays published until
// the copy is complete.
func (m *AdaptiveModel) Clone() *AdaptiveModel {
	priors := make(map[PriorKey]float64, len(m.Priors))
	for k, v := range m.Priors {
		priors[k] = v
	}
	return &AdaptiveModel{
		Version:         m.Version + 1,
		Weights:         m.Weights,
		Priors:          priors,
		CorrectionCount: m.CorrectionCount,
		CreatedAt:       time.Now().UTC(),
	}
}
