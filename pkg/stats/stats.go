// Package stats computes weighted percentiles of one-dimensional sample sets.
//
// Every sample contributes to the distribution in proportion to its weight.
// Percentiles are read off the weighted cumulative distribution by linear
// interpolation, with each sorted sample placed at the midpoint of the weight
// mass it represents. With uniform weights the i-th smallest of n samples sits
// at rank 100*(i+0.5)/n, so this is not the same estimator as the common
// "linear between closest ranks" percentile, which places the minimum at 0.
package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is wrapped by every validation error in this package.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	ErrRankOutOfRange   = fmt.Errorf("%w: percentile rank must be within [0, 100]", ErrInvalidArgument)
	ErrLengthMismatch   = fmt.Errorf("%w: samples and weights must have the same length", ErrInvalidArgument)
	ErrEmptySamples     = fmt.Errorf("%w: no samples", ErrInvalidArgument)
	ErrNoPositiveWeight = fmt.Errorf("%w: no samples with positive weight", ErrInvalidArgument)
	ErrInvalidWeight    = fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidArgument)
	ErrInvalidSample    = fmt.Errorf("%w: samples must not be NaN", ErrInvalidArgument)
	ErrInvalidSorter    = fmt.Errorf("%w: sorter must be a permutation of the sample indices", ErrInvalidArgument)
	ErrNoRanks          = fmt.Errorf("%w: at least one percentile rank is required", ErrInvalidArgument)
)

// ValidateRanks reports ErrRankOutOfRange for the first rank outside [0, 100].
// NaN is out of range.
func ValidateRanks(qs []float64) error {
	for i, q := range qs {
		if math.IsNaN(q) || q < 0 || q > 100 {
			return fmt.Errorf("%w: ranks[%d] = %v", ErrRankOutOfRange, i, q)
		}
	}
	return nil
}

// validateSamples checks samples against weights (nil means uniform) and
// returns the weights to use.
func validateSamples(samples, weights []float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySamples
	}
	if weights == nil {
		weights = make([]float64, len(samples))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(samples) != len(weights) {
		return nil, fmt.Errorf("%w: %d samples, %d weights", ErrLengthMismatch, len(samples), len(weights))
	}
	for i, s := range samples {
		if math.IsNaN(s) {
			return nil, fmt.Errorf("%w: samples[%d]", ErrInvalidSample, i)
		}
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weights[%d] = %v", ErrInvalidWeight, i, w)
		}
	}
	return weights, nil
}
