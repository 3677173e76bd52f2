package stats

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// WeightedPercentile returns the weighted percentile of samples at rank q.
//
// weights may be nil for uniform weights; a zero weight removes its sample from
// the computation entirely. sorter may be nil, otherwise it must be a
// permutation such that samples[sorter[i]] is ascending; it is trusted and the
// samples are not sorted again. Ranks are on the 0 to 100 scale.
//
// Neither samples nor weights are modified.
func WeightedPercentile(samples []float64, q float64, weights []float64, sorter []int) (float64, error) {
	values, err := WeightedPercentiles(samples, []float64{q}, weights, sorter)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// WeightedPercentiles is WeightedPercentile for several ranks at once. The
// result has one value per rank, in the order of qs. Either every rank is
// computed or an error is returned.
func WeightedPercentiles(samples []float64, qs []float64, weights []float64, sorter []int) ([]float64, error) {
	if len(qs) == 0 {
		return nil, ErrNoRanks
	}
	if err := ValidateRanks(qs); err != nil {
		return nil, err
	}

	sorted, sortedWeights, err := sortedPositive(samples, weights, sorter)
	if err != nil {
		return nil, err
	}
	positions := midpointPositions(sortedWeights)

	values := make([]float64, len(qs))
	for i, q := range qs {
		values[i] = interpolate(sorted, positions, q)
	}
	return values, nil
}

// sortedPositive returns copies of the samples and weights with zero-weight
// entries dropped, in ascending sample order.
//
// When a sorter is given it is walked in order and zero-weight indices are
// skipped. That is the same as filtering first and applying the sorter to the
// surviving indices, so the sorter and the filter commute.
func sortedPositive(samples, weights []float64, sorter []int) ([]float64, []float64, error) {
	weights, err := validateSamples(samples, weights)
	if err != nil {
		return nil, nil, err
	}

	if sorter != nil {
		if err := validateSorter(sorter, len(samples)); err != nil {
			return nil, nil, err
		}
		outSamples := make([]float64, 0, len(samples))
		outWeights := make([]float64, 0, len(samples))
		for _, idx := range sorter {
			if weights[idx] == 0 {
				continue
			}
			outSamples = append(outSamples, samples[idx])
			outWeights = append(outWeights, weights[idx])
		}
		if len(outSamples) == 0 {
			return nil, nil, ErrNoPositiveWeight
		}
		return outSamples, outWeights, nil
	}

	kept := make([]float64, 0, len(samples))
	keptWeights := make([]float64, 0, len(samples))
	for i, w := range weights {
		if w == 0 {
			continue
		}
		kept = append(kept, samples[i])
		keptWeights = append(keptWeights, w)
	}
	if len(kept) == 0 {
		return nil, nil, ErrNoPositiveWeight
	}

	// Sorts kept in place; equal samples keep their input order.
	inds := make([]int, len(kept))
	floats.ArgsortStable(kept, inds)
	outWeights := make([]float64, len(kept))
	for i, idx := range inds {
		outWeights[i] = keptWeights[idx]
	}
	return kept, outWeights, nil
}

func validateSorter(sorter []int, n int) error {
	if len(sorter) != n {
		return fmt.Errorf("%w: sorter has %d entries, samples have %d", ErrInvalidSorter, len(sorter), n)
	}
	seen := make([]bool, n)
	for i, idx := range sorter {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: sorter[%d] = %d out of range", ErrInvalidSorter, i, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: index %d repeated", ErrInvalidSorter, idx)
		}
		seen[idx] = true
	}
	return nil
}

// midpointPositions places each sorted sample on the 0-100 scale at the
// midpoint of its share of the cumulative weight. Weights must be positive,
// which makes the positions non-decreasing.
//
// Weights are divided by the largest one first so that sums near
// math.MaxFloat64 and subnormal weights both stay in range.
func midpointPositions(weights []float64) []float64 {
	largest := floats.Max(weights)
	scaled := make([]float64, len(weights))
	for i, w := range weights {
		scaled[i] = w / largest
	}
	cum := floats.CumSum(make([]float64, len(scaled)), scaled)
	total := cum[len(cum)-1]

	positions := make([]float64, len(scaled))
	for i, w := range scaled {
		positions[i] = 100 * (cum[i] - w/2) / total
	}
	return positions
}

// interpolate reads rank q off the piecewise-linear curve through
// (positions[i], sorted[i]), clamping outside the first and last position.
func interpolate(sorted, positions []float64, q float64) float64 {
	// k is the last position strictly below q.
	k := sort.SearchFloat64s(positions, q) - 1
	switch {
	case k == -1:
		return sorted[0]
	case k == len(positions)-1:
		return sorted[len(sorted)-1]
	}
	fraction := (q - positions[k]) / (positions[k+1] - positions[k])
	return sorted[k] + fraction*(sorted[k+1]-sorted[k])
}
