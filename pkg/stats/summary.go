package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of a weighted sample set. Zero-weight
// samples are counted in Count but contribute to nothing else.
type Summary struct {
	Count       int     `json:"count" toon:"count"`
	Kept        int     `json:"kept" toon:"kept"`
	TotalWeight float64 `json:"total_weight" toon:"total_weight"`
	Min         float64 `json:"min" toon:"min"`
	Max         float64 `json:"max" toon:"max"`
	Mean        float64 `json:"mean" toon:"mean"`
	StdDev      float64 `json:"stddev" toon:"stddev"` // population, weighted
}

// Summarize computes a Summary. weights may be nil for uniform weights.
func Summarize(samples, weights []float64) (Summary, error) {
	weights, err := validateSamples(samples, weights)
	if err != nil {
		return Summary{}, err
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
		return Summary{}, ErrNoPositiveWeight
	}

	mean, std := stat.PopMeanStdDev(kept, keptWeights)
	return Summary{
		Count:       len(samples),
		Kept:        len(kept),
		TotalWeight: floats.Sum(keptWeights),
		Min:         floats.Min(kept),
		Max:         floats.Max(kept),
		Mean:        mean,
		StdDev:      std,
	}, nil
}
