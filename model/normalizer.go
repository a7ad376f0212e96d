package model

import "fmt"

// Normalizer applies the standard-scaler transform fitted at training time:
// z = (x - mean) / scale. Scale entries of zero pass the centered value
// through untouched.
type Normalizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the scaled copy of a feature vector.
func (n *Normalizer) Transform(features []float64) ([]float64, error) {
	if len(features) != len(n.Mean) || len(features) != len(n.Scale) {
		return nil, fmt.Errorf("%w: got %d, scaler has %d", ErrFeatureWidth, len(features), len(n.Mean))
	}
	out := make([]float64, len(features))
	for i, x := range features {
		z := x - n.Mean[i]
		if n.Scale[i] != 0 {
			z /= n.Scale[i]
		}
		out[i] = z
	}
	return out, nil
}

func (n *Normalizer) validate(featureCount int) error {
	if len(n.Mean) != featureCount || len(n.Scale) != featureCount {
		return fmt.Errorf("%w: scaler arrays sized %d/%d, want %d",
			ErrBadParameters, len(n.Mean), len(n.Scale), featureCount)
	}
	return nil
}
