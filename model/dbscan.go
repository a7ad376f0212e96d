package model

import (
	"fmt"
	"math"
)

// AlgorithmDBSCAN tags artifacts exported from a density-based clustering
// of the training set.
const AlgorithmDBSCAN = "dbscan"

type dbscanParams struct {
	Eps         float64     `json:"eps"`
	CoreSamples [][]float64 `json:"core_samples"`
}

// DBSCAN scores vectors by their euclidean distance to the nearest core
// sample of the fitted clustering. Points within eps of a core sample belong
// to a known-behavior cluster; points farther away are noise.
type DBSCAN struct {
	normalizer Normalizer
	params     dbscanParams
	features   int
}

func newDBSCAN(a *Artifact) (*DBSCAN, error) {
	var p dbscanParams
	if err := unmarshalParams(a.Params, &p); err != nil {
		return nil, err
	}
	if p.Eps <= 0 {
		return nil, fmt.Errorf("%w: eps must be positive", ErrBadParameters)
	}
	if len(p.CoreSamples) == 0 {
		return nil, fmt.Errorf("%w: clustering has no core samples", ErrBadParameters)
	}
	for i, cs := range p.CoreSamples {
		if len(cs) != a.FeatureCount {
			return nil, fmt.Errorf("%w: core sample %d has width %d, want %d",
				ErrBadParameters, i, len(cs), a.FeatureCount)
		}
	}
	return &DBSCAN{normalizer: a.Normalizer, params: p, features: a.FeatureCount}, nil
}

func (m *DBSCAN) Score(features []float64) (int, error) {
	x, err := m.normalizer.Transform(features)
	if err != nil {
		return 0, err
	}

	minDist := math.Inf(1)
	for _, cs := range m.params.CoreSamples {
		var sq float64
		for i := range x {
			diff := x[i] - cs[i]
			sq += diff * diff
		}
		if d := math.Sqrt(sq); d < minDist {
			minDist = d
		}
	}

	if minDist <= m.params.Eps {
		return inlierScore(minDist / m.params.Eps), nil
	}
	return outlierScore(minDist - m.params.Eps), nil
}

func (m *DBSCAN) Algorithm() string { return AlgorithmDBSCAN }
func (m *DBSCAN) FeatureCount() int { return m.features }
