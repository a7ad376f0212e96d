package model

import (
	"fmt"
	"math"
)

// AlgorithmIsolationForest tags artifacts exported from an isolation forest.
const AlgorithmIsolationForest = "isolation_forest"

// forestNode is one node of a flattened isolation tree. Leaves have
// Left == -1 and carry the size of the training partition that landed there.
type forestNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

type forestParams struct {
	Trees      [][]forestNode `json:"trees"`
	SampleSize int            `json:"sample_size"`
	// Offset separates inliers from outliers: anomaly scores above it are
	// outliers. Fitted from the contamination fraction at training time.
	Offset float64 `json:"offset"`
}

// IsolationForest scores vectors by average isolation depth across the
// ensemble. Shorter paths mean the point separates easily from the training
// mass, which marks it anomalous.
type IsolationForest struct {
	normalizer Normalizer
	params     forestParams
	features   int
}

func newIsolationForest(a *Artifact) (*IsolationForest, error) {
	var p forestParams
	if err := unmarshalParams(a.Params, &p); err != nil {
		return nil, err
	}
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("%w: forest has no trees", ErrBadParameters)
	}
	if p.SampleSize < 2 {
		return nil, fmt.Errorf("%w: sample size %d", ErrBadParameters, p.SampleSize)
	}
	if p.Offset <= 0 || p.Offset >= 1 {
		return nil, fmt.Errorf("%w: offset %f outside (0, 1)", ErrBadParameters, p.Offset)
	}
	for ti, tree := range p.Trees {
		if len(tree) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrBadParameters, ti)
		}
		for ni, node := range tree {
			if node.Left == -1 {
				continue
			}
			if node.Left <= ni || node.Left >= len(tree) || node.Right <= ni || node.Right >= len(tree) {
				return nil, fmt.Errorf("%w: tree %d node %d has bad children", ErrBadParameters, ti, ni)
			}
			if node.Feature < 0 || node.Feature >= a.FeatureCount {
				return nil, fmt.Errorf("%w: tree %d node %d splits on feature %d",
					ErrBadParameters, ti, ni, node.Feature)
			}
		}
	}
	return &IsolationForest{normalizer: a.Normalizer, params: p, features: a.FeatureCount}, nil
}

func (m *IsolationForest) Score(features []float64) (int, error) {
	x, err := m.normalizer.Transform(features)
	if err != nil {
		return 0, err
	}

	var totalDepth float64
	for _, tree := range m.params.Trees {
		totalDepth += pathLength(tree, x)
	}
	avgDepth := totalDepth / float64(len(m.params.Trees))

	// s = 2^(-E[h(x)] / c(n)), in (0, 1]; higher is more anomalous
	anomaly := math.Pow(2, -avgDepth/averagePathLength(float64(m.params.SampleSize)))

	if anomaly <= m.params.Offset {
		return inlierScore(anomaly / m.params.Offset), nil
	}
	return outlierScore(anomaly - m.params.Offset), nil
}

func (m *IsolationForest) Algorithm() string { return AlgorithmIsolationForest }
func (m *IsolationForest) FeatureCount() int { return m.features }

func pathLength(tree []forestNode, x []float64) float64 {
	depth := 0.0
	idx := 0
	for {
		node := tree[idx]
		if node.Left == -1 {
			// unresolved partitions contribute their expected depth
			return depth + averagePathLength(float64(node.Size))
		}
		depth++
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree over n points.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	const eulerMascheroni = 0.5772156649
	return 2*(math.Log(n-1)+eulerMascheroni) - 2*(n-1)/n
}
