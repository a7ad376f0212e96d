package model

import (
	"fmt"
	"math"

	"github.com/xayone/riskd/util"
)

// AlgorithmOneClassSVM tags artifacts exported from a one-class support
// vector machine with an RBF kernel.
const AlgorithmOneClassSVM = "one_class_svm"

// svmParams is the exported parameter block of a trained one-class SVM.
type svmParams struct {
	Gamma          float64     `json:"gamma"`
	Rho            float64     `json:"rho"`
	DualCoef       []float64   `json:"dual_coef"`
	SupportVectors [][]float64 `json:"support_vectors"`
}

// OneClassSVM scores vectors by their signed distance to the learned
// decision boundary: d(x) = sum_i alpha_i * exp(-gamma*||x - sv_i||^2) - rho.
type OneClassSVM struct {
	normalizer Normalizer
	params     svmParams
	features   int
}

func newOneClassSVM(a *Artifact) (*OneClassSVM, error) {
	var p svmParams
	if err := unmarshalParams(a.Params, &p); err != nil {
		return nil, err
	}
	if p.Gamma <= 0 {
		return nil, fmt.Errorf("%w: gamma must be positive", ErrBadParameters)
	}
	if len(p.DualCoef) == 0 || len(p.DualCoef) != len(p.SupportVectors) {
		return nil, fmt.Errorf("%w: %d dual coefficients for %d support vectors",
			ErrBadParameters, len(p.DualCoef), len(p.SupportVectors))
	}
	for i, sv := range p.SupportVectors {
		if len(sv) != a.FeatureCount {
			return nil, fmt.Errorf("%w: support vector %d has width %d, want %d",
				ErrBadParameters, i, len(sv), a.FeatureCount)
		}
	}
	return &OneClassSVM{normalizer: a.Normalizer, params: p, features: a.FeatureCount}, nil
}

func (m *OneClassSVM) Score(features []float64) (int, error) {
	x, err := m.normalizer.Transform(features)
	if err != nil {
		return 0, err
	}
	d := -m.params.Rho
	for i, sv := range m.params.SupportVectors {
		d += m.params.DualCoef[i] * rbfKernel(x, sv, m.params.Gamma)
	}
	return scoreFromDecision(d), nil
}

func (m *OneClassSVM) Algorithm() string { return AlgorithmOneClassSVM }
func (m *OneClassSVM) FeatureCount() int { return m.features }

// scoreFromDecision maps the SVM's signed boundary distance onto a risk
// score. Positive decisions are inliers and land in [0, 30]; non-positive
// decisions are outliers and land in [31, 100], growing with the margin of
// the violation.
func scoreFromDecision(d float64) int {
	if d > 0 {
		score := int(30 - 10*d)
		if score < 0 {
			return 0
		}
		if score > 30 {
			return 30
		}
		return score
	}
	score := int(70 - 20*d)
	if score < 31 {
		return 31
	}
	return util.ClampScore(score)
}

func rbfKernel(a, b []float64, gamma float64) float64 {
	var sq float64
	for i := range a {
		diff := a[i] - b[i]
		sq += diff * diff
	}
	return math.Exp(-gamma * sq)
}
