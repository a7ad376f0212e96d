// Package model implements inference over pre-trained anomaly model
// artifacts. Training happens offline; this package only loads the
// exported parameters and scores feature vectors with them.
package model

import (
	"errors"
	"math"

	"github.com/xayone/riskd/util"
)

// Model scores a raw (unnormalized) feature vector, returning a risk score
// in [0, 100]. Implementations are safe for concurrent use; their parameters
// are immutable after load.
type Model interface {
	// Score returns the anomaly risk for one feature vector.
	Score(features []float64) (int, error)
	// Algorithm returns the artifact tag the model was loaded from.
	Algorithm() string
	// FeatureCount returns the expected vector width.
	FeatureCount() int
}

var (
	ErrFeatureWidth   = errors.New("feature vector width mismatch")
	ErrBadParameters  = errors.New("malformed model parameters")
	ErrUnknownVariant = errors.New("unknown model algorithm")
)

// inlierScore maps a sample's normalized position inside the decision
// boundary onto the 0-30 band. Zero is the deepest inlier; one sits exactly
// on the boundary.
func inlierScore(ratio float64) int {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return int(30 * ratio)
}

// outlierScore maps the margin by which a sample crossed the decision
// boundary onto the 30-100 band, saturating exponentially so an extreme
// outlier cannot dominate fusion.
func outlierScore(excess float64) int {
	if excess < 0 {
		excess = 0
	}
	return util.ClampScore(30 + int(70*(1-math.Exp(-excess))))
}
