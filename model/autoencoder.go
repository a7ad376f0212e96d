package model

import (
	"fmt"
	"math"
)

// AlgorithmAutoencoder tags artifacts exported from a dense reconstruction
// autoencoder.
const AlgorithmAutoencoder = "autoencoder"

// denseLayer is one fully connected layer. Weights is row-major with one row
// per output unit.
type denseLayer struct {
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

type autoencoderParams struct {
	Layers []denseLayer `json:"layers"`
	// Threshold is the reconstruction-error cutoff, fitted as a high
	// percentile of training MSE. Errors above it are outliers.
	Threshold float64 `json:"threshold"`
}

// Autoencoder scores vectors by reconstruction error: a vector the network
// cannot reproduce was not part of the training distribution.
type Autoencoder struct {
	normalizer Normalizer
	params     autoencoderParams
	features   int
}

func newAutoencoder(a *Artifact) (*Autoencoder, error) {
	var p autoencoderParams
	if err := unmarshalParams(a.Params, &p); err != nil {
		return nil, err
	}
	if len(p.Layers) == 0 {
		return nil, fmt.Errorf("%w: network has no layers", ErrBadParameters)
	}
	if p.Threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", ErrBadParameters)
	}

	width := a.FeatureCount
	for i, layer := range p.Layers {
		if len(layer.Weights) == 0 || len(layer.Weights) != len(layer.Biases) {
			return nil, fmt.Errorf("%w: layer %d has %d weight rows and %d biases",
				ErrBadParameters, i, len(layer.Weights), len(layer.Biases))
		}
		for j, row := range layer.Weights {
			if len(row) != width {
				return nil, fmt.Errorf("%w: layer %d unit %d expects %d inputs, got %d",
					ErrBadParameters, i, j, width, len(row))
			}
		}
		switch layer.Activation {
		case "relu", "sigmoid", "linear":
		default:
			return nil, fmt.Errorf("%w: layer %d activation %q", ErrBadParameters, i, layer.Activation)
		}
		width = len(layer.Weights)
	}
	if width != a.FeatureCount {
		return nil, fmt.Errorf("%w: network output width %d, want %d", ErrBadParameters, width, a.FeatureCount)
	}

	return &Autoencoder{normalizer: a.Normalizer, params: p, features: a.FeatureCount}, nil
}

func (m *Autoencoder) Score(features []float64) (int, error) {
	x, err := m.normalizer.Transform(features)
	if err != nil {
		return 0, err
	}

	out := x
	for i := range m.params.Layers {
		out = m.params.Layers[i].forward(out)
	}

	var mse float64
	for i := range x {
		diff := out[i] - x[i]
		mse += diff * diff
	}
	mse /= float64(len(x))

	ratio := mse / m.params.Threshold
	if mse <= m.params.Threshold {
		return inlierScore(ratio), nil
	}
	// the factor of five sharpens saturation: a doubled reconstruction
	// error already scores near the ceiling
	return outlierScore(5 * (ratio - 1)), nil
}

func (m *Autoencoder) Algorithm() string { return AlgorithmAutoencoder }
func (m *Autoencoder) FeatureCount() int { return m.features }

func (l *denseLayer) forward(in []float64) []float64 {
	out := make([]float64, len(l.Weights))
	for j, row := range l.Weights {
		sum := l.Biases[j]
		for i, w := range row {
			sum += w * in[i]
		}
		switch l.Activation {
		case "relu":
			if sum < 0 {
				sum = 0
			}
		case "sigmoid":
			sum = 1 / (1 + math.Exp(-sum))
		}
		out[j] = sum
	}
	return out
}
