package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
)

// Factor names the four detection factors a bundle carries models for.
const (
	FactorNetwork    = "network"
	FactorTemporal   = "temporal"
	FactorAgent      = "agent"
	FactorGeographic = "geographic"
)

// Factors lists every factor a complete bundle must cover, in fusion order.
var Factors = []string{FactorNetwork, FactorTemporal, FactorAgent, FactorGeographic}

var (
	ErrVersionMismatch = errors.New("model artifact version mismatch")
	ErrMissingFactor   = errors.New("bundle is missing a factor artifact")
)

var artifactJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Artifact is the on-disk format of one trained model: the algorithm tag
// selects the parameter schema, and the normalizer is the fitted scaler the
// training pipeline applied before fitting.
type Artifact struct {
	Algorithm    string          `json:"algorithm"`
	Version      string          `json:"version"`
	FeatureCount int             `json:"feature_count"`
	Normalizer   Normalizer      `json:"normalizer"`
	Params       json.RawMessage `json:"params"`
}

// Bundle is a complete, version-consistent set of factor models.
type Bundle struct {
	Version string
	Models  map[string]Model
}

// artifactFile maps a factor to its file inside the bundle directory.
func artifactFile(dir, factor string) string {
	return filepath.Join(dir, factor+"_model.json")
}

// LoadBundle reads the four factor artifacts from dir, validating each
// against the expected extractor width and bundle version. Factors degrade
// independently: a missing, unreadable or mismatched artifact is skipped and
// reported in the failures map while the remaining factors still load, so
// one bad artifact puts only its own detector in rules-only mode.
func LoadBundle(fs afero.Fs, dir, version string, widths map[string]int) (*Bundle, map[string]error) {
	bundle := &Bundle{Version: version, Models: make(map[string]Model, len(Factors))}
	failures := make(map[string]error)

	for _, factor := range Factors {
		m, err := loadArtifact(fs, dir, version, factor, widths[factor])
		if err != nil {
			failures[factor] = err
			continue
		}
		bundle.Models[factor] = m
	}

	return bundle, failures
}

// Complete reports whether every factor loaded a model.
func (b *Bundle) Complete() bool {
	return len(b.Models) == len(Factors)
}

func loadArtifact(fs afero.Fs, dir, version, factor string, width int) (Model, error) {
	path := artifactFile(dir, factor)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingFactor, factor, err)
	}

	var artifact Artifact
	if err := artifactJSON.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if artifact.Version != version {
		return nil, fmt.Errorf("%w: %s has %q, want %q", ErrVersionMismatch, factor, artifact.Version, version)
	}
	if artifact.FeatureCount != width {
		return nil, fmt.Errorf("%w: %s artifact declares %d, extractor produces %d",
			ErrFeatureWidth, factor, artifact.FeatureCount, width)
	}
	if err := artifact.Normalizer.validate(artifact.FeatureCount); err != nil {
		return nil, fmt.Errorf("%s: %w", factor, err)
	}

	return buildModel(&artifact)
}

// SaveArtifact writes one factor artifact atomically: the bytes land in a
// temporary file which is renamed over the destination, so a concurrent
// load never observes a half-written artifact.
func SaveArtifact(fs afero.Fs, dir, factor string, artifact *Artifact) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}

	data, err := artifactJSON.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s artifact: %w", factor, err)
	}

	dest := artifactFile(dir, factor)
	tmp := dest + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, dest); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("renaming %s into place: %w", tmp, err)
	}
	return nil
}

// buildModel dispatches on the algorithm tag.
func buildModel(a *Artifact) (Model, error) {
	switch a.Algorithm {
	case AlgorithmOneClassSVM:
		return newOneClassSVM(a)
	case AlgorithmIsolationForest:
		return newIsolationForest(a)
	case AlgorithmAutoencoder:
		return newAutoencoder(a)
	case AlgorithmDBSCAN:
		return newDBSCAN(a)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, a.Algorithm)
	}
}

func unmarshalParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty parameter block", ErrBadParameters)
	}
	if err := artifactJSON.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParameters, err)
	}
	return nil
}
