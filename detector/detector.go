// Package detector composes the per-factor scoring triple: feature
// extraction, anomaly model inference and the deterministic rule overlay.
package detector

import (
	"net"

	"github.com/rs/zerolog"

	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/feature"
	"github.com/xayone/riskd/logger"
	"github.com/xayone/riskd/model"
	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

type (
	extractFunc func(s *session.Session, history []session.HistoryItem) []float64
	overlayFunc func(base int, s *session.Session, history []session.HistoryItem) int

	// Detector scores one factor of a login session. A detector without a
	// loaded model runs in rules-only mode: the neutral base stands in for
	// the model and the overlay still applies. Score never fails; model
	// errors degrade to the neutral base with a warning.
	Detector struct {
		factor    string
		extract   extractFunc
		overlay   overlayFunc
		model     model.Model
		rulesOnly bool
		neutral   int
		log       zerolog.Logger
	}

	// Set bundles the four factor detectors the pipeline fans out to.
	Set struct {
		Network    *Detector
		Temporal   *Detector
		Agent      *Detector
		Geographic *Detector
	}
)

// FeatureWidths pins each bundle factor to the extractor width compiled
// into this binary.
func FeatureWidths() map[string]int {
	return map[string]int{
		model.FactorNetwork:    feature.NetworkFeatureCount,
		model.FactorTemporal:   feature.TemporalFeatureCount,
		model.FactorAgent:      feature.AgentFeatureCount,
		model.FactorGeographic: feature.GeographicFeatureCount,
	}
}

// NewSet builds the four detectors from configuration and an optional model
// bundle. Passing a nil bundle, or a bundle missing a factor, puts the
// affected detectors in rules-only mode.
func NewSet(cfg *config.Config, bundle *model.Bundle) *Set {
	knownBad, err := util.ParseSubnets(cfg.Scoring.KnownBadAddresses)
	if err != nil {
		// config validation already parsed these; an error here means the
		// config was mutated after validation
		log := logger.GetLogger()
		log.Warn().Err(err).Msg("discarding unparsable known-bad address list")
		knownBad = nil
	}

	networkRules := networkOverlay{knownBad: knownBad}
	geoRules := geographicOverlay{
		maxSpeedKmh:     cfg.Scoring.MaxTravelSpeedKmh,
		extremeSpeedKmh: cfg.Scoring.ExtremeTravelSpeedKmh,
	}

	return &Set{
		Network:    newDetector(model.FactorNetwork, cfg, bundle, feature.Network, networkRules.apply),
		Temporal:   newDetector(model.FactorTemporal, cfg, bundle, temporalExtract, temporalOverlay),
		Agent:      newDetector(model.FactorAgent, cfg, bundle, agentExtract, agentOverlay),
		Geographic: newDetector(model.FactorGeographic, cfg, bundle, feature.Geographic, geoRules.apply),
	}
}

func newDetector(factor string, cfg *config.Config, bundle *model.Bundle, extract extractFunc, overlay overlayFunc) *Detector {
	d := &Detector{
		factor:  factor,
		extract: extract,
		overlay: overlay,
		neutral: cfg.Scoring.NeutralScore,
		log:     logger.GetLogger().With().Str("factor", factor).Logger(),
	}
	if bundle != nil {
		d.model = bundle.Models[factor]
	}
	if d.model == nil {
		d.rulesOnly = true
		d.log.Warn().Msg("no model artifact loaded, scoring with rules only")
	}
	return d
}

// Score returns the factor risk in [0, 100] for a session and its history.
func (d *Detector) Score(s *session.Session, history []session.HistoryItem) int {
	base := d.neutral
	if !d.rulesOnly {
		features := d.extract(s, history)
		modelScore, err := d.model.Score(features)
		if err != nil {
			d.log.Warn().Err(err).Msg("model inference failed, using neutral base")
		} else {
			base = modelScore
		}
	}
	return util.ClampScore(d.overlay(base, s, history))
}

// Factor returns the bundle factor name this detector scores.
func (d *Detector) Factor() string { return d.factor }

// RulesOnly reports whether the detector is operating without a model.
func (d *Detector) RulesOnly() bool { return d.rulesOnly }

// temporalExtract and agentExtract adapt extractor signatures that ignore
// part of the uniform argument list.
func temporalExtract(s *session.Session, history []session.HistoryItem) []float64 {
	return feature.Temporal(s, history)
}

func agentExtract(s *session.Session, _ []session.HistoryItem) []float64 {
	return feature.Agent(s)
}

func ipInList(blocks []*net.IPNet, raw string) bool {
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	return util.ContainsIP(blocks, ip)
}
