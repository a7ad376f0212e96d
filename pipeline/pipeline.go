// Package pipeline runs a validated scoring request end to end: sanitize,
// enrich, fan the four detectors out in parallel, fuse, cache and audit.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xayone/riskd/audit"
	"github.com/xayone/riskd/cache"
	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/detector"
	"github.com/xayone/riskd/geoip"
	"github.com/xayone/riskd/logger"
	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

type (
	// Meta is the request-level envelope returned with every result.
	Meta struct {
		RequestID      string `json:"requestId"`
		UserID         string `json:"userId"`
		Timestamp      int64  `json:"timestamp"`
		ProcessingTime int64  `json:"processingTime"`
		ModelsVersion  string `json:"modelsVersion"`
		CacheHit       bool   `json:"cacheHit,omitempty"`
	}

	// Result is the full analyze response.
	Result struct {
		Meta   Meta           `json:"meta"`
		Scores session.Scores `json:"scores"`
	}

	// scorer is the slice of the detector surface the pipeline fans out to.
	scorer interface {
		Score(s *session.Session, history []session.HistoryItem) int
	}

	// Pipeline wires the detectors to their collaborators. All fields are
	// set at construction and read-only afterwards.
	Pipeline struct {
		scorers  map[string]scorer
		resolver geoip.Resolver
		store    cache.Store
		fallback *cache.MemoryStore
		sink     audit.Sink
		cfg      *config.Config
		log      zerolog.Logger
	}
)

// New builds a pipeline. resolver may be nil when no geolocation database is
// available; every lookup then resolves to the unknown location.
func New(cfg *config.Config, detectors *detector.Set, resolver geoip.Resolver, store cache.Store, sink audit.Sink) *Pipeline {
	return &Pipeline{
		scorers: map[string]scorer{
			"ip":          detectors.Network,
			"datetime":    detectors.Temporal,
			"userAgent":   detectors.Agent,
			"geolocation": detectors.Geographic,
		},
		resolver: resolver,
		store:    store,
		fallback: cache.NewMemoryStore(time.Duration(cfg.Limits.ResultCacheTTLSeconds) * time.Second),
		sink:     sink,
		cfg:      cfg,
		log:      logger.GetLogger().With().Str("component", "pipeline").Logger(),
	}
}

// Analyze scores one login request. principal identifies the caller for
// rate limiting, normally (api-key, client-address).
func (p *Pipeline) Analyze(ctx context.Context, req *session.Request, principal string) (*Result, error) {
	started := time.Now()
	requestID := newRequestID()
	log := p.log.With().Str("request_id", requestID).Logger()

	if err := req.Validate(p.cfg.Limits.MaxHistoryItems); err != nil {
		return nil, validationError(err)
	}
	req.Sanitize(p.cfg.Limits.MaxUserAgentLength)

	if err := p.checkRateLimit(ctx, principal); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindTimeout, Err: err}
	}

	key := cache.ResultKey(req.UserID, req.CurrentSession.IP, req.CurrentSession.UserAgent)
	if entry, err := p.store.GetResult(ctx, key); err == nil {
		log.Debug().Msg("returning cached result")
		// the meta reports the bundle that produced the scores, which may
		// predate a bundle swap on this instance
		return p.buildResult(requestID, req, entry.Scores, entry.ModelsVersion, started, true), nil
	}

	p.enrich(ctx, &req.CurrentSession)

	scores := p.dispatch(ctx, &req.CurrentSession, req.LoginHistory)
	scores.Overall = p.fuse(scores)

	result := p.buildResult(requestID, req, scores, p.cfg.Models.BundleVersion, started, false)

	entry := &cache.Entry{
		Scores:        scores,
		ModelsVersion: p.cfg.Models.BundleVersion,
		CreatedAt:     time.Now().UnixMilli(),
	}
	ttl := time.Duration(p.cfg.Limits.ResultCacheTTLSeconds) * time.Second
	if err := p.store.SetResult(ctx, key, entry, ttl); err != nil {
		log.Warn().Err(err).Msg("result cache write failed")
	}

	p.sink.EnqueueRecord(&audit.Record{
		RequestID:          requestID,
		UserID:             req.UserID,
		IP:                 req.CurrentSession.IP,
		SessionFingerprint: req.CurrentSession.Fingerprint(),
		Scores:             scores,
		ModelsVersion:      p.cfg.Models.BundleVersion,
		ProcessingMillis:   result.Meta.ProcessingTime,
		CreatedAt:          time.Now().UTC(),
	})

	return result, nil
}

// Feedback validates and forwards an analyst verdict to the audit sink.
func (p *Pipeline) Feedback(fb *audit.Feedback) error {
	if fb.RequestID == "" {
		return validationError(fmt.Errorf("requestId is required"))
	}
	fb.ReceivedAt = time.Now().UTC()
	p.sink.EnqueueFeedback(fb)
	return nil
}

// checkRateLimit enforces the windowed counter. A failing shared store
// falls back to the in-process counter with identical semantics.
func (p *Pipeline) checkRateLimit(ctx context.Context, principal string) error {
	window := time.Duration(p.cfg.Limits.RateLimitWindowSeconds) * time.Second

	count, err := p.store.IncrementRate(ctx, principal, window)
	if err != nil {
		p.log.Warn().Err(err).Msg("shared rate counter unavailable, using local counter")
		count, err = p.fallback.IncrementRate(ctx, principal, window)
		if err != nil {
			return nil
		}
	}
	if count > int64(p.cfg.Limits.RateLimitRequests) {
		return &Error{Kind: KindRateLimited, Err: fmt.Errorf("%w: %d requests in window", errRateExhausted, count)}
	}
	return nil
}

// enrich attaches a location to the session via a single bounded lookup.
// Misses and timeouts degrade to the unknown location.
func (p *Pipeline) enrich(ctx context.Context, s *session.Session) {
	if p.resolver == nil {
		s.Location = session.UnknownLocation()
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Server.GeoLookupTimeoutMillis)*time.Millisecond)
	defer cancel()

	loc, err := p.resolver.Lookup(lookupCtx, s.IP)
	if err != nil {
		p.log.Debug().Err(err).Str("ip", s.IP).Msg("geolocation lookup missed")
		s.Location = session.UnknownLocation()
		return
	}
	s.Location = loc
}

type factorScore struct {
	factor string
	score  int
}

// dispatch runs the four detectors in parallel under the request deadline.
// A detector that has not reported when the deadline elapses contributes the
// neutral score instead; the request always completes with four factors.
func (p *Pipeline) dispatch(ctx context.Context, s *session.Session, history []session.HistoryItem) session.Scores {
	deadline := time.Duration(p.cfg.Server.RequestTimeoutMillis) * time.Millisecond
	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make(chan factorScore, len(p.scorers))
	for factor, d := range p.scorers {
		factor, d := factor, d
		go func() {
			results <- factorScore{factor: factor, score: d.Score(s, history)}
		}()
	}

	neutral := p.cfg.Scoring.NeutralScore
	collected := map[string]int{}
	for len(collected) < len(p.scorers) {
		select {
		case r := <-results:
			collected[r.factor] = r.score
		case <-dispatchCtx.Done():
			for factor := range p.scorers {
				if _, ok := collected[factor]; !ok {
					p.log.Warn().Str("factor", factor).Msg("detector missed its slice, scoring neutral")
					collected[factor] = neutral
				}
			}
		}
	}

	return session.Scores{
		IP:          collected["ip"],
		Datetime:    collected["datetime"],
		UserAgent:   collected["userAgent"],
		Geolocation: collected["geolocation"],
	}
}

// fuse combines the four factor scores under the fixed weights.
func (p *Pipeline) fuse(scores session.Scores) int {
	w := p.cfg.Scoring.Weights
	weighted := float64(scores.IP)*w.IP +
		float64(scores.Datetime)*w.Datetime +
		float64(scores.UserAgent)*w.UserAgent +
		float64(scores.Geolocation)*w.Geolocation
	return util.ClampScore(util.RoundWeighted(weighted))
}

func (p *Pipeline) buildResult(requestID string, req *session.Request, scores session.Scores, modelsVersion string, started time.Time, cacheHit bool) *Result {
	return &Result{
		Meta: Meta{
			RequestID:      requestID,
			UserID:         req.UserID,
			Timestamp:      time.Now().UnixMilli(),
			ProcessingTime: time.Since(started).Milliseconds(),
			ModelsVersion:  modelsVersion,
			CacheHit:       cacheHit,
		},
		Scores: scores,
	}
}

// newRequestID returns an opaque "req_" identifier with at least twelve hex
// characters of entropy.
func newRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		// the random source failing is effectively impossible; fall back to
		// a direct read so the request still gets an identifier
		var buf [6]byte
		_, _ = rand.Read(buf[:])
		return "req_" + hex.EncodeToString(buf[:])
	}
	return "req_" + hex.EncodeToString(id[:6])
}
