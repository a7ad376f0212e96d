// Package cache provides the result cache and the rate-limit counters. The
// Redis implementation is authoritative for multi-instance deployments; the
// in-process implementation carries the same semantics for single-instance
// and test use.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xayone/riskd/session"
)

var (
	ErrMiss        = errors.New("cache miss")
	ErrUnavailable = errors.New("cache backend unavailable")
)

var entryJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one cached scoring result.
type Entry struct {
	Scores        session.Scores `json:"scores"`
	ModelsVersion string         `json:"modelsVersion"`
	CreatedAt     int64          `json:"createdAt"`
}

// Store combines the result cache with the request rate limiter.
type Store interface {
	// GetResult returns the cached entry for a key, or ErrMiss.
	GetResult(ctx context.Context, key string) (*Entry, error)
	// SetResult stores an entry under a key for the given TTL.
	SetResult(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	// IncrementRate bumps the counter for a principal and returns the new
	// count within the current window. The first increment starts the window.
	IncrementRate(ctx context.Context, principal string, window time.Duration) (int64, error)
	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool
	Close() error
}

// ResultKey derives the cache key for a scoring request. Identical sessions
// from the same principal share a key; the agent string is truncated so
// oversized agents cannot blow up key cardinality.
func ResultKey(userID, ip, userAgent string) string {
	if len(userAgent) > 50 {
		userAgent = userAgent[:50]
	}
	sum := sha256.Sum256([]byte(userID + "|" + ip + "|" + userAgent))
	return "risk:result:" + hex.EncodeToString(sum[:16])
}

// RateKey derives the rate-limit counter key for a principal.
func RateKey(principal string) string {
	return "risk:rate:" + principal
}
