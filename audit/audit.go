// Package audit persists scoring decisions and analyst feedback to the
// document store. Writes are fire-and-forget: the scoring path enqueues a
// record and returns without waiting for persistence.
package audit

import (
	"context"
	"time"

	"github.com/xayone/riskd/session"
)

const (
	DatabaseName         = "riskd"
	analysisCollection   = "analysis_audit"
	feedbackCollection   = "feedback"
	defaultWriteTimeout  = 5 * time.Second
	defaultQueueCapacity = 1024
)

// Record is one persisted scoring decision.
type Record struct {
	RequestID          string         `bson:"request_id" json:"requestId"`
	UserID             string         `bson:"user_id" json:"userId"`
	IP                 string         `bson:"ip" json:"ip"`
	SessionFingerprint string         `bson:"session_fingerprint" json:"sessionFingerprint"`
	Scores             session.Scores `bson:"scores" json:"scores"`
	ModelsVersion      string         `bson:"models_version" json:"modelsVersion"`
	CacheHit           bool           `bson:"cache_hit" json:"cacheHit"`
	ProcessingMillis   int64          `bson:"processing_millis" json:"processingMillis"`
	CreatedAt          time.Time      `bson:"created_at" json:"createdAt"`
}

// Feedback is an analyst's verdict on a previously scored request, used to
// label training data for the next model generation.
type Feedback struct {
	RequestID  string    `bson:"request_id" json:"requestId"`
	UserID     string    `bson:"user_id" json:"userId"`
	WasFraud   bool      `bson:"was_fraud" json:"wasFraud"`
	Comment    string    `bson:"comment,omitempty" json:"comment,omitempty"`
	ReceivedAt time.Time `bson:"received_at" json:"receivedAt"`
}

// Sink accepts audit writes. Enqueue methods never block the caller beyond
// queue admission and never surface backend errors to the scoring path.
type Sink interface {
	EnqueueRecord(record *Record)
	EnqueueFeedback(fb *Feedback)
	Healthy(ctx context.Context) bool
	Close() error
}

// NopSink drops everything. It serves deployments without a document store.
type NopSink struct{}

func (NopSink) EnqueueRecord(*Record)        {}
func (NopSink) EnqueueFeedback(*Feedback)    {}
func (NopSink) Healthy(context.Context) bool { return false }
func (NopSink) Close() error                 { return nil }
