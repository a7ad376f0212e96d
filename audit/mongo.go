package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xayone/riskd/logger"
)

// MongoSink writes audit documents to MongoDB from a single background
// worker. A rate limiter throttles writes so an audit burst cannot starve
// the store; when the queue fills, records are dropped and counted rather
// than blocking the scoring path.
type MongoSink struct {
	client   *mongo.Client
	database *mongo.Database

	queue   chan any
	limiter *rate.Limiter
	workers *errgroup.Group
	cancel  context.CancelFunc
	log     zerolog.Logger
}

// NewMongoSink connects to uri and starts the background writer.
func NewMongoSink(ctx context.Context, uri string, writesPerSecond float64) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to document store: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging document store: %w", err)
	}

	burst := int(writesPerSecond)
	if burst < 1 {
		burst = 1
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	group, workerCtx := errgroup.WithContext(workerCtx)

	sink := &MongoSink{
		client:   client,
		database: client.Database(DatabaseName),
		queue:    make(chan any, defaultQueueCapacity),
		limiter:  rate.NewLimiter(rate.Limit(writesPerSecond), burst),
		workers:  group,
		cancel:   cancel,
		log:      logger.GetLogger().With().Str("component", "audit").Logger(),
	}

	group.Go(func() error {
		sink.run(workerCtx)
		return nil
	})

	return sink, nil
}

func (s *MongoSink) run(ctx context.Context) {
	for doc := range s.queue {
		if err := s.limiter.Wait(ctx); err != nil {
			// shutting down; drain remaining documents without throttling
			if ctx.Err() == nil {
				continue
			}
		}
		s.write(doc)
	}
}

func (s *MongoSink) write(doc any) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	var (
		collection string
		err        error
	)
	switch d := doc.(type) {
	case *Record:
		collection = analysisCollection
		_, err = s.database.Collection(collection).InsertOne(ctx, d)
	case *Feedback:
		collection = feedbackCollection
		_, err = s.database.Collection(collection).InsertOne(ctx, d)
	default:
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Msg("dropping audit document after failed insert")
	}
}

// EnqueueRecord queues a scoring record, dropping it if the queue is full.
func (s *MongoSink) EnqueueRecord(record *Record) {
	s.enqueue(record)
}

// EnqueueFeedback queues an analyst feedback document.
func (s *MongoSink) EnqueueFeedback(fb *Feedback) {
	s.enqueue(fb)
}

func (s *MongoSink) enqueue(doc any) {
	select {
	case s.queue <- doc:
	default:
		s.log.Warn().Msg("audit queue full, dropping document")
	}
}

func (s *MongoSink) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary()) == nil
}

// Close stops accepting documents, waits for the queue to drain and
// disconnects.
func (s *MongoSink) Close() error {
	close(s.queue)
	err := s.workers.Wait()
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	if derr := s.client.Disconnect(ctx); derr != nil && err == nil {
		err = derr
	}
	return err
}
