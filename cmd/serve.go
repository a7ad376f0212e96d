package cmd

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/xayone/riskd/audit"
	"github.com/xayone/riskd/cache"
	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/detector"
	"github.com/xayone/riskd/geoip"
	"github.com/xayone/riskd/logger"
	"github.com/xayone/riskd/model"
	"github.com/xayone/riskd/pipeline"
	"github.com/xayone/riskd/server"
)

const auditWritesPerSecond = 200

var ServeCommand = &cli.Command{
	Name:      "serve",
	Usage:     "run the scoring service",
	UsageText: "serve [--config FILE]",
	Args:      false,
	Flags: []cli.Flag{
		ConfigFlag(false),
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() > 0 {
			return ErrTooManyArguments
		}
		return RunServeCommand(afero.NewOsFs(), cCtx.String("config"))
	},
}

// RunServeCommand assembles every collaborator from configuration and runs
// the HTTP server until it fails.
func RunServeCommand(afs afero.Fs, configPath string) error {
	log := logger.GetLogger()

	cfg, err := loadConfig(afs, configPath)
	if err != nil {
		return err
	}

	bundle := loadBundle(afs, cfg)
	detectors := detector.NewSet(cfg, bundle)

	store := buildStore(cfg)
	defer store.Close()

	sink := buildSink(cfg)
	defer sink.Close()

	resolver := buildResolver(cfg)
	if resolver != nil {
		defer resolver.Close()
	}

	p := pipeline.New(cfg, detectors, resolver, store, sink)
	srv := server.New(cfg, p, detectors, store, sink, config.Version)

	log.Info().
		Str("version", config.Version).
		Bool("models_loaded", bundle.Complete()).
		Msg("starting risk scoring service")

	return srv.Run()
}

// loadBundle tries the configured bundle directory. Factors whose artifact
// is missing or mismatched run rules-only; the others keep their models.
func loadBundle(afs afero.Fs, cfg *config.Config) *model.Bundle {
	log := logger.GetLogger()

	bundle, failures := model.LoadBundle(afs, cfg.Models.BundleDirectory, cfg.Models.BundleVersion, detector.FeatureWidths())
	for factor, err := range failures {
		log.Warn().Err(err).
			Str("factor", factor).
			Str("directory", cfg.Models.BundleDirectory).
			Msg("model artifact unavailable, detector runs rules-only")
	}
	return bundle
}

func buildStore(cfg *config.Config) cache.Store {
	log := logger.GetLogger()
	ttl := time.Duration(cfg.Limits.ResultCacheTTLSeconds) * time.Second

	if cfg.Env.RedisAddress == "" {
		log.Info().Msg("no REDIS_ADDRESS configured, using in-process cache")
		return cache.NewMemoryStore(ttl)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := cache.NewRedisStore(ctx, cfg.Env.RedisAddress)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, falling back to in-process cache")
		return cache.NewMemoryStore(ttl)
	}
	return store
}

func buildSink(cfg *config.Config) audit.Sink {
	log := logger.GetLogger()

	if cfg.Env.MongoURI == "" {
		log.Info().Msg("no MONGO_URI configured, audit records are discarded")
		return audit.NopSink{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sink, err := audit.NewMongoSink(ctx, cfg.Env.MongoURI, auditWritesPerSecond)
	if err != nil {
		log.Warn().Err(err).Msg("document store unavailable, audit records are discarded")
		return audit.NopSink{}
	}
	return sink
}

func buildResolver(cfg *config.Config) geoip.Resolver {
	log := logger.GetLogger()

	if cfg.Server.GeoIPDatabasePath == "" {
		log.Info().Msg("no geoip database configured, locations resolve as unknown")
		return nil
	}

	resolver, err := geoip.NewMaxMindResolver(cfg.Server.GeoIPDatabasePath)
	if err != nil {
		log.Warn().Err(err).
			Str("path", cfg.Server.GeoIPDatabasePath).
			Msg("geoip database failed to open, locations resolve as unknown")
		return nil
	}
	return resolver
}
