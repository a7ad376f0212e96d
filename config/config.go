package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xayone/riskd/util"

	"github.com/go-playground/validator/v10"
	"github.com/hjson/hjson-go/v4"
	"github.com/spf13/afero"
)

var Version string

const DefaultConfigPath = "./config.hjson"

var errReadingConfigFile = errors.New("encountered an error while reading the config file")

type (
	Config struct {
		Env     Env     `json:"env"`
		Server  Server  `json:"server" validate:"required"`
		Limits  Limits  `json:"limits" validate:"required"`
		Scoring Scoring `json:"scoring" validate:"required"`
		Models  Models  `json:"models" validate:"required"`
	}

	Env struct { // set by .env file
		RedisAddress string `json:"-"` // REDIS_ADDRESS, empty disables the shared cache
		MongoURI     string `json:"-"` // MONGO_URI, empty disables the audit store
		APIKeys      string `json:"-"` // API_KEYS, comma separated; empty disables auth
		LogLevel     int8   `validate:"min=-1,max=6"`
	}

	Server struct {
		ListenAddress           string `json:"listen_address" validate:"required"`
		RequestTimeoutMillis    int    `json:"request_timeout_millis" validate:"gte=10,lte=60000"`
		GeoLookupTimeoutMillis  int    `json:"geo_lookup_timeout_millis" validate:"gte=10,lte=10000"`
		GeoIPDatabasePath       string `json:"geoip_database_path"`
		TrustedProxyHeadersOnly bool   `json:"trusted_proxy_headers_only"`
	}

	Limits struct {
		RateLimitRequests      int `json:"rate_limit_requests" validate:"gte=1,lte=100000"`
		RateLimitWindowSeconds int `json:"rate_limit_window_seconds" validate:"gte=1,lte=3600"`
		ResultCacheTTLSeconds  int `json:"result_cache_ttl_seconds" validate:"gte=1,lte=86400"`
		MaxHistoryItems        int `json:"max_history_items" validate:"gte=1,lte=10000"`
		MaxUserAgentLength     int `json:"max_user_agent_length" validate:"gte=20,lte=10000"`
	}

	Scoring struct {
		Weights               FusionWeights `json:"weights" validate:"required"`
		MaxTravelSpeedKmh     float64       `json:"max_travel_speed_kmh" validate:"gte=100,lte=5000"`
		ExtremeTravelSpeedKmh float64       `json:"extreme_travel_speed_kmh" validate:"gtfield=MaxTravelSpeedKmh"`
		NeutralScore          int           `json:"neutral_score" validate:"gte=0,lte=100"`
		KnownBadAddresses     []string      `json:"known_bad_addresses"`
	}

	// FusionWeights are the fixed per-factor weights used to fuse the four
	// detector scores into the overall score. They must sum to 1.
	FusionWeights struct {
		IP          float64 `json:"ip" validate:"gte=0,lte=1"`
		Datetime    float64 `json:"datetime" validate:"gte=0,lte=1"`
		UserAgent   float64 `json:"user_agent" validate:"gte=0,lte=1"`
		Geolocation float64 `json:"geolocation" validate:"gte=0,lte=1"`
	}

	Models struct {
		BundleDirectory string `json:"bundle_directory" validate:"required"`
		BundleVersion   string `json:"bundle_version" validate:"required"`
	}
)

// ReadFileConfig attempts to read the config file at the specified path and
// returns a config object, using the default config if the file was unable to be read.
func ReadFileConfig(afs afero.Fs, path string) (*Config, error) {
	contents, err := util.GetFileContents(afs, path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := unmarshal(contents, &cfg, nil); err != nil {
		return nil, fmt.Errorf("%w, located by default at '%s', please correct the issue in the config and try again:\n\t- %w", errReadingConfigFile, path, err)
	}

	return &cfg, nil
}

// ReadConfigFromMemory reads the config from bytes already read into memory as opposed to reading from a file
// It also provides its own environment struct that must already be completely set
func ReadConfigFromMemory(data []byte, env Env) (*Config, error) {
	var cfg Config
	if err := unmarshal(data, &cfg, &env); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setEnv() error {
	// the shared cache and audit store are optional collaborators; an empty
	// address puts the corresponding adapter in local/disabled mode
	c.Env.RedisAddress = os.Getenv("REDIS_ADDRESS")
	c.Env.MongoURI = os.Getenv("MONGO_URI")
	c.Env.APIKeys = os.Getenv("API_KEYS")

	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr != "" {
		logLevel, err := strconv.Atoi(logLevelStr)
		if err != nil {
			return fmt.Errorf("unable to convert LOG_LEVEL to int: %w", err)
		}
		c.Env.LogLevel = int8(logLevel)
	} else {
		c.Env.LogLevel = 1
	}

	return nil
}

// unmarshal unmarshals the data into the config struct, sets the environment variables, and validates the values
func unmarshal(data []byte, cfg *Config, env *Env) error {
	if err := hjson.Unmarshal(data, &cfg); err != nil {
		return err
	}

	// set the environment struct
	// this MUST be done before validating the values, because the
	// validation checks for the presence of the environment variables
	if env == nil {
		if err := cfg.setEnv(); err != nil {
			return fmt.Errorf("unable to set environment: %w", err)
		}
	} else {
		cfg.Env = *env
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON unmarshals the JSON bytes into the config struct
// overrides the default unmarshalling method to allow for custom parsing
func (c *Config) UnmarshalJSON(bytes []byte) error {
	// create temporary config struct to unmarshal into
	// not doing this would result in an infinite unmarshalling loop
	type tmpConfig Config
	defaultCfg := GetDefaultConfig()

	tmpCfg := tmpConfig(defaultCfg)

	err := hjson.Unmarshal(bytes, &tmpCfg)
	if err != nil {
		return err
	}

	cfg := Config(tmpCfg)

	// known-bad addresses must parse up front so a bad feed entry fails
	// loudly instead of silently never matching
	if _, err := util.ParseSubnets(cfg.Scoring.KnownBadAddresses); err != nil {
		return fmt.Errorf("invalid known_bad_addresses entry: %w", err)
	}

	*c = cfg

	return nil
}

// GetDefaultConfig returns a Config object with default values
func GetDefaultConfig() Config {
	// set version to dev if not set
	if Version == "" {
		Version = "dev"
	}

	return defaultConfig()
}

// Reset resets the config values to default
// note: Env values are not reset
func (cfg *Config) Reset() error {
	env := cfg.Env

	newConfig := GetDefaultConfig()

	*cfg = newConfig
	cfg.Env = env

	if err := cfg.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate validates the config struct values
func (cfg *Config) Validate() error {
	validate, err := NewValidator()
	if err != nil {
		return err
	}

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	return nil
}

// NewValidator creates a new validator with custom validation rules
func NewValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	// the four fusion weights must form a convex combination
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		value := sl.Current().Interface().(FusionWeights)
		totalWeight := value.IP + value.Datetime + value.UserAgent + value.Geolocation
		if math.Abs(totalWeight-1) > 1e-9 {
			sl.ReportError(value, "IP", "FusionWeights", "fusion_weights", "")
			sl.ReportError(value, "Datetime", "FusionWeights", "fusion_weights", "")
			sl.ReportError(value, "UserAgent", "FusionWeights", "fusion_weights", "")
			sl.ReportError(value, "Geolocation", "FusionWeights", "fusion_weights", "")
		}
	}, FusionWeights{})

	return v, nil
}

// APIKeySet splits the API_KEYS environment value into a lookup set.
// An empty set disables API key enforcement.
func (cfg *Config) APIKeySet() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, key := range strings.Split(cfg.Env.APIKeys, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}

// return a copy of the default config object
func defaultConfig() Config {
	return Config{
		Server: Server{
			ListenAddress:          ":8080",
			RequestTimeoutMillis:   200,
			GeoLookupTimeoutMillis: 100,
			GeoIPDatabasePath:      "",
		},
		Limits: Limits{
			RateLimitRequests:      100,
			RateLimitWindowSeconds: 60,
			ResultCacheTTLSeconds:  300,
			MaxHistoryItems:        1000,
			MaxUserAgentLength:     1000,
		},
		Scoring: Scoring{
			Weights: FusionWeights{
				IP:          0.30,
				Datetime:    0.20,
				UserAgent:   0.25,
				Geolocation: 0.25,
			},
			MaxTravelSpeedKmh:     900,
			ExtremeTravelSpeedKmh: 2000,
			NeutralScore:          50,
			KnownBadAddresses:     []string{},
		},
		Models: Models{
			BundleDirectory: "./models",
			BundleVersion:   "v1.0.0",
		},
	}
}
