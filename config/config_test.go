package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestReadFileConfig(t *testing.T) {
	fs := afero.NewMemMapFs()

	t.Run("partial config merges over defaults", func(t *testing.T) {
		contents := []byte(`
		{
			limits: {
				rate_limit_requests: 25
			}
		}`)
		require.NoError(t, afero.WriteFile(fs, "/partial.hjson", contents, 0o644))

		cfg, err := ReadFileConfig(fs, "/partial.hjson")
		require.NoError(t, err)
		require.Equal(t, 25, cfg.Limits.RateLimitRequests)
		require.Equal(t, 300, cfg.Limits.ResultCacheTTLSeconds, "untouched fields keep defaults")
		require.Equal(t, ":8080", cfg.Server.ListenAddress)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := ReadFileConfig(fs, "/missing.hjson")
		require.Error(t, err)
	})
}

func TestReadConfigFromMemory(t *testing.T) {
	tests := []struct {
		name          string
		contents      string
		expectedError bool
		check         func(t *testing.T, cfg *Config)
	}{
		{
			name:     "empty object yields the defaults",
			contents: `{}`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, GetDefaultConfig().Scoring, cfg.Scoring)
			},
		},
		{
			name: "fusion weights must sum to one",
			contents: `
			{
				scoring: {
					weights: { ip: 0.5, datetime: 0.5, user_agent: 0.5, geolocation: 0.5 }
				}
			}`,
			expectedError: true,
		},
		{
			name: "known bad addresses must parse",
			contents: `
			{
				scoring: {
					known_bad_addresses: ["not-a-network"]
				}
			}`,
			expectedError: true,
		},
		{
			name: "known bad addresses accept bare addresses and CIDRs",
			contents: `
			{
				scoring: {
					known_bad_addresses: ["198.51.100.7", "203.0.113.0/24"]
				}
			}`,
			check: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Scoring.KnownBadAddresses, 2)
			},
		},
		{
			name: "timeouts are bounded",
			contents: `
			{
				server: { request_timeout_millis: 1 }
			}`,
			expectedError: true,
		},
		{
			name: "extreme speed must exceed max speed",
			contents: `
			{
				scoring: { max_travel_speed_kmh: 900, extreme_travel_speed_kmh: 800 }
			}`,
			expectedError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := ReadConfigFromMemory([]byte(test.contents), Env{LogLevel: 1})
			if test.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if test.check != nil {
				test.check(t, cfg)
			}
		})
	}
}

func TestReset(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Env.APIKeys = "secret"
	cfg.Limits.RateLimitRequests = 7

	require.NoError(t, cfg.Reset())
	require.Equal(t, 100, cfg.Limits.RateLimitRequests, "values return to defaults")
	require.Equal(t, "secret", cfg.Env.APIKeys, "env survives a reset")
}

func TestAPIKeySet(t *testing.T) {
	cfg := GetDefaultConfig()

	require.Empty(t, cfg.APIKeySet())

	cfg.Env.APIKeys = " one, two ,,three"
	keys := cfg.APIKeySet()
	require.Len(t, keys, 3)
	require.Contains(t, keys, "one")
	require.Contains(t, keys, "two")
	require.Contains(t, keys, "three")
}
