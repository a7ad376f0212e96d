package detector

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/model"
	"github.com/xayone/riskd/session"
)

// base timestamp: 2024-03-15 14:30:00 UTC
const baseMillis int64 = 1710513000000

func rulesOnlySet(t *testing.T) *Set {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Scoring.KnownBadAddresses = []string{"198.51.100.0/24"}
	return NewSet(&cfg, nil)
}

func plainSession(ip string) *session.Session {
	return &session.Session{
		IP:        ip,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timestamp: baseMillis,
	}
}

func historyAt(ip, agent string, offsetMillis int64, loc session.Location, status string) session.HistoryItem {
	return session.HistoryItem{
		IP:          ip,
		UserAgent:   agent,
		Timestamp:   baseMillis + offsetMillis,
		Location:    loc,
		LoginStatus: status,
	}
}

func TestNewSetPartialBundle(t *testing.T) {
	// a bundle missing some factors degrades only those detectors
	fs := afero.NewMemMapFs()
	width := FeatureWidths()[model.FactorNetwork]
	params, err := json.Marshal(map[string]any{
		"eps":          0.3,
		"core_samples": [][]float64{make([]float64, width)},
	})
	require.NoError(t, err)
	require.NoError(t, model.SaveArtifact(fs, "/models", model.FactorNetwork, &model.Artifact{
		Algorithm:    model.AlgorithmDBSCAN,
		Version:      "v1.0.0",
		FeatureCount: width,
		Normalizer: model.Normalizer{
			Mean:  make([]float64, width),
			Scale: onesVector(width),
		},
		Params: params,
	}))

	bundle, failures := model.LoadBundle(fs, "/models", "v1.0.0", FeatureWidths())
	require.Len(t, failures, 3)

	cfg := config.GetDefaultConfig()
	set := NewSet(&cfg, bundle)

	require.False(t, set.Network.RulesOnly())
	require.True(t, set.Temporal.RulesOnly())
	require.True(t, set.Agent.RulesOnly())
	require.True(t, set.Geographic.RulesOnly())
}

func onesVector(width int) []float64 {
	v := make([]float64, width)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestRulesOnlyDetectorsStayInRange(t *testing.T) {
	set := rulesOnlySet(t)
	s := plainSession("203.0.113.10")

	for _, d := range []*Detector{set.Network, set.Temporal, set.Agent, set.Geographic} {
		require.True(t, d.RulesOnly())
		score := d.Score(s, nil)
		require.GreaterOrEqual(t, score, 0, d.Factor())
		require.LessOrEqual(t, score, 100, d.Factor())
	}
}

func TestNetworkOverlay(t *testing.T) {
	set := rulesOnlySet(t)

	t.Run("clean public address keeps the neutral base", func(t *testing.T) {
		require.Equal(t, 50, set.Network.Score(plainSession("203.0.113.10"), nil))
	})

	t.Run("known bad address floors at ninety", func(t *testing.T) {
		score := set.Network.Score(plainSession("198.51.100.7"), nil)
		require.GreaterOrEqual(t, score, 90)
	})

	t.Run("tor exit raises by thirty", func(t *testing.T) {
		require.Equal(t, 80, set.Network.Score(plainSession("185.220.101.9"), nil))
	})

	t.Run("datacenter raises by twenty", func(t *testing.T) {
		require.Equal(t, 70, set.Network.Score(plainSession("104.16.132.229"), nil))
	})

	t.Run("private range raises by ten", func(t *testing.T) {
		require.Equal(t, 60, set.Network.Score(plainSession("10.0.0.5"), nil))
	})

	t.Run("address churn in the last hour", func(t *testing.T) {
		var history []session.HistoryItem
		for i, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4"} {
			history = append(history, historyAt(ip, "Mozilla/5.0", -int64(i+1)*60000, session.Location{}, session.StatusSuccess))
		}
		require.Equal(t, 70, set.Network.Score(plainSession("203.0.113.10"), history))
	})
}

func TestTemporalOverlay(t *testing.T) {
	set := rulesOnlySet(t)

	t.Run("small hours raise", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		s.Timestamp = baseMillis - 11*3600000 // 03:30 UTC
		require.Equal(t, 70, set.Temporal.Score(s, nil))
	})

	t.Run("burst of logins in five minutes", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		var history []session.HistoryItem
		for i := int64(1); i <= 6; i++ {
			history = append(history, historyAt("203.0.113.10", "Mozilla/5.0", -i*10000, session.Location{}, session.StatusSuccess))
		}
		require.Equal(t, 80, set.Temporal.Score(s, history))
	})

	t.Run("three recent logins is the softer raise", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		var history []session.HistoryItem
		for i := int64(1); i <= 3; i++ {
			history = append(history, historyAt("203.0.113.10", "Mozilla/5.0", -i*60000, session.Location{}, session.StatusSuccess))
		}
		require.Equal(t, 65, set.Temporal.Score(s, history))
	})

	t.Run("failure streak raises", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		var history []session.HistoryItem
		for i := int64(1); i <= 4; i++ {
			history = append(history, historyAt("203.0.113.10", "Mozilla/5.0", -i*7200000, session.Location{}, session.StatusFailure))
		}
		require.Equal(t, 70, set.Temporal.Score(s, history))
	})

	t.Run("metronome cadence raises", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		var history []session.HistoryItem
		for i := int64(1); i <= 7; i++ {
			history = append(history, historyAt("203.0.113.10", "Mozilla/5.0", -i*7200000, session.Location{}, session.StatusSuccess))
		}
		require.Equal(t, 75, set.Temporal.Score(s, history))
	})
}

func TestAgentOverlay(t *testing.T) {
	set := rulesOnlySet(t)

	tests := []struct {
		name     string
		agent    string
		expected int
	}{
		{"modern desktop chrome keeps neutral", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", 50},
		{"headless chrome floors at ninety", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36", 90},
		{"selenium marker floors at eighty-five", "Mozilla/5.0 selenium webdriver test harness runner", 85},
		{"short agent floors at seventy-five", "MyApp/1.0", 75},
		{"ancient chrome raises twenty", "Mozilla/5.0 (Windows NT 6.1; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/49.0.2623.112 Safari/537.36", 70},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := plainSession("203.0.113.10")
			s.UserAgent = test.agent
			require.Equal(t, test.expected, set.Agent.Score(s, nil))
		})
	}

	t.Run("touch on non-mobile windows raises", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		yes := true
		s.TouchSupport = &yes
		require.Equal(t, 65, set.Agent.Score(s, nil))
	})

	t.Run("agent churn raises", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		var history []session.HistoryItem
		for i := int64(1); i <= 6; i++ {
			agent := "Mozilla/5.0 variant " + string(rune('a'+i))
			history = append(history, historyAt("203.0.113.10", agent, -i*3600000, session.Location{}, session.StatusSuccess))
		}
		require.Equal(t, 60, set.Agent.Score(s, history))
	})
}

func TestGeographicOverlay(t *testing.T) {
	set := rulesOnlySet(t)
	nyc := session.Location{Country: "United States", City: "New York", Latitude: 40.7128, Longitude: -74.0060}
	london := session.Location{Country: "United Kingdom", City: "London", Latitude: 51.5074, Longitude: -0.1278}

	t.Run("impossible travel floors at eighty-five", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		s.Location = &session.Location{Country: london.Country, City: london.City, Latitude: london.Latitude, Longitude: london.Longitude}
		history := []session.HistoryItem{historyAt("198.51.100.7", "Mozilla/5.0", -4*3600000, nyc, session.StatusSuccess)}
		require.GreaterOrEqual(t, set.Geographic.Score(s, history), 85)
	})

	t.Run("extreme travel floors at ninety-five", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		s.Location = &session.Location{Country: london.Country, City: london.City, Latitude: london.Latitude, Longitude: london.Longitude}
		history := []session.HistoryItem{historyAt("198.51.100.7", "Mozilla/5.0", -3600000, nyc, session.StatusSuccess)}
		require.GreaterOrEqual(t, set.Geographic.Score(s, history), 95)
	})

	t.Run("high risk country raises", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		s.Location = &session.Location{Country: "North Korea", City: "Pyongyang", Latitude: 39.0392, Longitude: 125.7625}
		require.Equal(t, 65, set.Geographic.Score(s, nil))
	})

	t.Run("country hopping raises", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		countries := []session.Location{
			{Country: "Germany", Latitude: 52.52, Longitude: 13.405},
			{Country: "France", Latitude: 48.8566, Longitude: 2.3522},
			{Country: "Spain", Latitude: 40.4168, Longitude: -3.7038},
			{Country: "Italy", Latitude: 41.9028, Longitude: 12.4964},
		}
		var history []session.HistoryItem
		for i, loc := range countries {
			history = append(history, historyAt("203.0.113.10", "Mozilla/5.0", -int64(i+1)*3600000, loc, session.StatusSuccess))
		}
		score := set.Geographic.Score(s, history)
		require.GreaterOrEqual(t, score, 70)
	})

	t.Run("unknown location stays neutral", func(t *testing.T) {
		s := plainSession("203.0.113.10")
		s.Location = session.UnknownLocation()
		require.Equal(t, 50, set.Geographic.Score(s, nil))
	})
}

func TestOverlayMonotonicity(t *testing.T) {
	// removing history cannot reduce a rule-driven floor for the same session
	set := rulesOnlySet(t)
	s := plainSession("185.220.101.9")
	s.UserAgent = "HeadlessChrome agent string long enough"

	withHistory := []session.HistoryItem{
		historyAt("203.0.113.1", "Mozilla/5.0", -60000, session.Location{}, session.StatusFailure),
	}

	require.GreaterOrEqual(t, set.Network.Score(s, withHistory), set.Network.Score(s, nil)-0)
	require.GreaterOrEqual(t, set.Agent.Score(s, nil), 90)
	require.GreaterOrEqual(t, set.Agent.Score(s, withHistory), 90, "floors survive history changes")
}
