package feature

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xayone/riskd/session"
)

// base timestamp: 2024-03-15 14:30:00 UTC (a Friday)
const baseMillis int64 = 1710513000000

func historyAt(ip string, offsetMillis int64, loc session.Location) session.HistoryItem {
	return session.HistoryItem{
		IP:          ip,
		UserAgent:   "Mozilla/5.0",
		Timestamp:   baseMillis + offsetMillis,
		Location:    loc,
		LoginStatus: session.StatusSuccess,
	}
}

func TestNetworkVector(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		history []session.HistoryItem
		check   func(t *testing.T, v []float64)
	}{
		{
			name: "known public address",
			ip:   "203.0.113.10",
			history: []session.HistoryItem{
				historyAt("203.0.113.10", -3600000, session.Location{}),
			},
			check: func(t *testing.T, v []float64) {
				require.EqualValues(t, 0, v[0], "address seen before is not new")
				require.EqualValues(t, 0, v[4], "public unicast is not suspicious")
			},
		},
		{
			name:    "new private address",
			ip:      "192.168.1.5",
			history: nil,
			check: func(t *testing.T, v []float64) {
				require.EqualValues(t, 1, v[0])
				require.EqualValues(t, 1, v[3], "private flag")
				require.EqualValues(t, 1, v[4], "private implies suspicious")
			},
		},
		{
			name:    "tor exit address",
			ip:      "185.220.101.9",
			history: nil,
			check: func(t *testing.T, v []float64) {
				require.EqualValues(t, 1, v[2], "tor flag")
				require.EqualValues(t, 1, v[4])
			},
		},
		{
			name:    "datacenter address",
			ip:      "104.16.132.229",
			history: nil,
			check: func(t *testing.T, v []float64) {
				require.EqualValues(t, 1, v[1], "datacenter flag")
			},
		},
		{
			name:    "unparsable address yields neutral zeros",
			ip:      "not-an-ip",
			history: nil,
			check: func(t *testing.T, v []float64) {
				require.Equal(t, make([]float64, NetworkFeatureCount), v)
			},
		},
		{
			name:    "ipv6 flag",
			ip:      "2606:4700::1",
			history: nil,
			check: func(t *testing.T, v []float64) {
				require.EqualValues(t, 1, v[7])
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := &session.Session{IP: test.ip, Timestamp: baseMillis}
			v := Network(s, test.history)
			require.Len(t, v, NetworkFeatureCount)
			test.check(t, v)
		})
	}
}

func TestAddressMagnitudeBounds(t *testing.T) {
	for _, raw := range []string{"0.0.0.1", "255.255.255.255", "8.8.8.8", "2001:db8::1", "ff02::1"} {
		m := addressMagnitude(net.ParseIP(raw))
		require.GreaterOrEqual(t, m, 0.0, raw)
		require.LessOrEqual(t, m, 1.0, raw)
	}
}

func TestTemporalVector(t *testing.T) {
	s := &session.Session{IP: "203.0.113.10", Timestamp: baseMillis}

	t.Run("empty history", func(t *testing.T) {
		v := Temporal(s, nil)
		require.Len(t, v, TemporalFeatureCount)
		require.InDelta(t, 14.0/23.0, v[0], 1e-9, "hour scaling")
		require.InDelta(t, 4.0/6.0, v[1], 1e-9, "friday is weekday 4")
		require.EqualValues(t, 0, v[2], "friday is not a weekend")
		require.EqualValues(t, 1, v[3], "14:30 is business hours")
		require.EqualValues(t, 0, v[4], "14:30 is not night")
		require.EqualValues(t, 1, v[5], "no prior login saturates recency")
		require.EqualValues(t, 0, v[9], "no history means zero weekly frequency")
	})

	t.Run("recent logins drive velocity and burst", func(t *testing.T) {
		var history []session.HistoryItem
		for i := int64(1); i <= 8; i++ {
			history = append(history, historyAt("203.0.113.10", -i*60000, session.Location{}))
		}
		v := Temporal(s, history)
		require.EqualValues(t, 1, v[7], "more than five logins in the last hour is a burst")
		require.Greater(t, v[6], 0.0)
	})

	t.Run("hour deviation is circular", func(t *testing.T) {
		// history clustered around midnight: 23:00 and 01:00
		history := []session.HistoryItem{
			historyAt("203.0.113.10", -15*3600000-1800000, session.Location{}), // 23:00 prior day
			historyAt("203.0.113.10", -13*3600000-1800000, session.Location{}), // 01:00
		}
		v := Temporal(s, history)
		// mean hour is 0; session hour 14 differs by 10 on the circle
		require.InDelta(t, 10.0/12.0, v[8], 1e-9)
	})
}

func TestAgentVector(t *testing.T) {
	const chromeAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	t.Run("desktop chrome on windows", func(t *testing.T) {
		v := Agent(&session.Session{UserAgent: chromeAgent})
		require.Len(t, v, AgentFeatureCount)
		require.EqualValues(t, 0, v[0], "mobile")
		require.EqualValues(t, 1, v[2], "desktop")
		require.EqualValues(t, 0, v[3], "bot")
		require.EqualValues(t, 1, v[4], "chrome")
		require.EqualValues(t, 0, v[5], "firefox")
		require.EqualValues(t, 1, v[8], "windows")
		require.InDelta(t, 120.0/200.0, v[13], 1e-9, "major version scaling")
	})

	t.Run("empty agent is neutral", func(t *testing.T) {
		v := Agent(&session.Session{UserAgent: "   "})
		require.Len(t, v, AgentFeatureCount)
		for i, f := range v {
			require.EqualValues(t, 0.5, f, "element %d", i)
		}
	})

	t.Run("automation keywords accumulate", func(t *testing.T) {
		v := Agent(&session.Session{UserAgent: "python-requests/2.31 curl wget bot spider"})
		require.EqualValues(t, 1, v[14], "five or more keywords saturate the signal")
	})

	t.Run("fingerprint presence mapping", func(t *testing.T) {
		yes := true
		eight := 8
		v := Agent(&session.Session{
			UserAgent:           chromeAgent,
			CanvasFingerprint:   "abc123",
			Plugins:             []string{"pdf", "widevine"},
			IsCookieEnabled:     &yes,
			TouchSupport:        &yes,
			HardwareConcurrency: &eight,
		})
		require.EqualValues(t, 1, v[17], "canvas present")
		require.InDelta(t, 0.2, v[18], 1e-9, "two plugins of ten")
		require.EqualValues(t, 1, v[19], "cookies enabled")
		require.EqualValues(t, 1, v[20], "touch supported")
		require.InDelta(t, 0.25, v[21], 1e-9, "eight of thirty-two cores")
	})

	t.Run("absent fingerprint fields", func(t *testing.T) {
		v := Agent(&session.Session{UserAgent: chromeAgent})
		require.EqualValues(t, 0.5, v[18], "nil plugins is unknown")
		require.EqualValues(t, 0, v[19], "nil cookie flag reads as disabled")
		require.EqualValues(t, 0.5, v[21], "nil concurrency is unknown")
	})
}

func TestShannonEntropyBounds(t *testing.T) {
	require.EqualValues(t, 0, shannonEntropy(""))
	require.EqualValues(t, 0, shannonEntropy("aaaa"))
	e := shannonEntropy("Mozilla/5.0 (X11; Linux x86_64)")
	require.Greater(t, e, 0.0)
	require.LessOrEqual(t, e, 8.0)
}

func TestGeographicVector(t *testing.T) {
	nyc := session.Location{Country: "United States", City: "New York", Latitude: 40.7128, Longitude: -74.0060}
	london := session.Location{Country: "United Kingdom", City: "London", Latitude: 51.5074, Longitude: -0.1278}

	t.Run("familiar location", func(t *testing.T) {
		s := &session.Session{IP: "203.0.113.10", Timestamp: baseMillis, Location: &nyc}
		history := []session.HistoryItem{
			historyAt("203.0.113.10", -86400000, nyc),
			historyAt("203.0.113.10", -2*86400000, nyc),
		}
		v := Geographic(s, history)
		require.Len(t, v, GeographicFeatureCount)
		require.EqualValues(t, 0, v[0], "country seen before")
		require.EqualValues(t, 0, v[1], "city seen before")
		require.InDelta(t, 0.10, v[2], 1e-9, "US country risk")
		require.EqualValues(t, 0, v[6], "no impossible travel")
	})

	t.Run("transatlantic jump in one hour", func(t *testing.T) {
		s := &session.Session{IP: "203.0.113.10", Timestamp: baseMillis, Location: &london}
		history := []session.HistoryItem{historyAt("198.51.100.7", -3600000, nyc)}
		v := Geographic(s, history)
		require.EqualValues(t, 1, v[0], "new country")
		require.EqualValues(t, 1, v[1], "new city")
		require.EqualValues(t, 1, v[6], "impossible travel flagged")
		require.EqualValues(t, 2, v[5], "speed feature saturates at 2")
	})

	t.Run("unknown current location neutralizes movement", func(t *testing.T) {
		s := &session.Session{IP: "203.0.113.10", Timestamp: baseMillis, Location: session.UnknownLocation()}
		history := []session.HistoryItem{historyAt("198.51.100.7", -3600000, nyc)}
		v := Geographic(s, history)
		for _, i := range []int{3, 4, 5, 6, 7, 8} {
			require.EqualValues(t, 0, v[i], "element %d", i)
		}
		require.InDelta(t, 0.30, v[2], 1e-9, "unknown country scores the default risk")
	})

	t.Run("centroid distance is zero at the centroid", func(t *testing.T) {
		s := &session.Session{IP: "203.0.113.10", Timestamp: baseMillis, Location: &nyc}
		history := []session.HistoryItem{
			historyAt("203.0.113.10", -86400000, nyc),
		}
		v := Geographic(s, history)
		require.InDelta(t, 0, v[8], 1e-9)
	})
}
