package feature

import (
	"encoding/binary"
	"math"
	"net"

	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

// NetworkFeatureCount is the fixed width of the network factor vector.
// A trained bundle with any other width fails to load.
const NetworkFeatureCount = 10

// maxDistinctAddresses bounds the distinct-address count before scaling.
const maxDistinctAddresses = 50

// Network distills the session address plus history into the network
// factor vector. Every element lies in [0, 1]; an unparsable address
// yields the all-zero neutral vector.
func Network(s *session.Session, history []session.HistoryItem) []float64 {
	ip := net.ParseIP(s.IP)
	if ip == nil {
		return make([]float64, NetworkFeatureCount)
	}

	seen := make(map[string]struct{}, len(history))
	for i := range history {
		seen[history[i].IP] = struct{}{}
	}
	_, known := seen[s.IP]

	isDatacenter := IsDatacenterIP(ip)
	isTor := IsTorExitIP(ip)
	isPrivate := util.IPIsPrivate(ip)

	suspicious := 0.0
	if isDatacenter || isTor || isPrivate {
		suspicious = 1
	}

	distinct := float64(len(seen))
	if distinct > maxDistinctAddresses {
		distinct = maxDistinctAddresses
	}

	return []float64{
		boolFeature(!known),
		boolFeature(isDatacenter),
		boolFeature(isTor),
		boolFeature(isPrivate),
		suspicious,
		distinct / maxDistinctAddresses,
		addressMagnitude(ip),
		boolFeature(ip.To4() == nil),
		boolFeature(isReservedIP(ip)),
		boolFeature(ip.IsMulticast()),
	}
}

// addressMagnitude maps an address onto [0, 1] by dividing its integer
// value by the maximum for its version. IPv6 uses the upper 64 bits; the
// interface identifier half carries no locality signal.
func addressMagnitude(ip net.IP) float64 {
	if v4 := ip.To4(); v4 != nil {
		return float64(binary.BigEndian.Uint32(v4)) / float64(math.MaxUint32)
	}
	v6 := ip.To16()
	if v6 == nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(v6[:8])) / float64(math.MaxUint64)
}

func isReservedIP(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		// 240.0.0.0/4 (class E) and 0.0.0.0/8
		return v4[0] >= 240 || v4[0] == 0
	}
	return false
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
