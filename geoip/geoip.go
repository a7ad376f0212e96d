// Package geoip resolves client addresses to coarse locations using a local
// MaxMind database. Lookups are best-effort; the pipeline substitutes the
// unknown location when resolution fails or times out.
package geoip

import (
	"context"
	"errors"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

var ErrUnroutableAddress = errors.New("address is not publicly routable")

// Resolver maps an address to a location.
type Resolver interface {
	Lookup(ctx context.Context, ip string) (*session.Location, error)
	Close() error
}

// MaxMindResolver resolves against a GeoIP2/GeoLite2 City database file.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// NewMaxMindResolver opens the database at path. The reader memory-maps the
// file and is safe for concurrent use.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) Lookup(ctx context.Context, ip string) (*session.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || !util.IPIsPubliclyRoutable(parsed) {
		return nil, ErrUnroutableAddress
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return nil, err
	}

	loc := &session.Location{
		Country:   record.Country.Names["en"],
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
	if loc.Country == "" {
		loc.Country = "unknown"
	}
	if loc.City == "" {
		loc.City = "unknown"
	}
	return loc, nil
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}

// StaticResolver serves a fixed address table. It backs tests and
// deployments without a database file.
type StaticResolver struct {
	table map[string]session.Location
}

func NewStaticResolver(table map[string]session.Location) *StaticResolver {
	return &StaticResolver{table: table}
}

func (r *StaticResolver) Lookup(ctx context.Context, ip string) (*session.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, ok := r.table[ip]
	if !ok {
		return nil, ErrUnroutableAddress
	}
	out := loc
	return &out, nil
}

func (r *StaticResolver) Close() error { return nil }
