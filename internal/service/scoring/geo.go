package scoring

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/cache"
)

// MaxMindResolver resolves IP country codes from a local GeoLite2 database.
// The reader is read-only after open and safe for concurrent lookups.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// NewMaxMindResolver opens the mmdb file at path.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geolocation database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

// Resolve returns the ISO country code for ip.
func (r *MaxMindResolver) Resolve(_ context.Context, ip string) (GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return GeoInfo{}, fmt.Errorf("invalid ip %q", ip)
	}
	country, err := r.reader.Country(parsed)
	if err != nil {
		return GeoInfo{}, fmt.Errorf("geolocation lookup failed: %w", err)
	}
	return GeoInfo{CountryCode: country.Country.IsoCode}, nil
}

// Close releases the database handle.
func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}

// NoopResolver is used when no geolocation database is configured. The
// geo feature degrades to "unknown country".
type NoopResolver struct{}

func (NoopResolver) Resolve(context.Context, string) (GeoInfo, error) {
	return GeoInfo{}, nil
}

// CachingResolver caches geolocation sub-results in the tiered cache with a
// long TTL; IP geography is comparatively static so a day of staleness is
// acceptable.
type CachingResolver struct {
	inner  GeoResolver
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingResolver wraps inner with the shared cache.
func NewCachingResolver(inner GeoResolver, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachingResolver {
	return &CachingResolver{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// Resolve serves from cache when possible; concurrent lookups for the same
// IP collapse into one upstream call.
func (r *CachingResolver) Resolve(ctx context.Context, ip string) (GeoInfo, error) {
	var info GeoInfo
	err := r.cache.GetOrCompute(ctx, cache.GeoPrefix+ip, r.ttl, &info, func(ctx context.Context) (interface{}, error) {
		return r.inner.Resolve(ctx, ip)
	})
	if err != nil {
		return GeoInfo{}, err
	}
	return info, nil
}
