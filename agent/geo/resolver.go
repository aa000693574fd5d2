package geo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const DefaultResolveTimeout = 60 * time.Second

// Resolver turns addresses into coordinates by asking the geolocation agent,
// consulting its cache first.
type Resolver struct {
	caller  contractx.Caller
	target  protocol.Address
	cache   *Cache
	timeout time.Duration
	logger  zerolog.Logger
}

type ResolverOption func(*Resolver)

func WithDefaultTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewResolver(caller contractx.Caller, target protocol.Address, cache *Cache, opts ...ResolverOption) (*Resolver, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: caller is required", contractx.ErrValidation)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: geolocation agent address is required", contractx.ErrValidation)
	}
	if cache == nil {
		cache = NewCache(nil)
	}
	r := &Resolver{
		caller:  caller,
		target:  target,
		cache:   cache,
		timeout: DefaultResolveTimeout,
		logger:  log.Logger.With().Str("component", "geo_resolver").Str("target", target.String()).Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Resolve returns coordinates for address, or false when the agent timed
// out, reported an error or answered with something unrecognizable. It
// never retries.
func (r *Resolver) Resolve(ctx context.Context, address string, timeout time.Duration) (*contractx.Coordinates, bool) {
	if coords, ok := r.cache.Get(ctx, address); ok {
		r.logger.Debug().Str("address", address).Msg("geocode cache hit")
		return &coords, true
	}
	if timeout <= 0 {
		timeout = r.timeout
	}

	reply, err := r.caller.Call(ctx, r.target, protocol.GeolocationRequest{Address: address}, timeout)
	if err != nil {
		r.logger.Warn().Err(err).Str("address", address).Msg("geolocation call failed")
		return nil, false
	}

	switch m := reply.(type) {
	case protocol.GeolocationResponse:
		if !finite(m.Latitude) || !finite(m.Longitude) {
			r.logger.Warn().Str("address", address).Msg("geolocation reply has non-finite coordinates")
			return nil, false
		}
		coords := contractx.Coordinates{Latitude: m.Latitude, Longitude: m.Longitude}
		if err := r.cache.Put(ctx, address, coords); err != nil {
			r.logger.Warn().Err(err).Str("address", address).Msg("geocode cache write failed")
		}
		return &coords, true
	case protocol.ErrorMessage:
		r.logger.Warn().Str("address", address).Str("error", m.Error).Msg("geolocation agent returned an error")
		return nil, false
	default:
		r.logger.Warn().Str("address", address).Str("reply", fmt.Sprintf("%T", reply)).Msg("unexpected geolocation reply")
		return nil, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
