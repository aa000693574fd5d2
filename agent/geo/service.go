package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const (
	ProtocolName    = "Geolocation-Protocol"
	ProtocolVersion = "0.1.0"
)

// Service is the server side of the geolocation agent.
type Service struct {
	geocoder contractx.Geocoder
}

func NewService(geocoder contractx.Geocoder) (*Service, error) {
	if geocoder == nil {
		return nil, fmt.Errorf("%w: geocoder is required", contractx.ErrValidation)
	}
	return &Service{geocoder: geocoder}, nil
}

func (s *Service) Protocol(mw ...bus.Middleware) *bus.Protocol {
	return bus.NewProtocol(ProtocolName, ProtocolVersion, mw...).
		On(protocol.KindGeolocationRequest, s.handleRequest)
}

func (s *Service) handleRequest(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
	req := msg.(protocol.GeolocationRequest)
	hc.Logger().Info().Str("address", req.Address).Msg("received address resolution request")

	coords, err := s.Lookup(ctx, NewCache(hc.Storage()), req.Address)
	if err != nil {
		hc.Logger().Error().Err(err).Str("address", req.Address).Msg("geocode failed")
		return hc.Send(ctx, hc.Sender(), protocol.ErrorMessage{Error: err.Error()})
	}
	return hc.Send(ctx, hc.Sender(), protocol.GeolocationResponse{Latitude: coords.Latitude, Longitude: coords.Longitude})
}

// Lookup serves address from cache or the geocoder, caching only successes.
func (s *Service) Lookup(ctx context.Context, cache *Cache, address string) (contractx.Coordinates, error) {
	if coords, ok := cache.Get(ctx, address); ok {
		return coords, nil
	}
	coords, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return contractx.Coordinates{}, err
	}
	if err := cache.Put(ctx, address, coords); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("geocode cache write failed")
	}
	return coords, nil
}

// ChatCompute answers a structured GeolocationRequest extracted from chat.
func (s *Service) ChatCompute(ctx context.Context, hc *bus.Context, output map[string]any) (string, error) {
	address, _ := output["address"].(string)
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: structured output has no address", contractx.ErrSchemaViolation)
	}
	coords, err := s.Lookup(ctx, NewCache(hc.Storage()), address)
	if err != nil {
		return "", err
	}
	return FormatCoordinates(coords), nil
}

func FormatCoordinates(c contractx.Coordinates) string {
	return "Latitude: " + strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "\n" +
		"Longitude: " + strconv.FormatFloat(c.Longitude, 'f', -1, 64) + "\n"
}

// RequestSchema is the JSON schema of GeolocationRequest handed to the
// structured-output agent.
func RequestSchema() map[string]any {
	return map[string]any{
		"title": "GeolocationRequest",
		"type":  "object",
		"properties": map[string]any{
			"address": map[string]any{
				"title":       "Address",
				"type":        "string",
				"description": "Street address or place name to resolve",
			},
		},
		"required":             []any{"address"},
		"additionalProperties": false,
	}
}
