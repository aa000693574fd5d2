package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

const (
	defaultGeocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	maxResponseSizeBytes = 1 << 20
)

type GoogleConfig struct {
	APIKey     string        `split_words:"true"`
	GeocodeURL string        `split_words:"true" default:"https://maps.googleapis.com/maps/api/geocode/json"`
	Timeout    time.Duration `split_words:"true" default:"10s"`
}

// GoogleGeocoder resolves addresses with the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type GoogleOption func(*GoogleGeocoder)

func WithHTTPClient(client *http.Client) GoogleOption {
	return func(g *GoogleGeocoder) {
		if client != nil {
			g.httpClient = client
		}
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func NewGoogleGeocoder(cfg GoogleConfig, opts ...GoogleOption) (*GoogleGeocoder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("google api key is required")
	}
	baseURL := strings.TrimSpace(cfg.GeocodeURL)
	if baseURL == "" {
		baseURL = defaultGeocodeURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid geocode url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g := &GoogleGeocoder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (contractx.Coordinates, error) {
	if strings.TrimSpace(address) == "" {
		return contractx.Coordinates{}, fmt.Errorf("%w: address is empty", contractx.ErrValidation)
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return contractx.Coordinates{}, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return contractx.Coordinates{}, fmt.Errorf("%w: geocode request: %v", contractx.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.Coordinates{}, fmt.Errorf("read geocode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return contractx.Coordinates{}, fmt.Errorf("%w: geocode http status=%d", contractx.ErrUpstream, resp.StatusCode)
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.Coordinates{}, fmt.Errorf("%w: geocode response: %v", contractx.ErrMalformedPayload, err)
	}
	switch parsed.Status {
	case "OK":
	case "ZERO_RESULTS":
		return contractx.Coordinates{}, fmt.Errorf("%w: no coordinates found for %q", contractx.ErrNotFound, address)
	default:
		return contractx.Coordinates{}, fmt.Errorf("%w: geocode status=%s %s", contractx.ErrUpstream, parsed.Status, parsed.ErrorMessage)
	}
	if len(parsed.Results) == 0 {
		return contractx.Coordinates{}, fmt.Errorf("%w: no coordinates found for %q", contractx.ErrNotFound, address)
	}

	loc := parsed.Results[0].Geometry.Location
	return contractx.Coordinates{Latitude: loc.Lat, Longitude: loc.Lng}, nil
}
