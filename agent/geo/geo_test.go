package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls int
	reply protocol.Message
	err   error
}

func (f *fakeCaller) Call(_ context.Context, _ protocol.Address, _ protocol.Message, _ time.Duration) (protocol.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

type fakeGeocoder struct {
	mu     sync.Mutex
	calls  int
	coords contractx.Coordinates
	err    error
}

func (f *fakeGeocoder) Geocode(context.Context, string) (contractx.Coordinates, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.coords, f.err
}

func TestResolverCachesSuccessfulLookups(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{reply: protocol.GeolocationResponse{Latitude: 13.7466, Longitude: 100.5393}}
	r, err := NewResolver(caller, "agent1geo", NewCache(storage.NewMemory()))
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		coords, ok := r.Resolve(context.Background(), "Uniqlo, Siam", time.Second)
		if !ok || coords.Latitude != 13.7466 || coords.Longitude != 100.5393 {
			t.Fatalf("Resolve() = %+v, %v", coords, ok)
		}
	}
	if caller.calls != 1 {
		t.Fatalf("geolocation agent called %d times, want 1", caller.calls)
	}
}

func TestResolverFailuresAreNotCached(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		caller *fakeCaller
	}{
		{name: "error reply", caller: &fakeCaller{reply: protocol.ErrorMessage{Error: "quota"}}},
		{name: "timeout", caller: &fakeCaller{err: fmt.Errorf("%w: geo", contractx.ErrTimeout)}},
		{name: "unknown reply", caller: &fakeCaller{reply: protocol.Unknown{Raw: map[string]any{"foo": "bar"}}}},
		{name: "non-finite", caller: &fakeCaller{reply: protocol.GeolocationResponse{Latitude: math.NaN(), Longitude: 1}}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewResolver(tc.caller, "agent1geo", nil)
			if err != nil {
				t.Fatalf("NewResolver() error = %v", err)
			}
			for i := 0; i < 2; i++ {
				if coords, ok := r.Resolve(context.Background(), "Nowhere", time.Second); ok || coords != nil {
					t.Fatalf("Resolve() = %+v, %v, want nil, false", coords, ok)
				}
			}
			if tc.caller.calls != 2 {
				t.Fatalf("calls = %d, want 2 (failures are not cached)", tc.caller.calls)
			}
		})
	}
}

func TestGeoAgentServesRepeatFromCache(t *testing.T) {
	t.Parallel()

	geocoder := &fakeGeocoder{coords: contractx.Coordinates{Latitude: 1.5, Longitude: 2.5}}
	svc, err := NewService(geocoder)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	geoAgent, _ := bus.NewAgent("geo", "agent1geo")
	client, _ := bus.NewAgent("client", "agent1client")
	if err := geoAgent.Include(svc.Protocol()); err != nil {
		t.Fatalf("Include() error = %v", err)
	}
	bus.NewLocalNetwork().Join(geoAgent, client)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = geoAgent.Run(ctx) }()

	for i := 0; i < 2; i++ {
		reply, err := client.Call(ctx, geoAgent.Address(), protocol.GeolocationRequest{Address: "Siam"}, time.Second)
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if got := reply.(protocol.GeolocationResponse); got.Latitude != 1.5 || got.Longitude != 2.5 {
			t.Fatalf("reply = %+v", got)
		}
	}
	if geocoder.calls != 1 {
		t.Fatalf("geocoder called %d times, want 1", geocoder.calls)
	}
}

func TestGeoAgentRepliesErrorMessage(t *testing.T) {
	t.Parallel()

	geocoder := &fakeGeocoder{err: errors.New("ZERO_RESULTS")}
	svc, _ := NewService(geocoder)
	geoAgent, _ := bus.NewAgent("geo", "agent1geo")
	client, _ := bus.NewAgent("client", "agent1client")
	_ = geoAgent.Include(svc.Protocol())
	bus.NewLocalNetwork().Join(geoAgent, client)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = geoAgent.Run(ctx) }()

	reply, err := client.Call(ctx, geoAgent.Address(), protocol.GeolocationRequest{Address: "Atlantis"}, time.Second)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if _, ok := reply.(protocol.ErrorMessage); !ok {
		t.Fatalf("reply = %#v, want ErrorMessage", reply)
	}

	if _, err := geoAgent.Storage().Get(ctx, cacheKey("Atlantis")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("failed lookup was cached: %v", err)
	}
}

func TestGoogleGeocoder(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			fmt.Fprint(w, `{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`)
			return
		}
		switch r.URL.Query().Get("address") {
		case "Siam Paragon":
			fmt.Fprint(w, `{"status":"OK","results":[{"formatted_address":"991 Rama I Rd","geometry":{"location":{"lat":13.7462,"lng":100.5347}}}]}`)
		default:
			fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
		}
	}))
	t.Cleanup(server.Close)

	g, err := NewGoogleGeocoder(GoogleConfig{APIKey: "secret", GeocodeURL: server.URL}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewGoogleGeocoder() error = %v", err)
	}

	coords, err := g.Geocode(context.Background(), "Siam Paragon")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	if coords.Latitude != 13.7462 || coords.Longitude != 100.5347 {
		t.Fatalf("Geocode() = %+v", coords)
	}

	if _, err := g.Geocode(context.Background(), "Atlantis"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Geocode() error = %v, want ErrNotFound", err)
	}

	bad, _ := NewGoogleGeocoder(GoogleConfig{APIKey: "wrong", GeocodeURL: server.URL}, WithHTTPClient(server.Client()))
	if _, err := bad.Geocode(context.Background(), "Siam Paragon"); !errors.Is(err, contractx.ErrUpstream) {
		t.Fatalf("Geocode() error = %v, want ErrUpstream", err)
	}
}

func TestFormatCoordinates(t *testing.T) {
	t.Parallel()

	got := FormatCoordinates(contractx.Coordinates{Latitude: 13.7466, Longitude: 100.5})
	if got != "Latitude: 13.7466\nLongitude: 100.5\n" {
		t.Fatalf("FormatCoordinates() = %q", got)
	}
}
