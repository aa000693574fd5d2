package discovery

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/extractor"
	"github.com/tanpawarit/trendgeo/agent/geo"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/trend"
)

type fakeAnalyzer struct {
	out       contractx.TrendAnalysis
	err       error
	lastStyle string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, style string) (contractx.TrendAnalysis, error) {
	f.lastStyle = style
	return f.out, f.err
}

type fakeSearcher struct {
	results   []protocol.SearchResult
	err       error
	lastQuery string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]protocol.SearchResult, error) {
	f.lastQuery = query
	return f.results, f.err
}

type fakeExtractor struct {
	stores   []string
	location string
	calls    int
}

func (f *fakeExtractor) Extract(ctx context.Context, results []protocol.SearchResult) ([]string, string) {
	f.calls++
	return f.stores, f.location
}

type fakeResolver struct {
	mu      sync.Mutex
	coords  map[string]*contractx.Coordinates
	queries []string
}

func (f *fakeResolver) Resolve(ctx context.Context, address string, timeout time.Duration) (*contractx.Coordinates, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, address)
	c, ok := f.coords[address]
	if !ok {
		return nil, false
	}
	return c, true
}

func newTestOrchestrator(t *testing.T, a *fakeAnalyzer, s *fakeSearcher, e *fakeExtractor, r *fakeResolver) *Orchestrator {
	t.Helper()
	o, err := New(a, s, e, r, Config{GeocodeTimeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestDiscoverReturnsOneItemPerStore(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{out: contractx.TrendAnalysis{Keywords: []string{"linen"}, Analysis: "linen is in"}}
	searcher := &fakeSearcher{results: []protocol.SearchResult{{Title: "t", Content: "c"}}}
	extractorFake := &fakeExtractor{stores: []string{"Uniqlo", "Zara", "Ghost"}, location: "Bangkok"}
	resolver := &fakeResolver{coords: map[string]*contractx.Coordinates{
		"Uniqlo, Bangkok": {Latitude: 13.74, Longitude: 100.53},
		"Zara, Bangkok":   {Latitude: math.Inf(1), Longitude: 100.5},
	}}
	o := newTestOrchestrator(t, analyzer, searcher, extractorFake, resolver)

	got, err := o.Discover(context.Background(), contractx.ProductMetadata{Title: "Linen Shirt"}, "breezy", "Bangkok")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(stores) = %d, want 3", len(got))
	}
	if got[0].Name != "Uniqlo" || got[0].Address != "Bangkok" || got[0].Latitude == nil || *got[0].Latitude != 13.74 {
		t.Fatalf("stores[0] = %+v", got[0])
	}
	if got[1].Latitude != nil || got[1].Longitude != nil {
		t.Fatalf("non-finite coordinates must be dropped: %+v", got[1])
	}
	if got[2].Name != "Ghost" || got[2].Latitude != nil {
		t.Fatalf("stores[2] = %+v", got[2])
	}

	if analyzer.lastStyle != "Linen Shirt" {
		t.Fatalf("style = %q", analyzer.lastStyle)
	}
	wantQuery := "stores near Bangkok selling products matching: linen is in. User is looking for: breezy"
	if searcher.lastQuery != wantQuery {
		t.Fatalf("query = %q, want %q", searcher.lastQuery, wantQuery)
	}
}

func TestDiscoverEmptyLocationSkipsGeocoding(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	o := newTestOrchestrator(t,
		&fakeAnalyzer{out: contractx.TrendAnalysis{Analysis: "x"}},
		&fakeSearcher{},
		&fakeExtractor{stores: []string{"A", "B", "C"}},
		resolver,
	)

	got, err := o.Discover(context.Background(), contractx.ProductMetadata{}, "", "")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(stores) = %d, want 3", len(got))
	}
	for _, s := range got {
		if s.Latitude != nil || s.Longitude != nil || s.Address != "" {
			t.Fatalf("store = %+v, want null coordinates", s)
		}
	}
	if len(resolver.queries) != 0 {
		t.Fatalf("resolver called %d times, want 0", len(resolver.queries))
	}
}

func TestDiscoverDegradesFailedStages(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{err: errors.New("model down")}
	searcher := &fakeSearcher{err: contractx.ErrTimeout}
	extractorFake := &fakeExtractor{stores: []string{}}
	o := newTestOrchestrator(t, analyzer, searcher, extractorFake, &fakeResolver{})

	got, err := o.Discover(context.Background(), contractx.ProductMetadata{Description: "red dress"}, "party", "Paris")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("stores = %#v, want empty list", got)
	}
	wantQuery := "stores near Paris selling products matching: red dress. User is looking for: party"
	if searcher.lastQuery != wantQuery {
		t.Fatalf("query = %q, want %q", searcher.lastQuery, wantQuery)
	}
	if extractorFake.calls != 1 {
		t.Fatalf("extractor calls = %d, want 1", extractorFake.calls)
	}
}

func TestNewValidatesCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeSearcher{}, &fakeExtractor{}, &fakeResolver{}, Config{}); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}

// Runs the remote stages over an in-process network: a search agent, the
// store extraction agent contract and the geolocation agent.
func TestDiscoverOverLocalNetwork(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	searchAgent, _ := bus.NewAgent("search", "agent1search")
	_ = searchAgent.Include(bus.NewProtocol("WebSearch", "0.1.0").
		On(protocol.KindWebSearchRequest, func(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
			req := msg.(protocol.WebSearchRequest)
			return hc.Send(ctx, hc.Sender(), protocol.WebSearchResponse{
				Query:   req.Query,
				Results: []protocol.SearchResult{{Title: "Shops", Content: "COS and Arket"}},
			})
		}))

	extractAgent, _ := bus.NewAgent("extractor", "agent1extractor")
	_ = extractAgent.Include(bus.NewProtocol(extractor.ProtocolName, extractor.ProtocolVersion).
		On(protocol.KindStoreExtractionRequest, func(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
			return hc.Send(ctx, hc.Sender(), protocol.StoreExtractionResponse{Stores: []string{"COS", "Arket"}, Location: "London"})
		}))

	geocoder := geocoderFunc(func(_ context.Context, address string) (contractx.Coordinates, error) {
		if address == "COS, London" {
			return contractx.Coordinates{Latitude: 51.5, Longitude: -0.12}, nil
		}
		return contractx.Coordinates{}, contractx.ErrNotFound
	})
	geoSvc, _ := geo.NewService(geocoder)
	geoAgent, _ := bus.NewAgent("geo", "agent1geo")
	_ = geoAgent.Include(geoSvc.Protocol())

	client, _ := bus.NewAgent("orchestrator", "agent1orchestrator")
	bus.NewLocalNetwork().Join(searchAgent, extractAgent, geoAgent, client)
	for _, a := range []*bus.Agent{searchAgent, extractAgent, geoAgent} {
		a := a
		go func() { _ = a.Run(ctx) }()
	}

	searcher, _ := trend.NewSearcher(client, searchAgent.Address(), time.Second)
	extractClient, _ := extractor.NewClient(client, extractAgent.Address(), time.Second)
	resolver, _ := geo.NewResolver(client, geoAgent.Address(), geo.NewCache(client.Storage()))
	o, err := New(&fakeAnalyzer{out: contractx.TrendAnalysis{Analysis: "minimal"}}, searcher, extractClient, resolver, Config{GeocodeTimeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := o.Discover(ctx, contractx.ProductMetadata{Title: "Wool coat"}, "clean lines", "London")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(stores) = %d, want 2", len(got))
	}
	if got[0].Latitude == nil || *got[0].Latitude != 51.5 || *got[0].Longitude != -0.12 {
		t.Fatalf("stores[0] = %+v", got[0])
	}
	if got[1].Name != "Arket" || got[1].Latitude != nil {
		t.Fatalf("stores[1] = %+v", got[1])
	}
}

type geocoderFunc func(ctx context.Context, address string) (contractx.Coordinates, error)

func (f geocoderFunc) Geocode(ctx context.Context, address string) (contractx.Coordinates, error) {
	return f(ctx, address)
}
