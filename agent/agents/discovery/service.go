package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	nodex "github.com/tanpawarit/trendgeo/agent/nodes"
)

const DefaultGeocodeTimeout = 60 * time.Second

type Config struct {
	GeocodeTimeout time.Duration
}

// Orchestrator chains trend analysis, web search, store extraction and
// geocoding into one best-effort list of stores.
type Orchestrator struct {
	analyzer  contractx.TrendAnalyzer
	searcher  contractx.WebSearcher
	extractor contractx.StoreExtractor
	resolver  contractx.GeoResolver

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	geocodeTimeout time.Duration

	now func() time.Time
}

func New(
	analyzer contractx.TrendAnalyzer,
	searcher contractx.WebSearcher,
	extractor contractx.StoreExtractor,
	resolver contractx.GeoResolver,
	cfg Config,
) (*Orchestrator, error) {
	if analyzer == nil {
		return nil, errors.New("trend analyzer is required")
	}
	if searcher == nil {
		return nil, errors.New("web searcher is required")
	}
	if extractor == nil {
		return nil, errors.New("store extractor is required")
	}
	if resolver == nil {
		return nil, errors.New("geo resolver is required")
	}

	geocodeTimeout := cfg.GeocodeTimeout
	if geocodeTimeout <= 0 {
		geocodeTimeout = DefaultGeocodeTimeout
	}

	o := &Orchestrator{
		analyzer:       analyzer,
		searcher:       searcher,
		extractor:      extractor,
		resolver:       resolver,
		geocodeTimeout: geocodeTimeout,
		now:            time.Now,
	}

	graphRunner, err := o.compileDiscoverGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Discover returns one item per store the extractor found. An empty list is
// a normal outcome, not an error.
func (o *Orchestrator) Discover(
	ctx context.Context,
	metadata contractx.ProductMetadata,
	styleDescription string,
	location string,
) ([]contractx.StoreLocation, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		Metadata:         metadata,
		StyleDescription: styleDescription,
		Location:         location,
	})
	if err != nil {
		return nil, err
	}
	return out.Stores, nil
}
