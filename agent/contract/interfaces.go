package contract

import (
	"context"
	"time"

	"github.com/tanpawarit/trendgeo/agent/protocol"
)

// Caller performs a request/reply exchange over the bus.
type Caller interface {
	Call(ctx context.Context, to protocol.Address, msg protocol.Message, timeout time.Duration) (protocol.Message, error)
}

type TrendAnalyzer interface {
	Analyze(ctx context.Context, style string) (TrendAnalysis, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string) ([]protocol.SearchResult, error)
}

type StoreExtractor interface {
	Extract(ctx context.Context, results []protocol.SearchResult) (stores []string, location string)
}

type GeoResolver interface {
	Resolve(ctx context.Context, address string, timeout time.Duration) (*Coordinates, bool)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}
