package discoverynode

import (
	"strings"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/trend"
)

type GraphInput struct {
	Metadata         contractx.ProductMetadata
	StyleDescription string
	Location         string
}

type GraphOutput struct {
	Stores  []contractx.StoreLocation
	Elapsed time.Duration
}

// GraphState accumulates the discovery pipeline. Every stage after
// validation degrades instead of failing, so later stages always run.
type GraphState struct {
	Metadata         contractx.ProductMetadata
	StyleDescription string
	Location         string
	Started          time.Time

	Style   string
	Trend   contractx.TrendAnalysis
	Query   string
	Results []protocol.SearchResult

	StoreNames        []string
	ExtractedLocation string

	Stores []contractx.StoreLocation
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	return &GraphState{
		Metadata:         in.Metadata,
		StyleDescription: strings.TrimSpace(in.StyleDescription),
		Location:         strings.TrimSpace(in.Location),
		Started:          nowFn().UTC(),
		Style:            trend.StyleFromMetadata(in.Metadata),
	}, nil
}
