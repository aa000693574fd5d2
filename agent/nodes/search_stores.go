package discoverynode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/trend"
)

func SearchStores(ctx context.Context, in *GraphState, searcher contractx.WebSearcher) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Query = trend.BuildQuery(in.Location, in.Trend.Analysis, in.StyleDescription)
	results, err := searcher.Search(ctx, in.Query)
	if err != nil {
		log.Warn().Err(err).Str("query", in.Query).Msg("web search failed, continuing without results")
		results = nil
	}
	in.Results = results
	return in, nil
}
