package discoverynode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

func ExtractStores(ctx context.Context, in *GraphState, extractor contractx.StoreExtractor) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	names, location := extractor.Extract(ctx, in.Results)
	if names == nil {
		names = []string{}
	}
	log.Debug().Strs("stores", names).Str("location", location).Msg("stores extracted")
	in.StoreNames = names
	in.ExtractedLocation = location
	return in, nil
}
