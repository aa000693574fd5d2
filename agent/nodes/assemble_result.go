package discoverynode

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

func AssembleResult(in *GraphState, nowFn func() time.Time) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	stores := in.Stores
	if stores == nil {
		stores = []contractx.StoreLocation{}
	}

	located := 0
	for _, s := range stores {
		if s.Latitude != nil && s.Longitude != nil {
			located++
		}
	}
	elapsed := nowFn().UTC().Sub(in.Started)
	log.Info().
		Int("stores", len(stores)).
		Int("located", located).
		Dur("elapsed", elapsed).
		Msg("store discovery finished")

	return GraphOutput{Stores: stores, Elapsed: elapsed}, nil
}
