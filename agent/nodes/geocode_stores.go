package discoverynode

import (
	"context"
	"fmt"
	"math"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

// GeocodeStores emits one item per extracted name. Coordinates stay nil when
// no location was extracted or the lookup did not produce two finite numbers.
func GeocodeStores(ctx context.Context, in *GraphState, resolver contractx.GeoResolver, timeout time.Duration) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	stores := make([]contractx.StoreLocation, 0, len(in.StoreNames))
	for _, name := range in.StoreNames {
		item := contractx.StoreLocation{Name: name, Address: in.ExtractedLocation}
		if in.ExtractedLocation != "" {
			coords, ok := resolver.Resolve(ctx, name+", "+in.ExtractedLocation, timeout)
			if ok && coords != nil && finite(coords.Latitude) && finite(coords.Longitude) {
				lat, lon := coords.Latitude, coords.Longitude
				item.Latitude = &lat
				item.Longitude = &lon
			}
		}
		stores = append(stores, item)
	}
	in.Stores = stores
	return in, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
