package geo

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

// Cache remembers resolved coordinates by exact address string. Entries are
// never evicted and failed lookups are never stored.
type Cache struct {
	store storage.Store
}

func NewCache(store storage.Store) *Cache {
	if store == nil {
		store = storage.NewMemory()
	}
	return &Cache{store: store}
}

func cacheKey(address string) string {
	return "geo:" + address
}

func (c *Cache) Get(ctx context.Context, address string) (contractx.Coordinates, bool) {
	var coords contractx.Coordinates
	found, err := storage.GetJSON(ctx, c.store, cacheKey(address), &coords)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("geocode cache read failed")
		return contractx.Coordinates{}, false
	}
	return coords, found
}

func (c *Cache) Put(ctx context.Context, address string, coords contractx.Coordinates) error {
	return storage.SetJSON(ctx, c.store, cacheKey(address), coords)
}
