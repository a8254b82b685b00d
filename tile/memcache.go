package tile

import (
	"github.com/dgraph-io/ristretto"
	"github.com/paulmach/orb/maptile"
)

// MemCache keeps recently fetched raw tile bytes in memory in front of
// the disk cache, bounded by total byte cost.
type MemCache struct {
	c *ristretto.Cache
}

// NewMemCache creates a memory cache holding up to maxBytes of tile data.
func NewMemCache(maxBytes int64) (*MemCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		// Ten times the expected entry count at ~50 KiB per tile.
		NumCounters: maxBytes / (50 << 10) * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemCache{c: c}, nil
}

// cacheKey packs a tile coordinate into one word. Tile coordinates fit
// in 29 bits each up to zoom 29, far beyond the supported zoom range.
func cacheKey(t maptile.Tile) uint64 {
	return uint64(t.Z)<<58 | uint64(t.X)<<29 | uint64(t.Y)
}

// Get returns the cached bytes for a tile, if present.
func (m *MemCache) Get(t maptile.Tile) ([]byte, bool) {
	v, ok := m.c.Get(cacheKey(t))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Set stores tile bytes. Admission is best-effort; a rejected entry is
// simply not cached.
func (m *MemCache) Set(t maptile.Tile, data []byte) {
	m.c.Set(cacheKey(t), data, int64(len(data)))
}

// Close releases the cache's background resources.
func (m *MemCache) Close() {
	m.c.Close()
}
