package tile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/maptile"

	"github.com/gogpu/mapview/internal/logging"
)

// DiskCache stores raw tile bytes on disk, addressed by source name and
// tile coordinate. Entries land at <root>/tiles/<source>/z<z>x<x>y<y>.mvt.
//
// Lookup and Store are safe against concurrent use, including concurrent
// writers of the same key: Store writes through a temp file and renames,
// so readers never see a partial entry. An entry that already exists when
// Store starts is kept (first writer wins); writers racing on a key that
// has no entry yet each rename a complete file into place, and the last
// rename replaces the earlier ones. Readers treat any read failure as a
// cache miss.
type DiskCache struct {
	root string
}

// NewDiskCache creates a cache rooted at the given directory.
func NewDiskCache(root string) *DiskCache {
	return &DiskCache{root: root}
}

// Path returns the cache file path for a tile.
func (c *DiskCache) Path(source string, t maptile.Tile) string {
	return filepath.Join(c.root, "tiles", source,
		fmt.Sprintf("z%dx%dy%d.mvt", t.Z, t.X, t.Y))
}

// Lookup reads a cached tile. A missing or unreadable entry is a miss.
func (c *DiskCache) Lookup(source string, t maptile.Tile) ([]byte, bool) {
	data, err := os.ReadFile(c.Path(source, t))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Store writes a tile to the cache. If an entry already exists it is kept
// and Store returns nil.
func (c *DiskCache) Store(source string, t maptile.Tile, data []byte) error {
	path := c.Path(source, t)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tile: cache mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return fmt.Errorf("tile: cache temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("tile: cache write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tile: cache close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tile: cache rename: %w", err)
	}
	logging.Logger().Debug("tile cached", "source", source, "z", t.Z, "x", t.X, "y", t.Y)
	return nil
}
