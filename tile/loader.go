// Package tile loads vector tiles from cache and network, decodes and
// triangulates them on a worker pool, and stages the results for GPU
// upload on the render thread.
//
// Each tile moves through a small state machine:
//
//	(absent) --RequestTiles--> Pending --decoded--> ReadyForUpload
//	                               \--error-------> Failed
//	ReadyForUpload --UploadPending--> ReadyToRender
//
// There are no transitions out of ReadyToRender or Failed; tiles are
// never evicted.
package tile

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb/maptile"

	"github.com/gogpu/mapview/gpu"
	"github.com/gogpu/mapview/internal/logging"
	"github.com/gogpu/mapview/internal/mvt"
	"github.com/gogpu/mapview/internal/parallel"
)

// State is the lifecycle state of a stored tile.
type State int

// Tile states.
const (
	// StatePending is set when a tile is first requested; its data is
	// being loaded and decoded in the background.
	StatePending State = iota + 1

	// StateReadyForUpload means decoded vertex and index data is staged
	// and waiting for the render thread.
	StateReadyForUpload

	// StateReadyToRender means GPU buffers exist and the tile can be
	// drawn.
	StateReadyToRender

	// StateFailed is terminal; the tile could not be loaded.
	StateFailed
)

// Feature is one drawable polygon feature of a ready tile. The offsets
// are byte offsets into the tile's vertex and index buffers; vertex
// offsets are 8-byte aligned (one stride), index offsets 4-byte aligned.
type Feature struct {
	Meta map[string]any
	Type mvt.GeomType

	VtxOffset uint64
	IdxOffset uint64
	IdxCount  uint32
}

// Layer groups the decoded features of one source layer.
type Layer struct {
	Name     string
	Features []Feature
}

// RenderTile is the immutable render-thread view of a tile in
// StateReadyToRender. Tiles with no polygon features have no buffers and
// an empty layer list.
type RenderTile struct {
	Coord  maptile.Tile
	Layers []Layer

	Vertex gpu.BufferID
	Index  gpu.BufferID
}

type storedTile struct {
	state  State
	layers []Layer

	// Staging data, present only in StateReadyForUpload. Vertices are
	// interleaved x,y pairs normalized to [0,1] tile-local coordinates.
	vertices []float32
	indices  []uint32

	view *RenderTile
}

// Config configures a Loader.
type Config struct {
	// Source names the tile source; it becomes part of disk cache
	// paths. Defaults to "maptiler".
	Source string

	// Fetch downloads tiles missing from every cache. Required.
	Fetch FetchFunc

	// Disk is the optional on-disk tile cache.
	Disk *DiskCache

	// Mem is the optional in-memory tile cache.
	Mem *MemCache

	// Pool runs cache reads, decoding and triangulation. If nil the
	// loader creates and owns one sized to GOMAXPROCS.
	Pool *parallel.Pool

	// Loaded, if set, fires once per tile when it reaches
	// StateReadyForUpload (ok=true) or StateFailed (ok=false). Called
	// from a pool or network goroutine.
	Loaded func(ok bool, t maptile.Tile)
}

// Loader owns tile storage and the background load pipeline.
//
// RequestTiles is safe to call from any goroutine. UploadPending must be
// called from the render thread only.
type Loader struct {
	source  string
	fetch   FetchFunc
	disk    *DiskCache
	mem     *MemCache
	pool    *parallel.Pool
	ownPool bool
	loaded  func(bool, maptile.Tile)

	mu      sync.Mutex
	storage map[maptile.Tile]*storedTile
}

// NewLoader creates a loader from cfg. cfg.Fetch is required.
func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("tile: Config.Fetch is required")
	}
	l := &Loader{
		source:  cfg.Source,
		fetch:   cfg.Fetch,
		disk:    cfg.Disk,
		mem:     cfg.Mem,
		pool:    cfg.Pool,
		loaded:  cfg.Loaded,
		storage: make(map[maptile.Tile]*storedTile),
	}
	if l.source == "" {
		l.source = "maptiler"
	}
	if l.pool == nil {
		l.pool = parallel.NewPool(0)
		l.ownPool = true
	}
	return l, nil
}

// Close shuts down the loader's own worker pool, if it created one.
// GPU buffers owned by ready tiles are not released; their lifetime is
// tied to the device.
func (l *Loader) Close() {
	if l.ownPool {
		l.pool.Close()
	}
}

// RequestTiles returns the requested tiles that are ready to render and
// starts background loads for coordinates not yet in storage. Duplicates
// in coords are deduplicated; repeated requests for an in-flight or
// failed tile start no new work. Never blocks on I/O.
func (l *Loader) RequestTiles(coords []maptile.Tile) []*RenderTile {
	var ready []*RenderTile
	var missing []maptile.Tile
	seen := make(map[maptile.Tile]bool, len(coords))

	l.mu.Lock()
	for _, c := range coords {
		if seen[c] {
			continue
		}
		seen[c] = true
		st, ok := l.storage[c]
		if !ok {
			l.storage[c] = &storedTile{state: StatePending}
			missing = append(missing, c)
			continue
		}
		if st.state == StateReadyToRender {
			ready = append(ready, st.view)
		}
	}
	l.mu.Unlock()

	for _, c := range missing {
		l.pool.Submit(func() { l.load(c) })
	}
	return ready
}

// StateOf returns the state of a tile, or 0 if it was never requested.
func (l *Loader) StateOf(t maptile.Tile) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.storage[t]
	if !ok {
		return 0
	}
	return st.state
}

// load runs on a pool worker: cache lookups, then the network fallback.
func (l *Loader) load(t maptile.Tile) {
	if l.mem != nil {
		if data, ok := l.mem.Get(t); ok {
			logging.Logger().Debug("tile memory cache hit", "z", t.Z, "x", t.X, "y", t.Y)
			l.decode(t, data)
			return
		}
	}
	if l.disk != nil {
		if data, ok := l.disk.Lookup(l.source, t); ok {
			logging.Logger().Debug("tile disk cache hit", "z", t.Z, "x", t.X, "y", t.Y)
			if l.mem != nil {
				l.mem.Set(t, data)
			}
			l.decode(t, data)
			return
		}
	}

	l.fetch(t, func(data []byte, err error) {
		if err != nil {
			logging.Logger().Warn("tile fetch failed",
				"z", t.Z, "x", t.X, "y", t.Y, "err", err)
			l.fail(t)
			return
		}
		if l.disk != nil {
			if err := l.disk.Store(l.source, t, data); err != nil {
				logging.Logger().Warn("tile cache store failed", "err", err)
			}
		}
		if l.mem != nil {
			l.mem.Set(t, data)
		}
		// Decode on the pool, not on the network goroutine.
		l.pool.Submit(func() { l.decode(t, data) })
	})
}

// decode parses and triangulates tile bytes, then stages the result.
func (l *Loader) decode(t maptile.Tile, data []byte) {
	decoded, err := mvt.DecodeTile(data)
	if err != nil {
		logging.Logger().Warn("tile decode failed",
			"z", t.Z, "x", t.X, "y", t.Y, "err", err)
		l.fail(t)
		return
	}

	var (
		layers   []Layer
		vertices []float32
		indices  []uint32
	)
	for li := range decoded.Layers {
		src := &decoded.Layers[li]
		extent := float32(src.Extent)
		if extent == 0 {
			extent = float32(mvt.DefaultExtent)
		}

		out := Layer{Name: src.Name}
		for fi := range src.Features {
			f := &src.Features[fi]
			if f.Type != mvt.GeomPolygon {
				continue
			}
			meta, err := src.Metadata(f)
			if err != nil {
				logging.Logger().Warn("feature metadata dropped",
					"layer", src.Name, "err", err)
				continue
			}
			verts, idx, err := mvt.TriangulateGeometry(f.Geometry)
			if err != nil {
				logging.Logger().Warn("feature triangulation dropped",
					"layer", src.Name, "err", err)
				continue
			}

			vtxOff := uint64(len(vertices)) * 4
			idxOff := uint64(len(indices)) * 4
			for _, p := range verts {
				vertices = append(vertices, float32(p.X)/extent, float32(p.Y)/extent)
			}
			indices = append(indices, idx...)

			out.Features = append(out.Features, Feature{
				Meta:      meta,
				Type:      f.Type,
				VtxOffset: vtxOff,
				IdxOffset: idxOff,
				IdxCount:  uint32(len(idx)),
			})
		}
		if len(out.Features) > 0 {
			layers = append(layers, out)
		}
	}

	l.mu.Lock()
	st := l.storage[t]
	st.layers = layers
	st.vertices = vertices
	st.indices = indices
	st.state = StateReadyForUpload
	l.mu.Unlock()

	logging.Logger().Debug("tile decoded",
		"z", t.Z, "x", t.X, "y", t.Y,
		"layers", len(layers), "vertices", len(vertices)/2, "indices", len(indices))
	if l.loaded != nil {
		l.loaded(true, t)
	}
}

func (l *Loader) fail(t maptile.Tile) {
	l.mu.Lock()
	l.storage[t].state = StateFailed
	l.mu.Unlock()
	if l.loaded != nil {
		l.loaded(false, t)
	}
}

// UploadResult keeps the staging memory referenced by an upload batch
// alive. The caller must hold the result until Device.Submit has
// returned for the batch passed to UploadPending.
type UploadResult struct {
	// Tiles are the tiles that became ready in this call.
	Tiles []*RenderTile

	staging [][]byte
}

// UploadPending creates GPU buffers for every tile in StateReadyForUpload,
// records their uploads into batch and transitions them to
// StateReadyToRender. Must be called on the render thread.
func (l *Loader) UploadPending(dev gpu.Device, batch gpu.Batch) (*UploadResult, error) {
	type pending struct {
		coord maptile.Tile
		st    *storedTile
	}

	l.mu.Lock()
	var pend []pending
	for c, st := range l.storage {
		if st.state == StateReadyForUpload {
			pend = append(pend, pending{coord: c, st: st})
		}
	}
	l.mu.Unlock()

	res := &UploadResult{}
	for _, p := range pend {
		var vbuf, ibuf gpu.BufferID

		if len(p.st.vertices) > 0 {
			vdata := f32Bytes(p.st.vertices)
			idata := u32Bytes(p.st.indices)

			var err error
			vbuf, err = dev.CreateBuffer(&gpu.BufferDesc{
				Label:   fmt.Sprintf("tile z%dx%dy%d vertices", p.coord.Z, p.coord.X, p.coord.Y),
				Size:    uint64(len(vdata)),
				Kind:    gpu.BufferImmutable,
				Binding: gpu.BindVertex,
			})
			if err != nil {
				return res, fmt.Errorf("tile: vertex buffer: %w", err)
			}
			ibuf, err = dev.CreateBuffer(&gpu.BufferDesc{
				Label:   fmt.Sprintf("tile z%dx%dy%d indices", p.coord.Z, p.coord.X, p.coord.Y),
				Size:    uint64(len(idata)),
				Kind:    gpu.BufferImmutable,
				Binding: gpu.BindIndex,
			})
			if err != nil {
				dev.DestroyBuffer(vbuf)
				return res, fmt.Errorf("tile: index buffer: %w", err)
			}

			batch.UploadStatic(vbuf, vdata)
			batch.UploadStatic(ibuf, idata)
			res.staging = append(res.staging, vdata, idata)
		}

		view := &RenderTile{
			Coord:  p.coord,
			Layers: p.st.layers,
			Vertex: vbuf,
			Index:  ibuf,
		}

		l.mu.Lock()
		p.st.vertices = nil
		p.st.indices = nil
		p.st.view = view
		p.st.state = StateReadyToRender
		l.mu.Unlock()

		res.Tiles = append(res.Tiles, view)
	}
	return res, nil
}

func f32Bytes(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func u32Bytes(v []uint32) []byte {
	b := make([]byte, len(v)*4)
	for i, u := range v {
		binary.LittleEndian.PutUint32(b[i*4:], u)
	}
	return b
}
