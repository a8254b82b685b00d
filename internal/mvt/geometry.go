package mvt

import (
	"errors"

	"github.com/gogpu/mapview/internal/triangulate"
)

// Geometry command identifiers. A command integer packs the identifier in
// its low three bits and a repeat count in the remaining bits.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

var (
	// ErrBadCommand is returned for an unknown command identifier or a
	// move-to/line-to with a zero repeat count.
	ErrBadCommand = errors.New("mvt: bad geometry command")

	// ErrGeometryOverrun is returned when a command's operands extend
	// past the end of the stream.
	ErrGeometryOverrun = errors.New("mvt: geometry stream overrun")
)

// DecodeGeometry interprets a feature's command stream into a boundary
// graph: the vertex list in tile-local coordinates and the constraint
// edges tracing each ring.
//
// A persistent pen starts at the origin and accumulates zig-zag decoded
// deltas. Close-path emits an edge from the last point back to the start
// of the current sub-path. If the stream does not begin with move-to, the
// pen's origin position becomes an implicit first vertex.
func DecodeGeometry(geom []uint32) ([]triangulate.Point, []triangulate.Edge, error) {
	var (
		pts       []triangulate.Point
		edges     []triangulate.Edge
		penX      int32
		penY      int32
		pathStart int
	)

	for i := 0; i < len(geom); {
		cmd := geom[i] & 0x7
		count := int(geom[i] >> 3)

		if cmd != cmdMoveTo && cmd != cmdLineTo && cmd != cmdClosePath {
			return nil, nil, ErrBadCommand
		}
		if cmd != cmdClosePath && count == 0 {
			return nil, nil, ErrBadCommand
		}

		// A path that begins with anything other than move-to starts
		// from an implicit vertex at the origin.
		if len(pts) == pathStart && cmd != cmdMoveTo {
			pts = append(pts, triangulate.Point{})
		}

		if cmd == cmdClosePath {
			i++
			edges = append(edges, triangulate.Edge{A: len(pts) - 1, B: pathStart})
			pathStart = len(pts)
			continue
		}

		if i+1+2*count > len(geom) {
			return nil, nil, ErrGeometryOverrun
		}
		i++

		for range count {
			penX += unzig(geom[i])
			penY += unzig(geom[i+1])
			i += 2

			if cmd == cmdMoveTo {
				pathStart = len(pts)
				pts = append(pts, triangulate.Point{X: float64(penX), Y: float64(penY)})
			} else {
				edges = append(edges, triangulate.Edge{A: len(pts) - 1, B: len(pts)})
				pts = append(pts, triangulate.Point{X: float64(penX), Y: float64(penY)})
			}
		}
	}
	return pts, edges, nil
}

// unzig decodes a zig-zag encoded delta: (n >> 1) XOR -(n AND 1).
func unzig(n uint32) int32 {
	return int32(n>>1) ^ -int32(n&1)
}

// TriangulateGeometry decodes a polygon command stream and triangulates
// it. Degenerate geometry is an error; the caller drops the feature and
// keeps the rest of its tile.
func TriangulateGeometry(geom []uint32) ([]triangulate.Point, []uint32, error) {
	pts, edges, err := DecodeGeometry(geom)
	if err != nil {
		return nil, nil, err
	}
	return triangulate.Triangulate(pts, edges)
}
