package mapview

import (
	"math"

	"github.com/paulmach/orb/maptile"
)

// VisibleTiles returns the tile coordinates of the 2^mapZoom grid that
// intersect the viewport rectangle. The result covers the axis-aligned
// bounds of the viewport; rotation is not taken into account, so a
// rotated viewport may receive tiles clipped away at the edges.
func VisibleTiles(vp Viewport) []maptile.Tile {
	zoom := vp.MapZoom()
	n := 1 << zoom
	w, h := vp.SizeNorm()

	minX := clampCell(math.Floor((vp.CenterX-w/2)*float64(n)), n)
	maxX := clampCell(math.Floor((vp.CenterX+w/2)*float64(n)), n)
	minY := clampCell(math.Floor((vp.CenterY-h/2)*float64(n)), n)
	maxY := clampCell(math.Floor((vp.CenterY+h/2)*float64(n)), n)

	tiles := make([]maptile.Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom)))
		}
	}
	return tiles
}

func clampCell(v float64, n int) int {
	if v < 0 {
		return 0
	}
	if v > float64(n-1) {
		return n - 1
	}
	return int(v)
}

// TileMatrix builds the model to clip-space transform for one tile.
//
// Tile vertices are [0,1] tile-local coordinates with y pointing down.
// The transform flips them into the y-up unit quad centered at the
// origin, places the tile in the centered world grid, pans to the
// viewport center, applies rotation and zoom, and finally corrects for
// the viewport aspect ratio. clip is the backend's clip-space correction
// and is applied last.
func TileMatrix(vp Viewport, t maptile.Tile, clip Mat4) Mat4 {
	n := float64(int(1) << t.Z)

	m := Scale4(1, -1, 1)
	m = Translate4(-0.5, 0.5, 0).Mul(m)
	m = Scale4(1/n, 1/n, 1).Mul(m)
	m = Translate4(-(n-1)/(2*n), (n-1)/(2*n), 0).Mul(m)
	m = Translate4(float64(t.X)/n, -float64(t.Y)/n, 0).Mul(m)
	m = Translate4(0.5, -0.5, 0).Mul(m)
	m = Translate4(-vp.CenterX, vp.CenterY, 0).Mul(m)
	m = RotateZ4(vp.RotationDeg * math.Pi / 180).Mul(m)

	world := math.Pow(2, vp.Zoom)
	m = Scale4(world, world, 1).Mul(m)
	m = Scale4(2, 2, 1).Mul(m)

	aspect := vp.Aspect()
	if aspect >= 1 {
		m = Scale4(1, aspect, 1).Mul(m)
	} else {
		m = Scale4(1/aspect, 1, 1).Mul(m)
	}
	return clip.Mul(m)
}
