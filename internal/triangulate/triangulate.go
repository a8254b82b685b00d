// Package triangulate implements constrained Delaunay triangulation of
// polygon boundary graphs.
//
// The input is a set of 2D points plus constraint edges describing polygon
// rings (outer boundaries and holes). The output keeps only triangles
// interior to the polygon: after triangulation, regions are peeled from the
// outside in, with each constraint crossing toggling between exterior and
// interior.
package triangulate

import (
	"errors"
	"math"
)

// Point is a 2D vertex.
type Point struct {
	X, Y float64
}

// Edge is a constraint edge between two vertex indices.
type Edge struct {
	A, B int
}

var (
	// ErrDegenerate is returned when the input cannot produce any
	// interior triangle (fewer than three distinct points, collinear
	// input, or rings that enclose no area).
	ErrDegenerate = errors.New("triangulate: degenerate geometry")

	// ErrConstraint is returned when a constraint edge cannot be
	// recovered in the triangulation.
	ErrConstraint = errors.New("triangulate: constraint edge not recoverable")
)

// Triangulate builds a constrained Delaunay triangulation of pts with the
// given boundary edges, then erases outer triangles and hole interiors.
//
// Duplicate points are merged and edges remapped before triangulation.
// The returned vertex slice is the deduplicated point set; indices address
// it in groups of three, one group per triangle.
func Triangulate(pts []Point, edges []Edge) ([]Point, []uint32, error) {
	verts, constraints := dedupe(pts, edges)
	if len(verts) < 3 {
		return nil, nil, ErrDegenerate
	}

	d, err := delaunay(verts)
	if err != nil {
		return nil, nil, err
	}

	for _, e := range constraints {
		if err := d.insertConstraint(e.A, e.B); err != nil {
			return nil, nil, err
		}
	}

	indices := d.interiorTriangles()
	if len(indices) == 0 {
		return nil, nil, ErrDegenerate
	}
	return verts, indices, nil
}

// dedupe merges coincident points and remaps constraint edges onto the
// merged index space, dropping edges that collapse to a single vertex.
func dedupe(pts []Point, edges []Edge) ([]Point, []Edge) {
	verts := make([]Point, 0, len(pts))
	remap := make([]int, len(pts))
	seen := make(map[Point]int, len(pts))

	for i, p := range pts {
		if j, ok := seen[p]; ok {
			remap[i] = j
			continue
		}
		seen[p] = len(verts)
		remap[i] = len(verts)
		verts = append(verts, p)
	}

	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		a, b := remap[e.A], remap[e.B]
		if a == b {
			continue
		}
		out = append(out, Edge{A: a, B: b})
	}
	return verts, out
}

// triangulation holds the working state: vertices (the last three are the
// super-triangle corners) and the live triangle set.
type triangulation struct {
	verts []Point
	tris  []tri
	super int // index of the first super-triangle vertex

	// constrained holds the undirected boundary edges actually present
	// after insertion, including sub-edges of constraints split at
	// collinear vertices.
	constrained map[[2]int]bool
}

func edgeKey(a, b int) [2]int {
	if a > b {
		return [2]int{b, a}
	}
	return [2]int{a, b}
}

// tri is a triangle by vertex indices. Dead triangles are marked rather
// than removed so indices held elsewhere stay stable.
type tri struct {
	v    [3]int
	dead bool
}

// delaunay runs Bowyer-Watson insertion of all vertices into a
// super-triangle enclosing their bounding box.
func delaunay(verts []Point) (*triangulation, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range verts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		return nil, ErrDegenerate
	}
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2

	d := &triangulation{
		constrained: make(map[[2]int]bool),
		verts: append(append([]Point(nil), verts...),
			Point{X: cx - 20*span, Y: cy - span},
			Point{X: cx + 20*span, Y: cy - span},
			Point{X: cx, Y: cy + 20*span}),
		super: len(verts),
	}
	d.tris = []tri{{v: [3]int{d.super, d.super + 1, d.super + 2}}}

	for i := range verts {
		d.insertPoint(i)
	}
	return d, nil
}

// insertPoint performs one Bowyer-Watson step: remove every triangle whose
// circumcircle contains the point and re-triangulate the cavity boundary
// as a fan around the new point.
func (d *triangulation) insertPoint(pi int) {
	p := d.verts[pi]

	// Edge of the cavity boundary: edges appearing in exactly one bad
	// triangle survive; shared edges cancel.
	type ekey struct{ a, b int }
	boundary := make(map[ekey]int)

	for ti := range d.tris {
		t := &d.tris[ti]
		if t.dead || !inCircumcircle(d.verts[t.v[0]], d.verts[t.v[1]], d.verts[t.v[2]], p) {
			continue
		}
		t.dead = true
		for e := 0; e < 3; e++ {
			a, b := t.v[e], t.v[(e+1)%3]
			k := ekey{a, b}
			if a > b {
				k = ekey{b, a}
			}
			boundary[k]++
		}
	}

	for k, n := range boundary {
		if n != 1 {
			continue
		}
		d.tris = append(d.tris, tri{v: orient3(d.verts, k.a, k.b, pi)})
	}
}

// orient3 returns the triangle (a, b, c) with counter-clockwise winding.
func orient3(verts []Point, a, b, c int) [3]int {
	if orient(verts[a], verts[b], verts[c]) < 0 {
		return [3]int{a, c, b}
	}
	return [3]int{a, b, c}
}

// orient returns twice the signed area of triangle (a, b, c):
// positive for counter-clockwise, zero for collinear.
func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// inCircumcircle reports whether p lies strictly inside the circumcircle
// of counter-clockwise triangle (a, b, c). Clockwise input flips the sign.
func inCircumcircle(a, b, c, p Point) bool {
	ax, ay := a.X-p.X, a.Y-p.Y
	bx, by := b.X-p.X, b.Y-p.Y
	cx, cy := c.X-p.X, c.Y-p.Y
	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)
	if orient(a, b, c) < 0 {
		return det < 0
	}
	return det > 0
}

// hasEdge reports whether any live triangle uses the undirected edge (a, b).
func (d *triangulation) hasEdge(a, b int) bool {
	for ti := range d.tris {
		t := &d.tris[ti]
		if t.dead {
			continue
		}
		for e := 0; e < 3; e++ {
			u, v := t.v[e], t.v[(e+1)%3]
			if (u == a && v == b) || (u == b && v == a) {
				return true
			}
		}
	}
	return false
}

// insertConstraint forces the undirected edge (a, b) into the
// triangulation. Triangles crossed by the segment are removed and the two
// resulting pseudo-polygons re-triangulated against the new edge. A vertex
// lying exactly on the segment splits the constraint in two.
func (d *triangulation) insertConstraint(a, b int) error {
	if a == b {
		return nil
	}
	if d.hasEdge(a, b) {
		d.constrained[edgeKey(a, b)] = true
		return nil
	}

	pa, pb := d.verts[a], d.verts[b]

	// A vertex on the open segment splits the constraint.
	for vi := 0; vi < d.super; vi++ {
		if vi == a || vi == b {
			continue
		}
		if onSegment(pa, pb, d.verts[vi]) {
			if err := d.insertConstraint(a, vi); err != nil {
				return err
			}
			return d.insertConstraint(vi, b)
		}
	}

	// Collect triangles whose interior the segment crosses, and the
	// cavity vertices on each side of the segment.
	var cavity []int
	for ti := range d.tris {
		t := &d.tris[ti]
		if t.dead {
			continue
		}
		if triangleCrossedBy(d.verts, t.v, pa, pb, a, b) {
			cavity = append(cavity, ti)
		}
	}
	if len(cavity) == 0 {
		return ErrConstraint
	}

	var upper, lower []int
	seenUp := map[int]bool{}
	seenLo := map[int]bool{}
	for _, ti := range cavity {
		t := d.tris[ti]
		d.tris[ti].dead = true
		for _, vi := range t.v {
			if vi == a || vi == b {
				continue
			}
			side := orient(pa, pb, d.verts[vi])
			if side > 0 && !seenUp[vi] {
				seenUp[vi] = true
				upper = append(upper, vi)
			} else if side < 0 && !seenLo[vi] {
				seenLo[vi] = true
				lower = append(lower, vi)
			}
		}
	}

	d.fillPseudo(a, b, upper)
	d.fillPseudo(b, a, lower)
	d.constrained[edgeKey(a, b)] = true
	return nil
}

// triangleCrossedBy reports whether segment (pa, pb) passes through the
// interior of the triangle, excluding triangles that merely touch the
// segment endpoints.
func triangleCrossedBy(verts []Point, v [3]int, pa, pb Point, a, b int) bool {
	// A triangle using both endpoints would already supply the edge.
	uses := 0
	for _, vi := range v {
		if vi == a || vi == b {
			uses++
		}
	}
	if uses == 2 {
		return false
	}

	for e := 0; e < 3; e++ {
		u, w := v[e], v[(e+1)%3]
		if u == a || u == b || w == a || w == b {
			continue
		}
		if segmentsCross(pa, pb, verts[u], verts[w]) {
			return true
		}
	}
	return false
}

// segmentsCross reports proper intersection of open segments.
func segmentsCross(p1, p2, q1, q2 Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// onSegment reports whether p lies on the open segment (a, b).
func onSegment(a, b, p Point) bool {
	if orient(a, b, p) != 0 {
		return false
	}
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y) &&
		p != a && p != b
}

// fillPseudo Delaunay-triangulates the pseudo-polygon bounded by the base
// edge (a, b) and the cavity points on one side of it.
func (d *triangulation) fillPseudo(a, b int, points []int) {
	if len(points) == 0 {
		return
	}
	if len(points) == 1 {
		d.tris = append(d.tris, tri{v: orient3(d.verts, a, b, points[0])})
		return
	}

	// Pick the point whose circumcircle with the base edge contains no
	// other cavity point, then recurse on the two sub-polygons.
	best := 0
	for i := 1; i < len(points); i++ {
		if inCircumcircle(d.verts[a], d.verts[b], d.verts[points[best]], d.verts[points[i]]) {
			best = i
		}
	}
	c := points[best]
	d.tris = append(d.tris, tri{v: orient3(d.verts, a, b, c)})

	var left, right []int
	pa, pc := d.verts[a], d.verts[c]
	pb := d.verts[b]
	for i, vi := range points {
		if i == best {
			continue
		}
		// Partition remaining points by which sub-edge they face.
		if orient(pa, pc, d.verts[vi])*orient(pa, pc, pb) < 0 {
			left = append(left, vi)
		} else {
			right = append(right, vi)
		}
	}
	d.fillPseudo(a, c, left)
	d.fillPseudo(c, b, right)
}

// interiorTriangles erases outer triangles and hole interiors and returns
// the surviving triangles as a flat index list.
//
// Depth is the minimum number of constraint edges crossed on any path from
// outside the super-triangle: even depth is exterior or hole, odd depth is
// polygon interior.
func (d *triangulation) interiorTriangles() []uint32 {
	// Adjacency over live triangles.
	live := make([]int, 0, len(d.tris))
	adj := make(map[[2]int][]int)
	for ti := range d.tris {
		if d.tris[ti].dead {
			continue
		}
		live = append(live, ti)
		t := d.tris[ti].v
		for e := 0; e < 3; e++ {
			k := edgeKey(t[e], t[(e+1)%3])
			adj[k] = append(adj[k], ti)
		}
	}

	depth := make(map[int]int, len(live))

	// 0-1 BFS from triangles touching the super-triangle: those are
	// unconditionally outside.
	var queue []int
	push := func(ti, dep int) {
		if cur, ok := depth[ti]; ok && cur <= dep {
			return
		}
		depth[ti] = dep
		queue = append(queue, ti)
	}
	for _, ti := range live {
		for _, vi := range d.tris[ti].v {
			if vi >= d.super {
				push(ti, 0)
				break
			}
		}
	}
	for len(queue) > 0 {
		ti := queue[0]
		queue = queue[1:]
		t := d.tris[ti].v
		for e := 0; e < 3; e++ {
			k := edgeKey(t[e], t[(e+1)%3])
			step := 0
			if d.constrained[k] {
				step = 1
			}
			for _, ni := range adj[k] {
				if ni != ti {
					push(ni, depth[ti]+step)
				}
			}
		}
	}

	var out []uint32
	for _, ti := range live {
		t := d.tris[ti].v
		if t[0] >= d.super || t[1] >= d.super || t[2] >= d.super {
			continue
		}
		if depth[ti]%2 == 0 {
			continue
		}
		if orient(d.verts[t[0]], d.verts[t[1]], d.verts[t[2]]) == 0 {
			continue
		}
		out = append(out, uint32(t[0]), uint32(t[1]), uint32(t[2]))
	}
	return out
}
