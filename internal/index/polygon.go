package index

import (
	"math"
	"sort"

	"github.com/urban-futures/plantable/internal/geo"
)

// polyCellM is the bucket-grid cell size for polygon bounding boxes.
const polyCellM = 100.0

// Polygon is one indexed closed ring.
type Polygon struct {
	ID   string
	Ring []geo.XY
}

type bbox struct {
	minX, minY, maxX, maxY float64
}

func (b bbox) contains(p geo.XY, tol float64) bool {
	return p.X >= b.minX-tol && p.X <= b.maxX+tol &&
		p.Y >= b.minY-tol && p.Y <= b.maxY+tol
}

type gridKey struct{ cx, cy int }

// PolygonIndex answers point-in-polygon, nearest-edge-distance, and
// local chord-width queries over a fixed polygon set using a uniform
// bucket grid keyed by bounding box.
type PolygonIndex struct {
	polys  []Polygon
	boxes  []bbox
	grid   map[gridKey][]int
	maxExt float64
}

// NewPolygonIndex builds the bucket grid. Degenerate rings (fewer than
// four vertices) are assumed filtered out by the normalizer.
func NewPolygonIndex(polys []Polygon) *PolygonIndex {
	ix := &PolygonIndex{
		polys: make([]Polygon, len(polys)),
		boxes: make([]bbox, len(polys)),
		grid:  make(map[gridKey][]int),
	}
	copy(ix.polys, polys)

	for i, poly := range ix.polys {
		b := bbox{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
		for _, p := range poly.Ring {
			b.minX = math.Min(b.minX, p.X)
			b.minY = math.Min(b.minY, p.Y)
			b.maxX = math.Max(b.maxX, p.X)
			b.maxY = math.Max(b.maxY, p.Y)
		}
		ix.boxes[i] = b
		if ext := math.Max(b.maxX-b.minX, b.maxY-b.minY); ext > ix.maxExt {
			ix.maxExt = ext
		}
		for cx := int(math.Floor(b.minX / polyCellM)); cx <= int(math.Floor(b.maxX/polyCellM)); cx++ {
			for cy := int(math.Floor(b.minY / polyCellM)); cy <= int(math.Floor(b.maxY/polyCellM)); cy++ {
				k := gridKey{cx, cy}
				ix.grid[k] = append(ix.grid[k], i)
			}
		}
	}
	return ix
}

// Len returns the number of indexed polygons.
func (ix *PolygonIndex) Len() int { return len(ix.polys) }

// candidates returns polygon indices whose bbox grid cells are within
// reach of p, deduplicated and ordered for determinism.
func (ix *PolygonIndex) candidates(p geo.XY, reach float64) []int {
	seen := make(map[int]bool)
	var out []int
	minCX := int(math.Floor((p.X - reach) / polyCellM))
	maxCX := int(math.Floor((p.X + reach) / polyCellM))
	minCY := int(math.Floor((p.Y - reach) / polyCellM))
	maxCY := int(math.Floor((p.Y + reach) / polyCellM))
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			for _, i := range ix.grid[gridKey{cx, cy}] {
				if !seen[i] {
					seen[i] = true
					out = append(out, i)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// Containing returns the polygon containing p, or within tol meters of
// its boundary. ok is false when no polygon matches.
func (ix *PolygonIndex) Containing(p geo.XY, tol float64) (Polygon, bool) {
	for _, i := range ix.candidates(p, tol) {
		if !ix.boxes[i].contains(p, tol) {
			continue
		}
		if pointInRing(p, ix.polys[i].Ring) {
			return ix.polys[i], true
		}
		if tol > 0 && ringEdgeDistance(p, ix.polys[i].Ring) <= tol {
			return ix.polys[i], true
		}
	}
	return Polygon{}, false
}

// NearestEdge returns the closest polygon boundary within maxRadius.
// A point inside a polygon reports distance zero.
func (ix *PolygonIndex) NearestEdge(p geo.XY, maxRadius float64) (Neighbor, bool) {
	best := Neighbor{Dist: math.Inf(1)}
	// Expand the search reach in grid steps so dense areas stay cheap.
	// The last pass is clamped to the full radius so polygons between
	// the final doubled reach and maxRadius are still visited.
	maxReach := maxRadius + ix.maxExt + polyCellM
	for reach := polyCellM; ; reach *= 2 {
		if reach > maxReach {
			reach = maxReach
		}
		for _, i := range ix.candidates(p, reach) {
			var d float64
			if pointInRing(p, ix.polys[i].Ring) {
				d = 0
			} else {
				d = ringEdgeDistance(p, ix.polys[i].Ring)
			}
			if d < best.Dist || (d == best.Dist && ix.polys[i].ID < best.ID) {
				best = Neighbor{Entry: Entry{ID: ix.polys[i].ID, Pos: p}, Dist: d}
			}
		}
		if best.Dist <= reach || reach >= maxReach {
			break
		}
	}
	if math.IsInf(best.Dist, 1) || best.Dist > maxRadius {
		return Neighbor{}, false
	}
	return best, true
}

// ChordWidth measures the polygon's local cross-section through p along
// dir: the length of the chord of the containing ring in that
// direction. Zero when p is not inside any polygon.
func (ix *PolygonIndex) ChordWidth(p geo.XY, dir geo.XY, tol float64) float64 {
	poly, ok := ix.Containing(p, tol)
	if !ok {
		return 0
	}
	u := dir.Unit()
	if u.Norm() == 0 {
		return 0
	}

	// Intersect the line p + t*u with every ring edge. Sorted crossing
	// parameters pair up into inside intervals (even-odd rule); the
	// interval covering t=0, or failing that the one closest to it,
	// is the local cross-section.
	var ts []float64
	ring := closedRing(poly.Ring)
	for i := 1; i < len(ring); i++ {
		if t, ok := raySegment(p, u, ring[i-1], ring[i]); ok {
			ts = append(ts, t)
		}
	}
	if len(ts) < 2 {
		return 0
	}
	sort.Float64s(ts)

	width := 0.0
	bestGap := math.Inf(1)
	for i := 0; i+1 < len(ts); i += 2 {
		lo, hi := ts[i], ts[i+1]
		var gap float64
		switch {
		case lo <= 0 && hi >= 0:
			gap = 0
		case hi < 0:
			gap = -hi
		default:
			gap = lo
		}
		if gap < bestGap {
			bestGap = gap
			width = hi - lo
		}
	}
	return width
}

// closedRing ensures the ring's last vertex repeats the first.
func closedRing(ring []geo.XY) []geo.XY {
	if len(ring) > 2 && ring[0] != ring[len(ring)-1] {
		return append(append([]geo.XY{}, ring...), ring[0])
	}
	return ring
}

// raySegment solves p + t*u == a + s*(b-a) for t with s in [0,1].
func raySegment(p, u, a, b geo.XY) (float64, bool) {
	e := b.Sub(a)
	denom := u.X*e.Y - u.Y*e.X
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}
	ap := a.Sub(p)
	t := (ap.X*e.Y - ap.Y*e.X) / denom
	s := (ap.X*u.Y - ap.Y*u.X) / denom
	if s < 0 || s > 1 {
		return 0, false
	}
	return t, true
}

// pointInRing is the even-odd ray-casting test.
func pointInRing(p geo.XY, ring []geo.XY) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[j], ring[i]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// ringEdgeDistance is the minimum distance from p to the ring boundary.
func ringEdgeDistance(p geo.XY, ring []geo.XY) float64 {
	best := math.Inf(1)
	for i := 1; i < len(ring); i++ {
		if d := geo.SegmentDistance(p, ring[i-1], ring[i]); d < best {
			best = d
		}
	}
	// Close the ring if the input did not repeat the first vertex.
	if len(ring) > 2 && ring[0] != ring[len(ring)-1] {
		if d := geo.SegmentDistance(p, ring[len(ring)-1], ring[0]); d < best {
			best = d
		}
	}
	return best
}
