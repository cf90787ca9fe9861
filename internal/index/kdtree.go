// Package index builds the read-only spatial query structures the
// generator and evaluator share: a static KD-tree for point features
// and a bucket grid for polygon sets. Indexes are built once per run
// and are safe for concurrent reads.
package index

import (
	"math"
	"sort"

	"github.com/urban-futures/plantable/internal/geo"
)

// Entry is one indexed point feature.
type Entry struct {
	ID  string
	Pos geo.XY
}

// Neighbor is a query result with its distance in meters.
type Neighbor struct {
	Entry
	Dist float64
}

// PointIndex is a static 2-d KD-tree over point entries. The tree is
// laid out in place: each subrange's median is its node, built by
// alternating-axis sorting, the same flat-array scheme the clustering
// literature uses for bulk-loaded trees.
type PointIndex struct {
	pts []Entry
}

// NewPointIndex bulk-loads a KD-tree. The input slice is copied; an
// empty input yields a usable index that answers "nothing found".
func NewPointIndex(entries []Entry) *PointIndex {
	pts := make([]Entry, len(entries))
	copy(pts, entries)
	build(pts, 0)
	return &PointIndex{pts: pts}
}

// Len returns the number of indexed entries.
func (ix *PointIndex) Len() int { return len(ix.pts) }

func build(pts []Entry, axis int) {
	if len(pts) <= 1 {
		return
	}
	sort.Slice(pts, func(i, j int) bool {
		if axis == 0 {
			return pts[i].Pos.X < pts[j].Pos.X
		}
		return pts[i].Pos.Y < pts[j].Pos.Y
	})
	mid := len(pts) / 2
	build(pts[:mid], 1-axis)
	build(pts[mid+1:], 1-axis)
}

// Nearest returns the closest entry to p. ok is false when the index
// is empty; that is "no features found", not "dataset absent".
func (ix *PointIndex) Nearest(p geo.XY) (Neighbor, bool) {
	if len(ix.pts) == 0 {
		return Neighbor{}, false
	}
	best := Neighbor{Dist: math.Inf(1)}
	ix.nearest(ix.pts, 0, p, &best)
	return best, true
}

func (ix *PointIndex) nearest(pts []Entry, axis int, p geo.XY, best *Neighbor) {
	if len(pts) == 0 {
		return
	}
	mid := len(pts) / 2
	node := pts[mid]
	if d := p.Dist(node.Pos); d < best.Dist || (d == best.Dist && node.ID < best.ID) {
		best.Entry = node
		best.Dist = d
	}

	var delta float64
	if axis == 0 {
		delta = p.X - node.Pos.X
	} else {
		delta = p.Y - node.Pos.Y
	}
	near, far := pts[:mid], pts[mid+1:]
	if delta > 0 {
		near, far = far, near
	}
	ix.nearest(near, 1-axis, p, best)
	if math.Abs(delta) <= best.Dist {
		ix.nearest(far, 1-axis, p, best)
	}
}

// Within returns every entry within radius of p, ordered by distance
// then id for determinism.
func (ix *PointIndex) Within(p geo.XY, radius float64) []Neighbor {
	var out []Neighbor
	ix.within(ix.pts, 0, p, radius, &out)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist != out[j].Dist {
			return out[i].Dist < out[j].Dist
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (ix *PointIndex) within(pts []Entry, axis int, p geo.XY, radius float64, out *[]Neighbor) {
	if len(pts) == 0 {
		return
	}
	mid := len(pts) / 2
	node := pts[mid]
	if d := p.Dist(node.Pos); d <= radius {
		*out = append(*out, Neighbor{Entry: node, Dist: d})
	}

	var delta float64
	if axis == 0 {
		delta = p.X - node.Pos.X
	} else {
		delta = p.Y - node.Pos.Y
	}
	if delta-radius <= 0 {
		ix.within(pts[:mid], 1-axis, p, radius, out)
	}
	if delta+radius >= 0 {
		ix.within(pts[mid+1:], 1-axis, p, radius, out)
	}
}
