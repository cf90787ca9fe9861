package dataset

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	geopkg "github.com/urban-futures/plantable/internal/geo"
)

// intersectionClusterM is the radius used to merge nearby street-segment
// endpoints into one intersection node. Segment endpoints from the same
// junction rarely coincide exactly in open-data exports.
const intersectionClusterM = 10.0

// deriveIntersections clusters street endpoints into intersection nodes
// and adds them as point features. The street network carries no
// explicit junction layer, so intersections are reconstructed from
// segment topology.
func deriveIntersections(snap *Snapshot) {
	var endpoints []geopkg.XY
	for _, seg := range snap.Segments {
		if len(seg.XYs) < 2 {
			continue
		}
		endpoints = append(endpoints, seg.XYs[0], seg.XYs[len(seg.XYs)-1])
	}
	if len(endpoints) == 0 {
		return
	}

	centroids := clusterPoints(endpoints, intersectionClusterM)

	feats := make([]PointFeature, 0, len(centroids))
	for i, c := range centroids {
		feats = append(feats, PointFeature{
			ID:   fmt.Sprintf("intersection-%d", i),
			Kind: KindIntersection,
			Pt:   snap.Projector.Unproject(c),
			XY:   c,
		})
	}
	snap.Points[KindIntersection] = feats

	zap.L().Debug("dataset: derived intersections",
		zap.Int("endpoints", len(endpoints)),
		zap.Int("intersections", len(feats)),
	)
}

// clusterPoints merges points within radius into connected components
// using a uniform grid hash, and returns component centroids in a
// deterministic order.
func clusterPoints(points []geopkg.XY, radius float64) []geopkg.XY {
	type cellKey struct{ cx, cy int }
	grid := make(map[cellKey][]int)
	key := func(p geopkg.XY) cellKey {
		return cellKey{int(p.X / radius), int(p.Y / radius)}
	}
	for i, p := range points {
		k := key(p)
		grid[k] = append(grid[k], i)
	}

	parent := make([]int, len(points))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i, p := range points {
		k := key(p)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[cellKey{k.cx + dx, k.cy + dy}] {
					if j > i && p.Dist(points[j]) <= radius {
						union(i, j)
					}
				}
			}
		}
	}

	sums := make(map[int]geopkg.XY)
	counts := make(map[int]int)
	for i, p := range points {
		r := find(i)
		sums[r] = sums[r].Add(p)
		counts[r]++
	}

	roots := make([]int, 0, len(sums))
	for r := range sums {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	centroids := make([]geopkg.XY, 0, len(roots))
	for _, r := range roots {
		centroids = append(centroids, sums[r].Scale(1/float64(counts[r])))
	}
	return centroids
}
