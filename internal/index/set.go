package index

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/geo"
)

// Set holds every per-kind index for one run. A kind may be absent
// (its source dataset was never supplied), which is distinct from
// present-but-empty; absence is what degrades constraints to
// UNVERIFIED.
type Set struct {
	points map[dataset.FeatureKind]*PointIndex

	sidewalks *PolygonIndex

	// Buildings are indexed either as footprint polygons or, when only
	// centroid records were available, as points with ApproxBuildings
	// set. The distinction follows every verdict computed from them.
	buildingPolys     *PolygonIndex
	buildingCentroids *PointIndex
	ApproxBuildings   bool
}

// Build constructs every index the snapshot's datasets support.
func Build(snap *dataset.Snapshot) *Set {
	s := &Set{points: make(map[dataset.FeatureKind]*PointIndex)}

	presentKind := map[dataset.FeatureKind]bool{
		dataset.KindTree:         snap.Present(dataset.NameTrees),
		dataset.KindStopSign:     snap.Present(dataset.NameSigns),
		dataset.KindGenericSign:  snap.Present(dataset.NameSigns),
		dataset.KindHydrant:      snap.Present(dataset.NameHydrants),
		dataset.KindBusStop:      snap.Present(dataset.NameBusStops),
		dataset.KindStreetLight:  snap.Present(dataset.NameStreetLights),
		dataset.KindCurbRamp:     snap.Present(dataset.NameCurbRamps),
		dataset.KindIntersection: snap.Present(dataset.NameStreets),
	}

	for _, kind := range dataset.PointKinds {
		if kind == dataset.KindBuilding {
			continue
		}
		if !presentKind[kind] {
			continue
		}
		feats := snap.Points[kind]
		entries := make([]Entry, 0, len(feats))
		for _, f := range feats {
			entries = append(entries, Entry{ID: f.ID, Pos: f.XY})
		}
		s.points[kind] = NewPointIndex(entries)
	}

	if snap.Present(dataset.NameSidewalks) {
		polys := make([]Polygon, 0, len(snap.Sidewalks))
		for _, sw := range snap.Sidewalks {
			polys = append(polys, Polygon{ID: sw.ID, Ring: sw.XYs})
		}
		s.sidewalks = NewPolygonIndex(polys)
	}

	if snap.Present(dataset.NameBuildings) {
		var polys []Polygon
		var centroids []Entry
		for _, b := range snap.Buildings {
			if len(b.XYs) >= 4 && !b.Approximate {
				polys = append(polys, Polygon{ID: b.ID, Ring: b.XYs})
			} else {
				centroids = append(centroids, Entry{ID: b.ID, Pos: b.CentroidXY})
			}
		}
		if len(polys) > 0 && len(centroids) == 0 {
			s.buildingPolys = NewPolygonIndex(polys)
		} else {
			// Mixed or centroid-only input: fall back to centroids for
			// the whole set so the approximation is uniform and flagged.
			for _, p := range polys {
				centroids = append(centroids, Entry{ID: p.ID, Pos: ringCenter(p.Ring)})
			}
			s.buildingCentroids = NewPointIndex(centroids)
			s.ApproxBuildings = true
		}
	}

	zap.L().Debug("index: built spatial indexes",
		zap.Int("point_kinds", len(s.points)),
		zap.Bool("sidewalks", s.sidewalks != nil),
		zap.Bool("buildings", s.buildingPolys != nil || s.buildingCentroids != nil),
		zap.Bool("buildings_approximate", s.ApproxBuildings),
	)
	return s
}

func ringCenter(ring []geo.XY) geo.XY {
	var sum geo.XY
	for _, p := range ring {
		sum = sum.Add(p)
	}
	if len(ring) == 0 {
		return geo.XY{}
	}
	return sum.Scale(1 / float64(len(ring)))
}

// Point returns the index for a point kind. built is false when the
// kind's dataset was never supplied.
func (s *Set) Point(kind dataset.FeatureKind) (ix *PointIndex, built bool) {
	ix, built = s.points[kind]
	return ix, built
}

// Sidewalks returns the sidewalk polygon index, or built=false when the
// sidewalk dataset was absent.
func (s *Set) Sidewalks() (*PolygonIndex, bool) {
	return s.sidewalks, s.sidewalks != nil
}

// BuildingPolys returns the footprint polygon index when footprints
// were available in polygon form.
func (s *Set) BuildingPolys() (*PolygonIndex, bool) {
	return s.buildingPolys, s.buildingPolys != nil
}

// BuildingCentroids returns the centroid point index used when only
// approximate building positions were available.
func (s *Set) BuildingCentroids() (*PointIndex, bool) {
	return s.buildingCentroids, s.buildingCentroids != nil
}

// HasBuildings reports whether any building index was built.
func (s *Set) HasBuildings() bool {
	return s.buildingPolys != nil || s.buildingCentroids != nil
}

// CheckQuery validates query coordinates before touching the shared
// indexes. A non-finite coordinate means a corrupted upstream record
// slipped through normalization, which is fatal.
func CheckQuery(p geo.XY) error {
	if !p.Finite() {
		return eris.Wrapf(dataset.ErrIndexQuery, "non-finite query point (%f, %f)", p.X, p.Y)
	}
	return nil
}
