// Package dataset normalizes heterogeneous municipal open-data files
// (CSV and shapefile) into the typed, unit-consistent snapshot the
// siting pipeline runs against.
package dataset

import (
	"github.com/urban-futures/plantable/internal/geo"
)

// FeatureKind tags a normalized point feature with its source dataset.
type FeatureKind string

const (
	KindTree         FeatureKind = "tree"
	KindStopSign     FeatureKind = "stop_sign"
	KindGenericSign  FeatureKind = "generic_sign"
	KindHydrant      FeatureKind = "hydrant"
	KindBusStop      FeatureKind = "bus_stop"
	KindStreetLight  FeatureKind = "street_light"
	KindCurbRamp     FeatureKind = "curb_ramp"
	KindIntersection FeatureKind = "intersection"
	KindBuilding     FeatureKind = "building"
)

// PointKinds is the full set of point-indexed feature kinds, in a fixed
// order used for deterministic index construction.
var PointKinds = []FeatureKind{
	KindTree, KindStopSign, KindGenericSign, KindHydrant, KindBusStop,
	KindStreetLight, KindCurbRamp, KindIntersection, KindBuilding,
}

// PointFeature is a normalized point record: an existing tree, sign,
// hydrant, bus stop, street light, curb ramp, derived intersection, or
// building centroid.
type PointFeature struct {
	ID    string
	Kind  FeatureKind
	Pt    geo.Point
	XY    geo.XY
	Attrs map[string]string
}

// StreetSegment is an ordered centerline polyline. Width is the
// curb-to-curb width in feet, zero when unknown.
type StreetSegment struct {
	ID      string
	Class   string
	WidthFt float64
	Line    []geo.Point
	XYs     []geo.XY
}

// SidewalkPolygon is a closed ring of sidewalk footprint coordinates.
type SidewalkPolygon struct {
	ID   string
	Ring []geo.Point
	XYs  []geo.XY
}

// BuildingFootprint is either a full polygon or, when only centroid data
// was available, a single point with Approximate set. The flag follows
// the record through every clearance verdict computed from it.
type BuildingFootprint struct {
	ID          string
	Ring        []geo.Point
	XYs         []geo.XY
	Centroid    geo.Point
	CentroidXY  geo.XY
	Approximate bool
}

// Stats records the load outcome for one input dataset. Skipped counts
// malformed rows; Filtered counts well-formed rows excluded by policy
// (dead or stump tree records), so Parsed+Skipped+Filtered accounts for
// every input row.
type Stats struct {
	Name     string `json:"name" yaml:"name"`
	Present  bool   `json:"present" yaml:"present"`
	Parsed   int    `json:"parsed" yaml:"parsed"`
	Skipped  int    `json:"skipped" yaml:"skipped"`
	Filtered int    `json:"filtered,omitempty" yaml:"filtered,omitempty"`
}

// Snapshot is the immutable normalized input set for one pipeline run.
// Nothing in it is mutated after Load returns; concurrent readers need
// no locking.
type Snapshot struct {
	Projector *geo.Projector
	Segments  []StreetSegment
	Sidewalks []SidewalkPolygon
	Buildings []BuildingFootprint
	Points    map[FeatureKind][]PointFeature
	Stats     map[string]Stats
}

// Present reports whether the dataset backing the given kind was loaded.
// A present-but-empty dataset still counts as present; only a dataset
// that was never supplied drives UNVERIFIED verdicts.
func (s *Snapshot) Present(name string) bool {
	st, ok := s.Stats[name]
	return ok && st.Present
}
