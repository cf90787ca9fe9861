package constraint

import (
	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/geo"
	"github.com/urban-futures/plantable/internal/index"
)

// buildingSearchM caps the nearest-building search radius. Beyond this
// the clearance trivially passes.
const buildingSearchM = 500.0

// clearanceRule is a minimum-distance gate against one point kind.
type clearanceRule struct {
	name  string
	kind  dataset.FeatureKind
	minFt float64
	cost  int

	// bands annotates results with the optimal/gap spacing band; only
	// tree_spacing uses it.
	bandMaxFt float64
}

func (r clearanceRule) Name() string        { return r.name }
func (r clearanceRule) RequiredFt() float64 { return r.minFt }
func (r clearanceRule) Cost() int           { return r.cost }

func (r clearanceRule) Evaluate(site Site, idx *index.Set) Result {
	ix, built := idx.Point(r.kind)
	if !built {
		return Result{Verdict: VerdictUnverified}
	}
	near, found := ix.Nearest(site.Pos)
	if !found {
		// Dataset present but empty: nothing to violate.
		return Result{Verdict: VerdictPass}
	}
	distFt := geo.MetersToFeet(near.Dist)
	res := Result{
		DistanceFt:       distFt,
		NearestFeatureID: near.ID,
	}
	if distFt < r.minFt {
		res.Verdict = VerdictFail
	} else {
		res.Verdict = VerdictPass
	}
	if r.bandMaxFt > 0 && res.Verdict == VerdictPass {
		if distFt <= r.bandMaxFt {
			res.Detail = SpacingOptimal
		} else {
			res.Detail = SpacingGap
		}
	}
	return res
}

// sidewalkPresenceRule requires the candidate to fall within (or within
// tolerance of) a sidewalk polygon.
type sidewalkPresenceRule struct {
	tolFt float64
}

func (r sidewalkPresenceRule) Name() string        { return SidewalkPresence }
func (r sidewalkPresenceRule) RequiredFt() float64 { return 0 }
func (r sidewalkPresenceRule) Cost() int           { return 20 }

func (r sidewalkPresenceRule) Evaluate(site Site, idx *index.Set) Result {
	ix, built := idx.Sidewalks()
	if !built {
		return Result{Verdict: VerdictUnverified}
	}
	poly, ok := ix.Containing(site.Pos, geo.FeetToMeters(r.tolFt))
	if !ok {
		return Result{Verdict: VerdictFail}
	}
	return Result{Verdict: VerdictPass, NearestFeatureID: poly.ID}
}

// sidewalkWidthRule measures the sidewalk's local cross-section at the
// candidate along the street-perpendicular direction.
type sidewalkWidthRule struct {
	minWidthFt float64
	tolFt      float64
}

func (r sidewalkWidthRule) Name() string        { return SidewalkWidth }
func (r sidewalkWidthRule) RequiredFt() float64 { return 0 }
func (r sidewalkWidthRule) Cost() int           { return 30 }

func (r sidewalkWidthRule) Evaluate(site Site, idx *index.Set) Result {
	ix, built := idx.Sidewalks()
	if !built {
		return Result{Verdict: VerdictUnverified}
	}
	widthM := ix.ChordWidth(site.Pos, site.Across, geo.FeetToMeters(r.tolFt))
	widthFt := geo.MetersToFeet(widthM)
	res := Result{DistanceFt: widthFt}
	if widthFt >= r.minWidthFt {
		res.Verdict = VerdictPass
	} else {
		res.Verdict = VerdictFail
	}
	return res
}

// buildingRule gates on distance to the nearest building footprint
// edge, or to the nearest centroid when only approximate positions were
// available. Centroid-based verdicts carry the Approximate flag.
type buildingRule struct {
	minFt float64
}

func (r buildingRule) Name() string        { return BuildingClearance }
func (r buildingRule) RequiredFt() float64 { return r.minFt }
func (r buildingRule) Cost() int           { return 40 }

func (r buildingRule) Evaluate(site Site, idx *index.Set) Result {
	if !idx.HasBuildings() {
		return Result{Verdict: VerdictUnverified}
	}

	if polys, ok := idx.BuildingPolys(); ok {
		near, found := polys.NearestEdge(site.Pos, buildingSearchM)
		if !found {
			return Result{Verdict: VerdictPass}
		}
		distFt := geo.MetersToFeet(near.Dist)
		res := Result{DistanceFt: distFt, NearestFeatureID: near.ID}
		if distFt < r.minFt {
			res.Verdict = VerdictFail
		} else {
			res.Verdict = VerdictPass
		}
		return res
	}

	centroids, _ := idx.BuildingCentroids()
	near, found := centroids.Nearest(site.Pos)
	if !found {
		return Result{Verdict: VerdictPass, Approximate: true}
	}
	distFt := geo.MetersToFeet(near.Dist)
	res := Result{DistanceFt: distFt, NearestFeatureID: near.ID, Approximate: true}
	if distFt < r.minFt {
		res.Verdict = VerdictFail
	} else {
		res.Verdict = VerdictPass
	}
	return res
}
