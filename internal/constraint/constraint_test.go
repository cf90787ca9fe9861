package constraint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/geo"
	"github.com/urban-futures/plantable/internal/index"
)

// testSnapshot builds a minimal snapshot with the given datasets marked
// present. Coordinates are already in planar meters.
func testSnapshot(present ...string) *dataset.Snapshot {
	snap := &dataset.Snapshot{
		Points: make(map[dataset.FeatureKind][]dataset.PointFeature),
		Stats:  make(map[string]dataset.Stats),
	}
	for _, name := range present {
		snap.Stats[name] = dataset.Stats{Name: name, Present: true}
	}
	return snap
}

func addPoint(snap *dataset.Snapshot, kind dataset.FeatureKind, id string, x, y float64) {
	snap.Points[kind] = append(snap.Points[kind], dataset.PointFeature{
		ID: id, Kind: kind, XY: geo.XY{X: x, Y: y},
	})
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry(DefaultClearances())
	names := reg.Names()

	require.Len(t, names, 11)
	want := []string{
		TreeSpacing, StopSignClearance, GenericSignClearance,
		HydrantClearance, BusStopClearance, IntersectionClear,
		StreetLightClearance, CurbCutClearance, SidewalkPresence,
		SidewalkWidth, BuildingClearance,
	}
	assert.ElementsMatch(t, want, names)
}

func TestRegistry_EveryRuleRecorded(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets)
	addPoint(snap, dataset.KindTree, "tree-0", 100, 0)
	idx := index.Build(snap)

	reg := NewRegistry(DefaultClearances())
	ev, err := reg.Evaluate(Site{Pos: geo.XY{X: 0, Y: 0}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	require.Len(t, ev.Results, len(reg.Names()))
	for _, name := range reg.Names() {
		_, ok := ev.Results[name]
		assert.True(t, ok, "missing result for %s", name)
	}
}

func TestRegistry_AbsentDatasetsReportUnverified(t *testing.T) {
	// Only trees and streets supplied; every other rule must say
	// UNVERIFIED, and UNVERIFIED never rejects.
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets)
	addPoint(snap, dataset.KindTree, "tree-0", 100, 0)
	idx := index.Build(snap)

	reg := NewRegistry(DefaultClearances())
	ev, err := reg.Evaluate(Site{Pos: geo.XY{X: 0, Y: 0}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	assert.True(t, ev.Accepted())
	for _, name := range []string{
		HydrantClearance, BusStopClearance, StreetLightClearance,
		CurbCutClearance, SidewalkPresence, SidewalkWidth,
		BuildingClearance, StopSignClearance, GenericSignClearance,
	} {
		assert.Equal(t, VerdictUnverified, ev.Results[name].Verdict, name)
	}
	assert.Equal(t, VerdictPass, ev.Results[TreeSpacing].Verdict)
}

func TestRegistry_PresentButEmptyPasses(t *testing.T) {
	// Hydrants supplied but the file held zero usable rows: that is a
	// verified "no hydrants here", not UNVERIFIED.
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameHydrants)
	addPoint(snap, dataset.KindTree, "tree-0", 100, 0)
	idx := index.Build(snap)

	reg := NewRegistry(DefaultClearances())
	ev, err := reg.Evaluate(Site{Pos: geo.XY{X: 0, Y: 0}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	assert.Equal(t, VerdictPass, ev.Results[HydrantClearance].Verdict)
	assert.Empty(t, ev.Results[HydrantClearance].NearestFeatureID)
}

func TestTreeSpacing_FailInsideMinimum(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets)
	// 10 ft away: inside the 20 ft minimum.
	addPoint(snap, dataset.KindTree, "tree-0", geo.FeetToMeters(10), 0)
	idx := index.Build(snap)

	reg := NewRegistry(DefaultClearances())
	ev, err := reg.Evaluate(Site{Pos: geo.XY{}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	res := ev.Results[TreeSpacing]
	assert.Equal(t, VerdictFail, res.Verdict)
	assert.Equal(t, "tree-0", res.NearestFeatureID)
	assert.InDelta(t, 10, res.DistanceFt, 1e-9)
	assert.Contains(t, ev.Failed, TreeSpacing)
	assert.False(t, ev.Accepted())
}

func TestTreeSpacing_Bands(t *testing.T) {
	tests := []struct {
		name    string
		distFt  float64
		verdict Verdict
		detail  string
	}{
		{"inside minimum", 15, VerdictFail, ""},
		{"optimal band", 25, VerdictPass, SpacingOptimal},
		{"band boundary", 30, VerdictPass, SpacingOptimal},
		{"gap band", 45, VerdictPass, SpacingGap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot(dataset.NameTrees, dataset.NameStreets)
			addPoint(snap, dataset.KindTree, "tree-0", geo.FeetToMeters(tt.distFt), 0)
			idx := index.Build(snap)

			reg := NewRegistry(DefaultClearances())
			ev, err := reg.Evaluate(Site{Pos: geo.XY{}, Across: geo.XY{X: 0, Y: 1}}, idx)
			require.NoError(t, err)

			res := ev.Results[TreeSpacing]
			assert.Equal(t, tt.verdict, res.Verdict)
			assert.Equal(t, tt.detail, res.Detail)
		})
	}
}

func TestSidewalkRules(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameSidewalks)
	addPoint(snap, dataset.KindTree, "tree-0", 500, 500)
	// A sidewalk strip 2 m (~6.6 ft) across in Y.
	snap.Sidewalks = []dataset.SidewalkPolygon{{
		ID: "sw-0",
		XYs: []geo.XY{
			{X: -50, Y: -1}, {X: 50, Y: -1}, {X: 50, Y: 1}, {X: -50, Y: 1}, {X: -50, Y: -1},
		},
	}}
	idx := index.Build(snap)
	reg := NewRegistry(DefaultClearances())

	// On the sidewalk: presence passes, width 2 m > 3.25 ft passes.
	ev, err := reg.Evaluate(Site{Pos: geo.XY{X: 0, Y: 0}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, ev.Results[SidewalkPresence].Verdict)
	assert.Equal(t, "sw-0", ev.Results[SidewalkPresence].NearestFeatureID)
	assert.Equal(t, VerdictPass, ev.Results[SidewalkWidth].Verdict)
	assert.InDelta(t, geo.MetersToFeet(2), ev.Results[SidewalkWidth].DistanceFt, 1e-9)

	// Off the sidewalk: presence fails.
	ev, err = reg.Evaluate(Site{Pos: geo.XY{X: 0, Y: 30}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, ev.Results[SidewalkPresence].Verdict)
}

func TestSidewalkWidth_TooNarrow(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameSidewalks)
	addPoint(snap, dataset.KindTree, "tree-0", 500, 500)
	// 0.6 m is just under 2 ft, below the 3.25 ft minimum.
	snap.Sidewalks = []dataset.SidewalkPolygon{{
		ID: "sw-0",
		XYs: []geo.XY{
			{X: -50, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 0.6}, {X: -50, Y: 0.6}, {X: -50, Y: 0},
		},
	}}
	idx := index.Build(snap)
	reg := NewRegistry(DefaultClearances())

	ev, err := reg.Evaluate(Site{Pos: geo.XY{X: 0, Y: 0.3}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, ev.Results[SidewalkWidth].Verdict)
}

func TestBuildingClearance_ApproximateCentroids(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameBuildings)
	addPoint(snap, dataset.KindTree, "tree-0", 500, 500)
	snap.Buildings = []dataset.BuildingFootprint{{
		ID:          "bldg-0",
		CentroidXY:  geo.XY{X: geo.FeetToMeters(3), Y: 0},
		Approximate: true,
	}}
	idx := index.Build(snap)
	reg := NewRegistry(DefaultClearances())

	ev, err := reg.Evaluate(Site{Pos: geo.XY{}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	res := ev.Results[BuildingClearance]
	assert.Equal(t, VerdictFail, res.Verdict)
	assert.True(t, res.Approximate)
	assert.Equal(t, "bldg-0", res.NearestFeatureID)
}

func TestBuildingClearance_FootprintEdge(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameBuildings)
	addPoint(snap, dataset.KindTree, "tree-0", 500, 500)
	// Footprint whose nearest edge is 10 ft away even though the
	// centroid is much farther.
	edge := geo.FeetToMeters(10)
	snap.Buildings = []dataset.BuildingFootprint{{
		ID: "bldg-0",
		XYs: []geo.XY{
			{X: edge, Y: -20}, {X: edge + 40, Y: -20},
			{X: edge + 40, Y: 20}, {X: edge, Y: 20}, {X: edge, Y: -20},
		},
	}}
	idx := index.Build(snap)
	reg := NewRegistry(DefaultClearances())

	ev, err := reg.Evaluate(Site{Pos: geo.XY{}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	res := ev.Results[BuildingClearance]
	assert.Equal(t, VerdictPass, res.Verdict)
	assert.False(t, res.Approximate)
	assert.InDelta(t, 10, res.DistanceFt, 1e-6)
}

func TestEvaluation_Margin(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameHydrants)
	// Tree 25 ft away (margin 5 over the 20 ft minimum), hydrant 50 ft
	// away (margin 45 over 5 ft). Overall margin is the tightest.
	addPoint(snap, dataset.KindTree, "tree-0", geo.FeetToMeters(25), 0)
	addPoint(snap, dataset.KindHydrant, "hyd-0", 0, geo.FeetToMeters(50))
	idx := index.Build(snap)

	reg := NewRegistry(DefaultClearances())
	ev, err := reg.Evaluate(Site{Pos: geo.XY{}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)

	assert.True(t, ev.Accepted())
	assert.InDelta(t, 5, ev.MarginFt, 1e-9)
}

func TestEvaluation_MarginUnconstrained(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets, dataset.NameHydrants)
	addPoint(snap, dataset.KindTree, "tree-0", 5000, 5000)
	idx := index.Build(snap)

	reg := NewRegistry(Clearances{TreeSpacingFt: 20})
	ev, err := reg.Evaluate(Site{Pos: geo.XY{}, Across: geo.XY{X: 0, Y: 1}}, idx)
	require.NoError(t, err)
	require.True(t, ev.Accepted())
	assert.Greater(t, ev.MarginFt, 1000.0)
}

func TestRegistry_NonFiniteQuery(t *testing.T) {
	snap := testSnapshot(dataset.NameTrees, dataset.NameStreets)
	addPoint(snap, dataset.KindTree, "tree-0", 100, 0)
	idx := index.Build(snap)

	reg := NewRegistry(DefaultClearances())
	_, err := reg.Evaluate(Site{Pos: geo.XY{X: math.NaN(), Y: 0}}, idx)
	assert.Error(t, err)
}

func TestRegistry_Coverage(t *testing.T) {
	reg := NewRegistry(DefaultClearances())
	stats := map[string]dataset.Stats{
		dataset.NameTrees:    {Name: dataset.NameTrees, Present: true},
		dataset.NameStreets:  {Name: dataset.NameStreets, Present: true},
		dataset.NameHydrants: {Name: dataset.NameHydrants, Present: true, Skipped: 3},
	}

	cov := reg.Coverage(stats)
	assert.Equal(t, "verified", cov[TreeSpacing])
	assert.Equal(t, "verified", cov[IntersectionClear])
	assert.Equal(t, "partial", cov[HydrantClearance])
	assert.Equal(t, "unverified", cov[SidewalkPresence])
	assert.Equal(t, "unverified", cov[BuildingClearance])

	unv := reg.Unverified(stats)
	assert.Contains(t, unv, SidewalkWidth)
	assert.NotContains(t, unv, TreeSpacing)
	assert.NotContains(t, unv, HydrantClearance)
}
