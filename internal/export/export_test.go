package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/urban-futures/plantable/internal/constraint"
	"github.com/urban-futures/plantable/internal/geo"
	"github.com/urban-futures/plantable/internal/hexgrid"
	"github.com/urban-futures/plantable/internal/plan"
)

func sampleCandidates() []plan.Candidate {
	return []plan.Candidate{
		{
			ID:      "seg-0:000:L",
			Segment: "seg-0",
			Station: 0,
			Side:    plan.SideLeft,
			Pt:      geo.Point{Lat: 40.7128, Lng: -74.0060},
			State:   plan.StateAggregated,
			Results: map[string]constraint.Result{
				constraint.TreeSpacing: {Verdict: constraint.VerdictPass, DistanceFt: 42.5, NearestFeatureID: "tree-7"},
			},
			MarginFt:  22.5,
			Canonical: true,
		},
		{
			ID:           "seg-0:000:R",
			Segment:      "seg-0",
			Station:      0,
			Side:         plan.SideRight,
			Pt:           geo.Point{Lat: 40.7127, Lng: -74.0061},
			State:        plan.StateSuperseded,
			SupersededBy: "seg-0:000:L",
			Results: map[string]constraint.Result{
				constraint.TreeSpacing: {Verdict: constraint.VerdictPass, DistanceFt: 41.0, NearestFeatureID: "tree-7"},
			},
			MarginFt: 21.0,
		},
		{
			ID:      "seg-0:001:L",
			Segment: "seg-0",
			Station: 1,
			Side:    plan.SideLeft,
			Pt:      geo.Point{Lat: 40.7129, Lng: -74.0059},
			State:   plan.StateRejected,
			Failed:  []string{constraint.HydrantClearance},
			Results: map[string]constraint.Result{
				constraint.HydrantClearance: {Verdict: constraint.VerdictFail, DistanceFt: 2.1, NearestFeatureID: "hyd-3"},
			},
		},
	}
}

func sampleCells() map[string]*hexgrid.Summary {
	return map[string]*hexgrid.Summary{
		"892a1008003ffff": {
			Cell:                   "892a1008003ffff",
			ExistingTrees:          4,
			AcceptedCandidates:     1,
			RejectionsByConstraint: map[string]int{constraint.HydrantClearance: 1},
		},
	}
}

func TestWriteCandidates_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, WriteCandidates(path, sampleCandidates()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []CandidateRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)

	assert.Equal(t, "seg-0:000:L", records[0].ID)
	assert.Equal(t, "aggregated", records[0].State)
	assert.Empty(t, records[0].SupersededBy)
	assert.Equal(t, "seg-0:000:L", records[1].SupersededBy)
	assert.Equal(t, constraint.VerdictFail, records[2].ConstraintResults[constraint.HydrantClearance].Verdict)
	assert.InDelta(t, 40.7128, records[0].Latitude, 1e-9)
}

func TestWriteCells_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.json")
	require.NoError(t, WriteCells(path, sampleCells()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cells map[string]*hexgrid.Summary
	require.NoError(t, json.Unmarshal(data, &cells))
	require.Len(t, cells, 1)
	assert.Equal(t, 4, cells["892a1008003ffff"].ExistingTrees)
	assert.Equal(t, 1, cells["892a1008003ffff"].RejectionsByConstraint[constraint.HydrantClearance])
}

func TestManifest_WriteAndOrder(t *testing.T) {
	m := NewManifest()
	require.NotEmpty(t, m.RunID)

	m.Options = OptionsEcho{StationStepFt: 20, SidewalkOffsetFt: 10, HexResolution: 9}
	m.SetDatasets(map[string]DatasetStat{
		"trees":   {Name: "trees", Present: true, Parsed: 100},
		"streets": {Name: "streets", Present: true, Parsed: 50},
		"signs":   {Name: "signs", Present: false},
	})
	m.Coverage = map[string]string{constraint.TreeSpacing: "verified"}
	m.Totals = Totals{Generated: 10, Accepted: 6, Rejected: 4, Canonical: 5}

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, m.Write(path))
	assert.False(t, m.FinishedAt.IsZero())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var back Manifest
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, m.RunID, back.RunID)
	assert.Equal(t, 6, back.Totals.Accepted)
	assert.Equal(t, "verified", back.Coverage[constraint.TreeSpacing])

	// Dataset entries come out name-sorted.
	require.Len(t, back.Datasets, 3)
	assert.Equal(t, "signs", back.Datasets[0].Name)
	assert.Equal(t, "streets", back.Datasets[1].Name)
	assert.Equal(t, "trees", back.Datasets[2].Name)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func savedManifest() *Manifest {
	m := NewManifest()
	m.Totals = Totals{Generated: 3, Accepted: 2, Rejected: 1, Canonical: 1}
	return m
}

func TestStore_SaveAndInspect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m := savedManifest()
	require.NoError(t, st.SaveRun(ctx, m, sampleCandidates(), sampleCells()))

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, m.RunID, latest.ID)
	assert.Equal(t, 3, latest.Manifest.Totals.Generated)

	states, err := st.StateCounts(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"aggregated": 1, "superseded": 1, "rejected": 1}, states)

	failures, err := st.FailureCounts(ctx, m.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, constraint.HydrantClearance, failures[0].Name)
	assert.Equal(t, 1, failures[0].Count)

	cells, err := st.TopCells(ctx, m.RunID, 10)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "892a1008003ffff", cells[0].Cell)
	assert.Equal(t, 1, cells[0].Accepted)
	assert.Equal(t, 4, cells[0].Trees)
}

func TestStore_Empty(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := savedManifest()
	require.NoError(t, st.SaveRun(ctx, first, nil, nil))
	second := savedManifest()
	second.StartedAt = second.StartedAt.Add(time.Second)
	require.NoError(t, st.SaveRun(ctx, second, nil, nil))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID)
	assert.Equal(t, first.RunID, runs[1].ID)
}
