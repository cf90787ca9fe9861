// Package plan generates candidate planting locations along street
// centerlines, evaluates them against the constraint registry, and
// collapses near-duplicates. It is the orchestration core of the
// siting pipeline.
package plan

import (
	"fmt"

	"github.com/urban-futures/plantable/internal/constraint"
	"github.com/urban-futures/plantable/internal/geo"
)

// State is a candidate's lifecycle position. Terminal states are
// rejected, superseded, and aggregated.
type State string

const (
	StateGenerated  State = "generated"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
	StateSuperseded State = "superseded"
	StateAggregated State = "aggregated"
)

// Side identifies which side of the centerline a candidate was offset
// toward.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// Candidate is one potential planting location. Its id is stable for a
// given input snapshot: segment id, station ordinal, and side.
type Candidate struct {
	ID      string
	Segment string
	Station int
	Side    Side

	Pt     geo.Point
	XY     geo.XY
	Across geo.XY

	State   State
	Results map[string]constraint.Result
	Failed  []string

	// MarginFt is the smallest pass margin across distance rules,
	// used to choose cluster representatives during deduplication.
	MarginFt float64

	SupersededBy string
	Canonical    bool
}

func candidateID(segment string, station int, side Side) string {
	return fmt.Sprintf("%s:%03d:%s", segment, station, side)
}
