// Package constraint holds the clearance rule registry and evaluator.
// Every rule the registry knows is evaluated and recorded for every
// candidate; a rule can never be declared but silently skipped. Rules
// whose source dataset was absent report UNVERIFIED, which is a weaker
// statement than PASS and is preserved all the way to the output.
package constraint

import (
	"math"

	"github.com/urban-futures/plantable/internal/geo"
	"github.com/urban-futures/plantable/internal/index"
)

// Verdict is the outcome of one rule for one candidate.
type Verdict string

const (
	VerdictPass       Verdict = "PASS"
	VerdictFail       Verdict = "FAIL"
	VerdictUnverified Verdict = "UNVERIFIED"
)

// Constraint names, as they appear in results, manifests, and cell
// summaries.
const (
	TreeSpacing          = "tree_spacing"
	StopSignClearance    = "stop_sign_clearance"
	GenericSignClearance = "generic_sign_clearance"
	HydrantClearance     = "hydrant_clearance"
	BusStopClearance     = "bus_stop_clearance"
	IntersectionClear    = "intersection_clearance"
	StreetLightClearance = "street_light_clearance"
	CurbCutClearance     = "curb_cut_clearance"
	SidewalkPresence     = "sidewalk_presence"
	SidewalkWidth        = "sidewalk_width"
	BuildingClearance    = "building_clearance"
)

// Spacing bands recorded on tree_spacing results (reporting only; the
// minimum distance is the sole acceptance gate).
const (
	SpacingOptimal = "optimal"
	SpacingGap     = "gap"
)

// Result is one rule's verdict for one candidate.
type Result struct {
	Verdict          Verdict `json:"verdict"`
	DistanceFt       float64 `json:"distance_ft,omitempty"`
	NearestFeatureID string  `json:"nearest_feature_id,omitempty"`
	Approximate      bool    `json:"approximate,omitempty"`
	Detail           string  `json:"detail,omitempty"`
}

// Clearances is the full threshold configuration, in feet. It is an
// explicit value handed to NewRegistry so differently-configured
// evaluators can coexist in one process.
type Clearances struct {
	TreeSpacingFt       float64
	TreeOptimalMaxFt    float64
	StopSignFt          float64
	GenericSignFt       float64
	HydrantFt           float64
	BusStopFt           float64
	IntersectionFt      float64
	StreetLightFt       float64
	CurbCutFt           float64
	SidewalkMinWidthFt  float64
	SidewalkToleranceFt float64
	BuildingFt          float64
}

// DefaultClearances are the municipal street-tree planting rules the
// engine was built against.
func DefaultClearances() Clearances {
	return Clearances{
		TreeSpacingFt:       20,
		TreeOptimalMaxFt:    30,
		StopSignFt:          30,
		GenericSignFt:       6,
		HydrantFt:           5,
		BusStopFt:           10,
		IntersectionFt:      40,
		StreetLightFt:       25,
		CurbCutFt:           7,
		SidewalkMinWidthFt:  3.25,
		SidewalkToleranceFt: 1,
		BuildingFt:          5,
	}
}

// Site is the geometric context a rule evaluates: the candidate's
// projected position and the unit direction across the sidewalk
// (perpendicular to the street), used for cross-section measurements.
type Site struct {
	Pos    geo.XY
	Across geo.XY
}

// Rule evaluates one named clearance against the shared indexes.
type Rule interface {
	Name() string

	// RequiredFt is the configured minimum distance, or zero for rules
	// that are not distance gates (sidewalk presence/width).
	RequiredFt() float64

	// Cost ranks evaluation expense; the registry runs cheap rules
	// first. The logical outcome is independent of this order.
	Cost() int

	Evaluate(site Site, idx *index.Set) Result
}

// Evaluation is the recorded outcome of running every registered rule
// against one candidate.
type Evaluation struct {
	Results map[string]Result
	Failed  []string

	// MarginFt is the smallest (distance − required) across PASS
	// distance rules that found a feature; +Inf when unconstrained.
	// Used to pick canonical candidates during deduplication.
	MarginFt float64
}

// Accepted reports whether every rule passed or was unverified.
func (e Evaluation) Accepted() bool { return len(e.Failed) == 0 }

// passMargin folds one PASS result into the running margin.
func passMargin(current float64, r Result, requiredFt float64) float64 {
	if requiredFt <= 0 || r.NearestFeatureID == "" {
		return current
	}
	return math.Min(current, r.DistanceFt-requiredFt)
}
