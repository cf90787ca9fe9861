package constraint

import (
	"math"
	"sort"

	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/index"
)

// Registry is the fixed, enumerable set of clearance rules for one
// configuration. Construction registers every rule the engine knows;
// there is no way to declare a rule without it being evaluated.
type Registry struct {
	rules []Rule
}

// NewRegistry builds the full eleven-rule registry from an explicit
// clearance configuration. Rules are ordered cheapest-first; the
// recorded outcome is order-independent.
func NewRegistry(c Clearances) *Registry {
	rules := []Rule{
		clearanceRule{name: TreeSpacing, kind: dataset.KindTree, minFt: c.TreeSpacingFt, cost: 1, bandMaxFt: c.TreeOptimalMaxFt},
		clearanceRule{name: StopSignClearance, kind: dataset.KindStopSign, minFt: c.StopSignFt, cost: 2},
		clearanceRule{name: GenericSignClearance, kind: dataset.KindGenericSign, minFt: c.GenericSignFt, cost: 3},
		clearanceRule{name: HydrantClearance, kind: dataset.KindHydrant, minFt: c.HydrantFt, cost: 4},
		clearanceRule{name: BusStopClearance, kind: dataset.KindBusStop, minFt: c.BusStopFt, cost: 5},
		clearanceRule{name: IntersectionClear, kind: dataset.KindIntersection, minFt: c.IntersectionFt, cost: 6},
		clearanceRule{name: StreetLightClearance, kind: dataset.KindStreetLight, minFt: c.StreetLightFt, cost: 7},
		clearanceRule{name: CurbCutClearance, kind: dataset.KindCurbRamp, minFt: c.CurbCutFt, cost: 8},
		sidewalkPresenceRule{tolFt: c.SidewalkToleranceFt},
		sidewalkWidthRule{minWidthFt: c.SidewalkMinWidthFt, tolFt: c.SidewalkToleranceFt},
		buildingRule{minFt: c.BuildingFt},
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Cost() < rules[j].Cost() })
	return &Registry{rules: rules}
}

// Names returns every registered constraint name in evaluation order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		names = append(names, rule.Name())
	}
	return names
}

// Evaluate runs every registered rule against the site and records
// every verdict. The result map's key set always equals Names().
func (r *Registry) Evaluate(site Site, idx *index.Set) (Evaluation, error) {
	if err := index.CheckQuery(site.Pos); err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{
		Results:  make(map[string]Result, len(r.rules)),
		MarginFt: math.Inf(1),
	}
	for _, rule := range r.rules {
		res := rule.Evaluate(site, idx)
		ev.Results[rule.Name()] = res
		switch res.Verdict {
		case VerdictFail:
			ev.Failed = append(ev.Failed, rule.Name())
		case VerdictPass:
			ev.MarginFt = passMargin(ev.MarginFt, res, rule.RequiredFt())
		}
	}
	return ev, nil
}

// Coverage classifies each constraint's verification level for the run
// manifest given dataset load stats: verified (dataset present, no
// skipped rows), partial (present with skipped rows), unverified
// (absent).
func (r *Registry) Coverage(stats map[string]dataset.Stats) map[string]string {
	datasetFor := map[string]string{
		TreeSpacing:          dataset.NameTrees,
		StopSignClearance:    dataset.NameSigns,
		GenericSignClearance: dataset.NameSigns,
		HydrantClearance:     dataset.NameHydrants,
		BusStopClearance:     dataset.NameBusStops,
		IntersectionClear:    dataset.NameStreets,
		StreetLightClearance: dataset.NameStreetLights,
		CurbCutClearance:     dataset.NameCurbRamps,
		SidewalkPresence:     dataset.NameSidewalks,
		SidewalkWidth:        dataset.NameSidewalks,
		BuildingClearance:    dataset.NameBuildings,
	}

	coverage := make(map[string]string, len(r.rules))
	for _, rule := range r.rules {
		st, ok := stats[datasetFor[rule.Name()]]
		switch {
		case !ok || !st.Present:
			coverage[rule.Name()] = "unverified"
		case st.Skipped > 0:
			coverage[rule.Name()] = "partial"
		default:
			coverage[rule.Name()] = "verified"
		}
	}
	return coverage
}

// Unverified lists the constraints that can only report UNVERIFIED for
// this run, in evaluation order.
func (r *Registry) Unverified(stats map[string]dataset.Stats) []string {
	coverage := r.Coverage(stats)
	var out []string
	for _, name := range r.Names() {
		if coverage[name] == "unverified" {
			out = append(out, name)
		}
	}
	return out
}
