// Package hexgrid bins canonical candidates and existing trees into an
// H3 hexagonal grid and computes the per-cell summaries the
// prioritization layer consumes.
package hexgrid

import (
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/geo"
	"github.com/urban-futures/plantable/internal/plan"
)

// Summary is one hex cell's aggregate. Counts are a pure function of
// the candidate and tree sets: re-running aggregation over the same
// inputs reproduces them exactly.
type Summary struct {
	Cell                   string         `json:"cell"`
	ExistingTrees          int            `json:"existing_tree_count"`
	AcceptedCandidates     int            `json:"accepted_candidate_count"`
	RejectionsByConstraint map[string]int `json:"rejection_counts_by_constraint,omitempty"`
	UnverifiedConstraints  []string       `json:"unverified_constraints,omitempty"`
}

// Partial is a mergeable intermediate aggregate. Merge is commutative
// and associative, so partials from concurrent shards can fold in any
// order.
type Partial struct {
	cells map[string]*Summary
	res   int
}

// NewPartial creates an empty aggregate at the given H3 resolution.
func NewPartial(resolution int) *Partial {
	return &Partial{cells: make(map[string]*Summary), res: resolution}
}

func (p *Partial) cell(pt geo.Point) *Summary {
	id := h3.LatLngToCell(h3.NewLatLng(pt.Lat, pt.Lng), p.res).String()
	s, ok := p.cells[id]
	if !ok {
		s = &Summary{Cell: id}
		p.cells[id] = s
	}
	return s
}

// AddTree counts an existing tree in its containing cell.
func (p *Partial) AddTree(tree dataset.PointFeature) {
	p.cell(tree.Pt).ExistingTrees++
}

// AddCandidate folds one evaluated candidate into its containing cell:
// canonical accepted candidates count as planting opportunities,
// rejected ones contribute per-constraint rejection counts.
func (p *Partial) AddCandidate(c *plan.Candidate) {
	switch c.State {
	case plan.StateAccepted, plan.StateAggregated:
		if c.Canonical {
			p.cell(c.Pt).AcceptedCandidates++
		}
	case plan.StateRejected:
		s := p.cell(c.Pt)
		if s.RejectionsByConstraint == nil {
			s.RejectionsByConstraint = make(map[string]int)
		}
		for _, name := range c.Failed {
			s.RejectionsByConstraint[name]++
		}
	}
}

// Merge folds other into p.
func (p *Partial) Merge(other *Partial) {
	for id, src := range other.cells {
		dst, ok := p.cells[id]
		if !ok {
			dst = &Summary{Cell: id}
			p.cells[id] = dst
		}
		dst.ExistingTrees += src.ExistingTrees
		dst.AcceptedCandidates += src.AcceptedCandidates
		for name, n := range src.RejectionsByConstraint {
			if dst.RejectionsByConstraint == nil {
				dst.RejectionsByConstraint = make(map[string]int)
			}
			dst.RejectionsByConstraint[name] += n
		}
	}
}

// Summaries finalizes the aggregate: every cell is stamped with the
// run's unverified constraint list and returned keyed by cell id.
func (p *Partial) Summaries(unverified []string) map[string]*Summary {
	for _, s := range p.cells {
		if len(unverified) > 0 {
			s.UnverifiedConstraints = append([]string(nil), unverified...)
		}
	}
	return p.cells
}

// Aggregate bins every tree and candidate at the given resolution and
// marks canonical accepted candidates aggregated (their terminal
// state).
func Aggregate(candidates []plan.Candidate, trees []dataset.PointFeature, resolution int, unverified []string) map[string]*Summary {
	p := NewPartial(resolution)
	for _, t := range trees {
		p.AddTree(t)
	}
	for i := range candidates {
		p.AddCandidate(&candidates[i])
		if candidates[i].State == plan.StateAccepted && candidates[i].Canonical {
			candidates[i].State = plan.StateAggregated
		}
	}
	return p.Summaries(unverified)
}

// SortedCells returns cell ids in lexicographic order for
// deterministic export.
func SortedCells(cells map[string]*Summary) []string {
	ids := make([]string, 0, len(cells))
	for id := range cells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
