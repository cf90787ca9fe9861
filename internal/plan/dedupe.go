package plan

import (
	"sort"

	"go.uber.org/zap"

	"github.com/urban-futures/plantable/internal/geo"
	"github.com/urban-futures/plantable/internal/index"
)

// Dedupe collapses accepted candidates that fall within epsilon of one
// another: offsets from adjacent segments and mirrored sides of narrow
// streets land on the same physical planting spot. Each cluster keeps
// one canonical representative — the candidate with the largest pass
// margin, ties broken by lowest id — and records the rest as
// superseded rather than discarding them.
//
// Clustering is connected components over the within-epsilon graph, so
// the outcome is independent of input or shard order.
func Dedupe(candidates []Candidate, epsilonFt float64) {
	accepted := make([]int, 0, len(candidates))
	for i := range candidates {
		if candidates[i].State == StateAccepted {
			accepted = append(accepted, i)
		}
	}
	if len(accepted) == 0 {
		return
	}

	entries := make([]index.Entry, 0, len(accepted))
	byID := make(map[string]int, len(accepted))
	for _, i := range accepted {
		entries = append(entries, index.Entry{ID: candidates[i].ID, Pos: candidates[i].XY})
		byID[candidates[i].ID] = i
	}
	ix := index.NewPointIndex(entries)
	epsilonM := geo.FeetToMeters(epsilonFt)

	// Union-find over accepted candidate slots.
	parent := make(map[int]int, len(accepted))
	for _, i := range accepted {
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

	for _, i := range accepted {
		for _, nb := range ix.Within(candidates[i].XY, epsilonM) {
			if j := byID[nb.ID]; j != i {
				union(i, j)
			}
		}
	}

	clusters := make(map[int][]int)
	for _, i := range accepted {
		r := find(i)
		clusters[r] = append(clusters[r], i)
	}

	var superseded int
	for _, members := range clusters {
		sort.Slice(members, func(a, b int) bool {
			ca, cb := &candidates[members[a]], &candidates[members[b]]
			if ca.MarginFt != cb.MarginFt {
				return ca.MarginFt > cb.MarginFt
			}
			return ca.ID < cb.ID
		})
		canonical := members[0]
		candidates[canonical].Canonical = true
		for _, m := range members[1:] {
			candidates[m].State = StateSuperseded
			candidates[m].SupersededBy = candidates[canonical].ID
			superseded++
		}
	}

	zap.L().Debug("plan: deduplicated candidates",
		zap.Int("accepted", len(accepted)),
		zap.Int("clusters", len(clusters)),
		zap.Int("superseded", superseded),
	)
}
