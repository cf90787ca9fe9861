package plan

import (
	"context"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/urban-futures/plantable/internal/constraint"
	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/index"
)

// Options configures one pipeline run.
type Options struct {
	StepFt      float64
	OffsetFt    float64
	Clearances  constraint.Clearances
	DedupeEpsFt float64

	// Shards is the generate/evaluate parallelism; zero means one
	// shard per CPU.
	Shards int
}

// Outcome is the evaluated, deduplicated candidate set plus the shared
// structures downstream stages need.
type Outcome struct {
	Candidates []Candidate
	Registry   *constraint.Registry
	Index      *index.Set

	Generated int
	Accepted  int
	Rejected  int
	Canonical int
}

// Run executes generate → evaluate → dedupe over the snapshot.
// Segments are partitioned into shards that run concurrently against
// the shared read-only indexes; results merge deterministically, so
// the outcome is independent of shard count and scheduling. The run
// can be cancelled between shards without corrupting anything because
// nothing is published until the merge completes.
func Run(ctx context.Context, snap *dataset.Snapshot, opts Options) (*Outcome, error) {
	log := zap.L().With(zap.String("component", "plan"))

	idx := index.Build(snap)
	registry := constraint.NewRegistry(opts.Clearances)
	gen := &Generator{StepFt: opts.StepFt, OffsetFt: opts.OffsetFt, Projector: snap.Projector}

	shards := opts.Shards
	if shards <= 0 {
		shards = runtime.NumCPU()
	}
	if shards > len(snap.Segments) && len(snap.Segments) > 0 {
		shards = len(snap.Segments)
	}

	partials := make([][]Candidate, shards)
	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < shards; shard++ {
		shard := shard
		g.Go(func() error {
			var out []Candidate
			for i := shard; i < len(snap.Segments); i += shards {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "plan: shard cancelled")
				}
				for _, cand := range gen.GenerateSegment(snap.Segments[i]) {
					ev, err := registry.Evaluate(constraint.Site{Pos: cand.XY, Across: cand.Across}, idx)
					if err != nil {
						return eris.Wrapf(err, "plan: evaluate candidate %s", cand.ID)
					}
					cand.Results = ev.Results
					cand.Failed = ev.Failed
					cand.MarginFt = ev.MarginFt
					if ev.Accepted() {
						cand.State = StateAccepted
					} else {
						cand.State = StateRejected
					}
					out = append(out, cand)
				}
			}
			partials[shard] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, p := range partials {
		candidates = append(candidates, p...)
	}
	// Candidate ids are unique per snapshot; sorting by id makes the
	// merged order independent of shard scheduling.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	Dedupe(candidates, opts.DedupeEpsFt)

	out := &Outcome{
		Candidates: candidates,
		Registry:   registry,
		Index:      idx,
		Generated:  len(candidates),
	}
	for i := range candidates {
		switch candidates[i].State {
		case StateAccepted, StateSuperseded:
			out.Accepted++
			if candidates[i].Canonical {
				out.Canonical++
			}
		case StateRejected:
			out.Rejected++
		}
	}

	log.Info("pipeline run complete",
		zap.Int("segments", len(snap.Segments)),
		zap.Int("shards", shards),
		zap.Int("generated", out.Generated),
		zap.Int("accepted", out.Accepted),
		zap.Int("rejected", out.Rejected),
		zap.Int("canonical", out.Canonical),
	)
	return out, nil
}
