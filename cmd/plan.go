package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urban-futures/plantable/internal/config"
	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/export"
	"github.com/urban-futures/plantable/internal/hexgrid"
	"github.com/urban-futures/plantable/internal/plan"
)

var (
	planDryRun bool
	planNoDB   bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run the candidate generation pipeline",
	Long: `Loads the configured datasets, generates candidate planting
locations along street centerlines, evaluates every clearance
constraint, deduplicates, and aggregates accepted candidates onto the
hex grid.

Dataset paths, thresholds, and output locations come from config.yaml
or PLANTABLE_* environment variables.

Examples:
  # Full run with config.yaml in the working directory
  plantable plan

  # Parse and validate inputs only
  plantable plan --dry-run

  # Skip the results database, write JSON/YAML artifacts only
  plantable plan --no-db`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		manifest := export.NewManifest()
		log := zap.L().With(zap.String("run_id", manifest.RunID))

		snap, err := dataset.Load(sourcesFromConfig(cfg))
		if err != nil {
			return eris.Wrap(err, "plan: load datasets")
		}
		if planDryRun {
			return printDatasetStats(snap)
		}

		outcome, err := plan.Run(ctx, snap, plan.Options{
			StepFt:      cfg.Plan.StationStepFt,
			OffsetFt:    cfg.Plan.SidewalkOffsetFt,
			Clearances:  cfg.ClearanceValues(),
			DedupeEpsFt: cfg.Plan.DedupeEpsilonFt,
			Shards:      cfg.Plan.Shards,
		})
		if err != nil {
			return err
		}

		unverified := outcome.Registry.Unverified(snap.Stats)
		cells := hexgrid.Aggregate(outcome.Candidates, snap.Points[dataset.KindTree], cfg.Plan.HexResolution, unverified)

		var superseded int
		for i := range outcome.Candidates {
			if outcome.Candidates[i].State == plan.StateSuperseded {
				superseded++
			}
		}
		manifest.Options = optionsEcho(cfg)
		manifest.SetDatasets(datasetStats(snap))
		manifest.Coverage = outcome.Registry.Coverage(snap.Stats)
		manifest.Totals = export.Totals{
			Segments:   len(snap.Segments),
			Generated:  outcome.Generated,
			Accepted:   outcome.Accepted,
			Rejected:   outcome.Rejected,
			Canonical:  outcome.Canonical,
			Superseded: superseded,
			Cells:      len(cells),
		}

		if err := export.WriteCandidates(cfg.Output.CandidatesPath, outcome.Candidates); err != nil {
			return err
		}
		if err := export.WriteCells(cfg.Output.CellsPath, cells); err != nil {
			return err
		}
		if err := manifest.Write(cfg.Output.ManifestPath); err != nil {
			return err
		}

		if !planNoDB && cfg.Output.DatabasePath != "" {
			store, err := export.NewStore(cfg.Output.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			if err := store.SaveRun(ctx, manifest, outcome.Candidates, cells); err != nil {
				return err
			}
		}

		log.Info("run artifacts written",
			zap.String("candidates", cfg.Output.CandidatesPath),
			zap.String("cells", cfg.Output.CellsPath),
			zap.String("manifest", cfg.Output.ManifestPath),
		)

		fmt.Printf("run %s\n", manifest.RunID)
		fmt.Printf("  segments:   %d\n", len(snap.Segments))
		fmt.Printf("  generated:  %d\n", outcome.Generated)
		fmt.Printf("  accepted:   %d (%d canonical, %d superseded)\n", outcome.Accepted, outcome.Canonical, superseded)
		fmt.Printf("  rejected:   %d\n", outcome.Rejected)
		fmt.Printf("  hex cells:  %d\n", len(cells))
		if len(unverified) > 0 {
			fmt.Printf("  unverified: %v\n", unverified)
		}
		return nil
	},
}

func init() {
	planCmd.Flags().BoolVar(&planDryRun, "dry-run", false, "load and validate datasets without running the pipeline")
	planCmd.Flags().BoolVar(&planNoDB, "no-db", false, "skip writing the results database")
	rootCmd.AddCommand(planCmd)
}

func sourcesFromConfig(c *config.Config) dataset.Sources {
	return dataset.Sources{
		Trees:        c.Data.Trees,
		Streets:      c.Data.Streets,
		Signs:        c.Data.Signs,
		Hydrants:     c.Data.Hydrants,
		BusStops:     c.Data.BusStops,
		StreetLights: c.Data.StreetLights,
		CurbRamps:    c.Data.CurbRamps,
		Sidewalks:    c.Data.Sidewalks,
		Buildings:    c.Data.Buildings,
	}
}

func optionsEcho(c *config.Config) export.OptionsEcho {
	return export.OptionsEcho{
		StationStepFt:    c.Plan.StationStepFt,
		SidewalkOffsetFt: c.Plan.SidewalkOffsetFt,
		DedupeEpsilonFt:  c.Plan.DedupeEpsilonFt,
		HexResolution:    c.Plan.HexResolution,
		Shards:           c.Plan.Shards,
		ClearancesFt: map[string]float64{
			"tree_spacing":       c.Clearances.TreeSpacingFt,
			"tree_optimal_max":   c.Clearances.TreeOptimalMaxFt,
			"stop_sign":          c.Clearances.StopSignFt,
			"generic_sign":       c.Clearances.GenericSignFt,
			"hydrant":            c.Clearances.HydrantFt,
			"bus_stop":           c.Clearances.BusStopFt,
			"intersection":       c.Clearances.IntersectionFt,
			"street_light":       c.Clearances.StreetLightFt,
			"curb_cut":           c.Clearances.CurbCutFt,
			"sidewalk_min_width": c.Clearances.SidewalkMinWidthFt,
			"sidewalk_tolerance": c.Clearances.SidewalkToleranceFt,
			"building":           c.Clearances.BuildingFt,
		},
	}
}

func datasetStats(snap *dataset.Snapshot) map[string]export.DatasetStat {
	out := make(map[string]export.DatasetStat, len(snap.Stats))
	for name, st := range snap.Stats {
		out[name] = export.DatasetStat{
			Name:     st.Name,
			Present:  st.Present,
			Parsed:   st.Parsed,
			Skipped:  st.Skipped,
			Filtered: st.Filtered,
		}
	}
	return out
}

func printDatasetStats(snap *dataset.Snapshot) error {
	fmt.Printf("%-14s %-8s %8s %8s %8s\n", "DATASET", "PRESENT", "PARSED", "SKIPPED", "FILTERED")
	for _, st := range sortedStats(snap) {
		fmt.Printf("%-14s %-8t %8d %8d %8d\n", st.Name, st.Present, st.Parsed, st.Skipped, st.Filtered)
	}
	return nil
}

func sortedStats(snap *dataset.Snapshot) []dataset.Stats {
	names := []string{
		dataset.NameStreets, dataset.NameTrees, dataset.NameSigns,
		dataset.NameHydrants, dataset.NameBusStops, dataset.NameStreetLights,
		dataset.NameCurbRamps, dataset.NameSidewalks, dataset.NameBuildings,
	}
	out := make([]dataset.Stats, 0, len(names))
	for _, name := range names {
		if st, ok := snap.Stats[name]; ok {
			out = append(out, st)
		}
	}
	return out
}
