package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urban-futures/plantable/internal/export"
)

var (
	inspectRunID string
	inspectCells int
	inspectList  bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect stored run results",
	Long: `Reads the results database and prints run summaries: candidate
counts by state, constraint failure counts, and the densest hex cells.

Examples:
  # Latest run
  plantable inspect

  # A specific run
  plantable inspect --run 5b3f...

  # Recent runs only
  plantable inspect --list`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := export.NewStore(cfg.Output.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		if inspectList {
			runs, err := store.ListRuns(ctx, 20)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs stored")
				return nil
			}
			fmt.Printf("%-36s %-20s %10s %10s\n", "RUN", "STARTED", "GENERATED", "ACCEPTED")
			for _, r := range runs {
				fmt.Printf("%-36s %-20s %10d %10d\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Manifest.Totals.Generated, r.Manifest.Totals.Accepted)
			}
			return nil
		}

		runID := inspectRunID
		if runID == "" {
			latest, err := store.LatestRun(ctx)
			if err != nil {
				return err
			}
			if latest == nil {
				return eris.New("inspect: no runs stored")
			}
			runID = latest.ID
		}

		states, err := store.StateCounts(ctx, runID)
		if err != nil {
			return err
		}
		failures, err := store.FailureCounts(ctx, runID)
		if err != nil {
			return err
		}
		cells, err := store.TopCells(ctx, runID, inspectCells)
		if err != nil {
			return err
		}

		fmt.Printf("run %s\n\n", runID)
		fmt.Println("candidates by state:")
		for _, state := range []string{"aggregated", "accepted", "superseded", "rejected"} {
			if n, ok := states[state]; ok {
				fmt.Printf("  %-12s %d\n", state, n)
			}
		}
		if len(failures) > 0 {
			fmt.Println("\nfailures by constraint:")
			for _, f := range failures {
				fmt.Printf("  %-24s %d\n", f.Name, f.Count)
			}
		}
		if len(cells) > 0 {
			fmt.Println("\ndensest cells:")
			for _, c := range cells {
				fmt.Printf("  %-16s accepted=%-6d trees=%d\n", c.Cell, c.Accepted, c.Trees)
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectRunID, "run", "", "run id to inspect (default: latest)")
	inspectCmd.Flags().IntVar(&inspectCells, "cells", 10, "number of top cells to show")
	inspectCmd.Flags().BoolVar(&inspectList, "list", false, "list recent runs instead of one run's details")
	rootCmd.AddCommand(inspectCmd)
}
