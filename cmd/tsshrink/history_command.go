package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gwlsn/tsshrink/internal/jobs"
	"github.com/gwlsn/tsshrink/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" {
				return errors.New("no history database configured (set history_path or --history)")
			}

			history, err := store.NewSQLiteStore(cfg.HistoryPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer history.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				text, err := renderRunDetail(history, runID)
				if err != nil {
					return err
				}
				fmt.Fprint(out, text)
				return nil
			}

			runs, err := history.RecentRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderRuns(runs))

			totals, err := history.Totals()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d runs, %d files converted, %d originals deleted, %s saved\n",
				totals.Runs, totals.Succeeded, totals.Deleted, humanize.IBytes(uint64(max(totals.BytesSaved, 0))))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show, 0 for all")
	cmd.Flags().StringVar(&runID, "run", "", "Show the files of one run")
	return cmd
}

func renderRuns(runs []*jobs.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID[:min(8, len(run.ID))],
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Directory,
			run.Mode,
			strconv.Itoa(run.Stats.Found),
			strconv.Itoa(run.Stats.Succeeded),
			strconv.Itoa(run.Stats.Deleted),
			humanize.IBytes(uint64(max(run.Stats.BytesSaved, 0))),
			runState(run),
		})
	}
	return renderTable(
		[]string{"Run", "Started", "Directory", "Mode", "Found", "Converted", "Deleted", "Saved", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderRunDetail(history store.Store, runID string) (string, error) {
	run, err := history.GetRun(runID)
	if err != nil {
		return "", err
	}
	files, err := history.ListFileResults(runID)
	if err != nil {
		return "", err
	}

	rows := make([][]string, 0, len(files))
	for _, f := range files {
		size := ""
		if f.OutputSize > 0 {
			size = humanize.IBytes(uint64(f.InputSize)) + " -> " + humanize.IBytes(uint64(f.OutputSize))
		}
		note := f.Error
		if f.Deleted {
			note = "original deleted"
		}
		rows = append(rows, []string{filepath.Base(f.InputPath), string(f.Status), size, note})
	}

	header := fmt.Sprintf("Run %s in %s (%s)\n", run.ID, run.Directory, runState(run))
	return header + renderTable([]string{"File", "Status", "Size", "Note"}, rows, nil) + "\n", nil
}
