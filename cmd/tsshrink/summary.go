package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/tsshrink/internal/jobs"
)

// renderSummary formats the end-of-run report
func renderSummary(run *jobs.Run, dryRun bool) string {
	st := run.Stats
	var b strings.Builder

	b.WriteString("\n")
	switch {
	case st.Cancelled:
		b.WriteString("Run interrupted\n")
	case dryRun:
		b.WriteString("Dry run complete, nothing was converted\n")
	default:
		b.WriteString("Run complete\n")
	}

	if st.Found == 0 {
		b.WriteString("No candidate files found\n")
		return b.String()
	}

	processedLabel := "Processed"
	if dryRun {
		processedLabel = "Would convert"
	}

	rows := [][]string{
		{"Found", strconv.Itoa(st.Found)},
		{"Skipped (already converted)", strconv.Itoa(st.Skipped)},
		{processedLabel, strconv.Itoa(st.Processed)},
		{"Succeeded", strconv.Itoa(st.Succeeded)},
		{"Failed", strconv.Itoa(st.Failed)},
		{"Originals deleted", strconv.Itoa(st.Deleted)},
		{"Space saved", humanize.IBytes(uint64(max(st.BytesSaved, 0)))},
	}
	if !run.CompletedAt.IsZero() {
		rows = append(rows, []string{"Elapsed", run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()})
	}
	b.WriteString(renderTable([]string{"Summary", ""}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	if len(st.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		errRows := make([][]string, 0, len(st.Errors))
		for _, e := range st.Errors {
			errRows = append(errRows, []string{e.File, e.Reason})
		}
		b.WriteString(renderTable([]string{"File", "Reason"}, errRows, nil))
		b.WriteString("\n")
	}

	return b.String()
}

// runState describes how a recorded run ended
func runState(run *jobs.Run) string {
	switch {
	case run.CompletedAt.IsZero():
		return "incomplete"
	case run.Stats.Cancelled:
		return "interrupted"
	case run.DryRun:
		return "dry run"
	case run.Stats.Failed > 0:
		return fmt.Sprintf("%d failed", run.Stats.Failed)
	default:
		return "ok"
	}
}
