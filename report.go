package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newPipeline(a *app) (*guardian.Pipeline, error) {
	return guardian.NewPipeline(a.root, a.opts)
}

func printScanSummary(cmd *cobra.Command, res *guardian.PipelineResult) {
	snap := res.Snapshot
	cmd.Printf("Scanned %d files", len(snap.Files))
	if len(snap.Skipped) > 0 {
		cmd.Printf(" (%d skipped)", len(snap.Skipped))
	}
	cmd.Printf(", health %d/100, %d findings\n", res.Quality.HealthScore, res.Quality.Summary.TotalIssues)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderFindingsTable lays findings out one per row.
func renderFindingsTable(w io.Writer, findings []guardian.Finding) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Location", "Severity", "Confidence", "Detail"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})

	for _, f := range findings {
		location := f.Location.Path
		if f.Location.Line > 0 {
			location = fmt.Sprintf("%s:%d", location, f.Location.Line)
		}
		detail := f.Rationale
		if f.OtherPath != "" {
			detail = fmt.Sprintf("%s (%s)", detail, f.OtherPath)
		}
		table.Append([]string{
			string(f.Kind),
			location,
			string(f.Severity),
			fmt.Sprintf("%.2f", f.Confidence),
			detail,
		})
	}
	table.Render()
}

func renderQualitySummary(w io.Writer, report *guardian.QualityReport) {
	s := report.Summary
	fmt.Fprintf(w, "Health score: %d/100\n", report.HealthScore)
	fmt.Fprintf(w, "Issues: %d (critical %d, warnings %d), dead code files %d, duplicate pairs %d\n",
		s.TotalIssues, s.Critical, s.Warnings, s.DeadCodeFiles, s.DuplicatePairs)
	fmt.Fprintf(w, "Files: %d active, %d recent, %d old\n", s.ActiveFiles, s.RecentFiles, s.OldFiles)
}

func statusColor(code guardian.StatusCode) func(a ...interface{}) string {
	switch code {
	case guardian.StatusOnTrack:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case guardian.StatusPlanViolations:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case guardian.StatusNoPlanForChanges:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func renderStatus(w io.Writer, st guardian.GuardianStatus) {
	paint := statusColor(st.Code)
	fmt.Fprintf(w, "Status: %s\n", paint(string(st.Code)))
	if st.LastGoal != "" {
		fmt.Fprintf(w, "Plan:   %s (%s)\n", st.LastGoal, st.PlanID)
		if len(st.TargetScope) > 0 {
			fmt.Fprintf(w, "Scope:  %s %s\n", st.ScopeKind, strings.Join(st.TargetScope, ", "))
		}
	}
	fmt.Fprintf(w, "Changed: %d (planned %d, extra %d)\n", len(st.ChangedFiles), st.PlannedCount, st.ExtraCount)
	if len(st.ExtraFiles) > 0 {
		red := color.New(color.FgRed).SprintFunc()
		extra := append([]string(nil), st.ExtraFiles...)
		sort.Strings(extra)
		for _, f := range extra {
			fmt.Fprintf(w, "  %s %s\n", red("+"), f)
		}
	}
}
