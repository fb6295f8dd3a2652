package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/gdorker/internal/config"
	"github.com/nao1215/gdorker/internal/database"
	"github.com/nao1215/gdorker/internal/model"
)

// Template change kinds.
const (
	changeNew     = "new"
	changeDropped = "dropped"
	changeChanged = "changed"
)

// compareTimeFormat is the timestamp layout of the history listing.
const compareTimeFormat = "2006-01-02 15:04:05"

// NewCompareCmd creates the compare command.
// This command compares runs stored in the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the URLs found by two runs",
		Long: `Compare shows, per dork template, the URLs that appeared and disappeared
between two runs recorded in the history database.

By default the two latest completed runs are compared. Templates that only
one of the runs dispatched are listed as new or dropped.

Examples:
  # Compare the latest two completed runs
  gdorker compare

  # List the recorded runs
  gdorker compare --list

  # Compare the latest run with a specific run by ID
  gdorker compare --with-run-id 5

  # Output comparison in JSON format
  gdorker compare --json`,
		Args: cobra.NoArgs,
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List the runs recorded in the history database")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs listed by --list (0 lists all)")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with this run (use --list to see available IDs)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// compareOptions are the parsed flags of the compare command.
type compareOptions struct {
	list      bool
	limit     int
	withRunID int64
	json      bool
	markdown  bool
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, _ []string) error {
	var (
		opts compareOptions
		err  error
	)
	if opts.list, err = cmd.Flags().GetBool("list"); err != nil {
		return err
	}
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.withRunID, err = cmd.Flags().GetInt64("with-run-id"); err != nil {
		return err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-only use

	return compareRuns(commandContext(cmd), cmd.OutOrStdout(), db, opts)
}

// compareRuns lists the history or compares two runs of db.
func compareRuns(ctx context.Context, out io.Writer, db *database.RunDB, opts compareOptions) error {
	if opts.list {
		return listRuns(ctx, out, db, opts.limit)
	}

	latest, err := db.LatestRunIDs(ctx, 2)
	if err != nil {
		return err
	}

	var baseID, targetID int64
	switch {
	case opts.withRunID > 0:
		if len(latest) == 0 {
			return errors.New("no completed runs found in the history database")
		}
		baseID, targetID = opts.withRunID, latest[0]
		if baseID == targetID {
			if len(latest) < 2 {
				return fmt.Errorf("run %d is the only completed run; nothing to compare with", baseID)
			}
			// Comparing the latest run with itself: use the one before it as target
			baseID, targetID = latest[1], latest[0]
		}
	case len(latest) < 2:
		return fmt.Errorf("at least 2 completed runs are required for comparison (found %d)", len(latest))
	default:
		baseID, targetID = latest[1], latest[0]
	}

	base, err := db.GetRunReport(ctx, baseID)
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", baseID, err)
	}
	target, err := db.GetRunReport(ctx, targetID)
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", targetID, err)
	}

	comparison := compareReports(base, target)
	comparison.Base.ID = baseID
	comparison.Target.ID = targetID

	switch {
	case opts.json:
		return outputComparisonJSON(out, comparison)
	case opts.markdown:
		return outputComparisonMarkdown(out, comparison)
	default:
		return outputComparisonText(out, comparison)
	}
}

// listRuns prints the recorded runs, newest first.
func listRuns(ctx context.Context, out io.Writer, db *database.RunDB, limit int) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the history database.")
		fmt.Fprintln(out, "\nUse 'gdorker run -g <file>' to dispatch a dork file.")
		return nil
	}

	fmt.Fprintf(out, "Recorded runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-11s  %-8s  %-8s  %s\n", "ID", "Started", "Status", "Dorks", "URLs", "Domain")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))

	for _, run := range runs {
		status := "complete"
		if !run.IsComplete() {
			status = "incomplete"
		}
		domain := run.Domain
		if domain == "" {
			domain = "-"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-11s  %-8d  %-8d  %s\n",
			run.ID,
			run.StartedAt.Local().Format(compareTimeFormat),
			status,
			run.TemplateCount,
			run.TotalURLs,
			domain,
		)
	}

	fmt.Fprintln(out, "\nUse 'gdorker compare' to compare the latest two completed runs.")
	fmt.Fprintln(out, "Use 'gdorker run -g <file> --resume <id>' to continue an incomplete run.")

	return nil
}

// ComparisonResult holds the result of comparing two runs.
type ComparisonResult struct {
	// Base is the older run.
	Base RunMetadata `json:"base_run"`

	// Target is the newer run.
	Target RunMetadata `json:"target_run"`

	// Changes lists the templates whose URLs differ, in target order
	// followed by templates only the base run dispatched.
	Changes []TemplateChange `json:"changes"`

	// UnchangedCount is the number of templates with identical URL sets.
	UnchangedCount int `json:"unchanged_count"`

	// AddedURLs and RemovedURLs are the totals over all changes.
	AddedURLs   int `json:"added_urls"`
	RemovedURLs int `json:"removed_urls"`
}

// RunMetadata describes one side of a comparison.
type RunMetadata struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Templates int       `json:"templates"`
	TotalURLs int       `json:"total_urls"`
}

// TemplateChange lists the URL differences of one template.
type TemplateChange struct {
	Template string `json:"template"`

	// Kind is "new", "dropped", or "changed".
	Kind string `json:"kind"`

	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// compareReports compares two run reports and generates a comparison result.
func compareReports(base, target *model.RunReport) *ComparisonResult {
	result := &ComparisonResult{
		Base:    RunMetadata{StartedAt: base.StartedAt, Templates: base.Len(), TotalURLs: base.TotalURLs},
		Target:  RunMetadata{StartedAt: target.StartedAt, Templates: target.Len(), TotalURLs: target.TotalURLs},
		Changes: []TemplateChange{},
	}

	for _, template := range target.Templates() {
		targetEntry, _ := target.Entry(template)
		baseEntry, inBase := base.Entry(template)

		change := TemplateChange{
			Template: template,
			Kind:     changeChanged,
			Added:    difference(targetEntry.URLs, baseEntry.URLs),
			Removed:  difference(baseEntry.URLs, targetEntry.URLs),
		}
		if !inBase {
			change.Kind = changeNew
		}
		if inBase && len(change.Added) == 0 && len(change.Removed) == 0 {
			result.UnchangedCount++
			continue
		}
		result.add(change)
	}

	for _, template := range base.Templates() {
		if _, ok := target.Entry(template); ok {
			continue
		}
		baseEntry, _ := base.Entry(template)
		result.add(TemplateChange{
			Template: template,
			Kind:     changeDropped,
			Removed:  difference(baseEntry.URLs, nil),
		})
	}

	return result
}

func (r *ComparisonResult) add(change TemplateChange) {
	r.Changes = append(r.Changes, change)
	r.AddedURLs += len(change.Added)
	r.RemovedURLs += len(change.Removed)
}

// difference returns the URLs of a that are not in b, in the order of a.
func difference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, u := range b {
		exclude[u] = struct{}{}
	}
	var out []string
	for _, u := range a {
		if _, ok := exclude[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// formatDelta formats a count change with an explicit sign.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1(fmt.Sprintf("Run Comparison: #%d → #%d", result.Base.ID, result.Target.ID))
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Base", "Target", "Change"},
		Rows: [][]string{
			{"Started",
				result.Base.StartedAt.Local().Format(compareTimeFormat),
				result.Target.StartedAt.Local().Format(compareTimeFormat),
				"-"},
			{"Templates",
				strconv.Itoa(result.Base.Templates),
				strconv.Itoa(result.Target.Templates),
				formatDelta(result.Target.Templates - result.Base.Templates)},
			{"Total URLs",
				strconv.Itoa(result.Base.TotalURLs),
				strconv.Itoa(result.Target.TotalURLs),
				formatDelta(result.Target.TotalURLs - result.Base.TotalURLs)},
		},
	})
	md.PlainText("")

	if len(result.Changes) == 0 {
		md.Tip("No differences between the two runs.")
		return md.Build()
	}

	md.PlainTextf("**%d** URLs appeared and **%d** disappeared in %d templates (%d unchanged).",
		result.AddedURLs, result.RemovedURLs, len(result.Changes), result.UnchangedCount)
	md.PlainText("")

	md.H2("Changes")
	for _, change := range result.Changes {
		md.PlainText("")
		md.H3(fmt.Sprintf("`%s` (%s)", change.Template, change.Kind))
		md.PlainText("")
		items := make([]string, 0, len(change.Added)+len(change.Removed))
		for _, u := range change.Added {
			items = append(items, "➕ "+u)
		}
		for _, u := range change.Removed {
			items = append(items, "➖ "+u)
		}
		if len(items) == 0 {
			items = append(items, "no URLs")
		}
		md.BulletList(items...)
	}

	return md.Build()
}

// outputComparisonText outputs the comparison result in human-readable format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Run comparison: #%d -> #%d\n", result.Base.ID, result.Target.ID)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Base:   #%-5d %s  %d templates, %d URLs\n",
		result.Base.ID, result.Base.StartedAt.Local().Format(compareTimeFormat),
		result.Base.Templates, result.Base.TotalURLs)
	fmt.Fprintf(out, "Target: #%-5d %s  %d templates, %d URLs (%s)\n",
		result.Target.ID, result.Target.StartedAt.Local().Format(compareTimeFormat),
		result.Target.Templates, result.Target.TotalURLs,
		formatDelta(result.Target.TotalURLs-result.Base.TotalURLs))
	fmt.Fprintln(out)

	if len(result.Changes) == 0 {
		fmt.Fprintln(out, "No differences between the two runs.")
		return nil
	}

	for _, change := range result.Changes {
		fmt.Fprintf(out, "[%s] %s\n", change.Kind, change.Template)
		for _, u := range change.Added {
			fmt.Fprintf(out, "  + %s\n", u)
		}
		for _, u := range change.Removed {
			fmt.Fprintf(out, "  - %s\n", u)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "Changed templates: %d   Unchanged: %d   URLs: +%d / -%d\n",
		len(result.Changes), result.UnchangedCount, result.AddedURLs, result.RemovedURLs)

	return nil
}
