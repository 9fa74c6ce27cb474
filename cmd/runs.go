package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landuse-cli/internal/monitoring"
	"github.com/sells-group/landuse-cli/internal/store"
)

var (
	runsStatus   string
	runsLocation string
	runsLimit    int
	runsSince    time.Duration
	runsJSON     bool
	statsSince   time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run log",
	Long:  "List, show and summarize region runs recorded by `landuse-cli run`.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			filter := store.RunFilter{
				Status:      store.RunStatus(runsStatus),
				LocationKey: runsLocation,
				Limit:       runsLimit,
			}
			if runsSince > 0 {
				filter.CreatedAfter = time.Now().Add(-runsSince)
			}
			runs, err := st.ListRuns(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "runs list")
			}
			if runsJSON {
				return writeIndented(os.Stdout, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(os.Stderr, "No runs found.")
				return nil
			}
			formatRunsList(os.Stdout, runs)
			return nil
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one run with its result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "runs show %s", args[0])
			}
			return writeIndented(os.Stdout, run)
		})
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			snap, err := monitoring.NewCollector(st).Collect(ctx, max(int(statsSince.Hours()), 1))
			if err != nil {
				return eris.Wrap(err, "runs stats")
			}
			formatRunStats(os.Stdout, snap)
			return nil
		})
	},
}

func init() {
	f := runsListCmd.Flags()
	f.StringVar(&runsStatus, "status", "", "only runs with this status (running, complete, failed)")
	f.StringVar(&runsLocation, "location", "", "only runs for this location key")
	f.IntVar(&runsLimit, "limit", 50, "maximum number of runs")
	f.DurationVar(&runsSince, "since", 0, "only runs created within this window (e.g. 72h)")
	f.BoolVar(&runsJSON, "json", false, "print JSON instead of a table")

	runsStatsCmd.Flags().DurationVar(&statsSince, "since", 24*time.Hour, "window to summarize (e.g. 24h, 168h)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// withStore opens the configured run store for the duration of fn.
func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(ctx, st)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const maxLocationWidth = 30

// formatRunsList prints runs as an aligned table.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"ID", "LOCATION", "STATUS", "LANDUSES", "LIVE_NODES", "CREATED", "DURATION"}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, r := range runs {
		landuses, nodes := "-", "-"
		if r.Result != nil {
			landuses = strconv.Itoa(r.Result.Landuses)
			nodes = strconv.Itoa(r.Result.LiveNodes)
		}
		row := []string{
			truncateID(r.ID),
			ellipsis(r.LocationKey, maxLocationWidth),
			string(r.Status),
			landuses,
			nodes,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// formatRunStats prints a snapshot as label/value lines, skipped
// categories last in name order.
func formatRunStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	line := func(label, format string, args ...any) {
		_, _ = fmt.Fprintf(w, label+":\t"+format+"\n", args...)
	}
	line("Window", "%dh", s.LookbackHours)
	line("Total runs", "%d", s.RunsTotal)
	line("Complete", "%d", s.RunsComplete)
	line("Failed", "%d", s.RunsFailed)
	line("Running", "%d", s.RunsRunning)
	line("Failure rate", "%.1f%%", s.FailRate*100)
	if s.RunsComplete > 0 {
		line("Avg landuses", "%.1f", s.AvgLanduses)
		line("Avg live nodes", "%.1f", s.AvgLiveNodes)
		line("Avg duration", "%.1fs", s.AvgDurationSecs)
	}
	line("Failed fetches", "%d", s.FetchFailures)

	cats := make([]string, 0, len(s.CategoryFailures))
	for c := range s.CategoryFailures {
		cats = append(cats, c)
	}
	slices.Sort(cats)
	for _, c := range cats {
		line("  Skipped "+c, "%d", s.CategoryFailures[c])
	}
	_ = w.Flush()
}

func ellipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// truncateID shortens a UUID to its first block.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
