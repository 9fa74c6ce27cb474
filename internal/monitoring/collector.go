// Package monitoring summarizes the run log and raises webhook alerts when
// regions or categories keep failing.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal       int     `json:"runs_total"`
	RunsComplete    int     `json:"runs_complete"`
	RunsFailed      int     `json:"runs_failed"`
	RunsRunning     int     `json:"runs_running"`
	FailRate        float64 `json:"fail_rate"`
	AvgLanduses     float64 `json:"avg_landuses"`
	AvgLiveNodes    float64 `json:"avg_live_nodes"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`

	// Source health across completed runs.
	FetchFailures    int            `json:"fetch_failures"`
	CategoryFailures map[string]int `json:"category_failures"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error)
}

// Collector gathers metrics from the run log.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		CategoryFailures: map[string]int{},
		LookbackHours:    lookbackHours,
		CollectedAt:      now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var (
		landuses, liveNodes int
		totalDur            time.Duration
	)
	for _, r := range runs {
		switch r.Status {
		case store.RunStatusComplete:
			snap.RunsComplete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
		case store.RunStatusFailed:
			snap.RunsFailed++
		case store.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Result == nil {
			continue
		}
		landuses += r.Result.Landuses
		liveNodes += r.Result.LiveNodes
		for _, cat := range r.Result.Failed {
			snap.CategoryFailures[cat]++
		}
		for _, f := range r.Result.Fetches {
			if f.Status == landuse.StatusFailed {
				snap.FetchFailures++
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsComplete > 0 {
		n := float64(snap.RunsComplete)
		snap.AvgLanduses = float64(landuses) / n
		snap.AvgLiveNodes = float64(liveNodes) / n
		snap.AvgDurationSecs = totalDur.Seconds() / n
	}

	return snap, nil
}
