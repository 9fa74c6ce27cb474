package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/store"
)

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs    []store.Run
	listErr error
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]store.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []store.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockRuns{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.RunsFailed)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Empty(t, snap.CategoryFailures)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	failedFetch := landuse.FetchStat{Category: "retail", TagKey: "shop", Status: landuse.StatusFailed}
	okFetch := landuse.FetchStat{Category: "eating", TagKey: "amenity", Status: landuse.StatusOK}
	st := &mockRuns{
		runs: []store.Run{
			{
				ID: "1", Status: store.RunStatusComplete,
				CreatedAt: now.Add(-1 * time.Hour), UpdatedAt: now.Add(-1*time.Hour + 30*time.Second),
				Result: &store.RunResult{Landuses: 100, LiveNodes: 40, Failed: []string{"retail"},
					Fetches: []landuse.FetchStat{okFetch, failedFetch}},
			},
			{
				ID: "2", Status: store.RunStatusComplete,
				CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2*time.Hour + 90*time.Second),
				Result: &store.RunResult{Landuses: 300, LiveNodes: 60, Failed: []string{"retail", "grocery"},
					Fetches: []landuse.FetchStat{failedFetch}},
			},
			{ID: "3", Status: store.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour), Error: "abort"},
			{ID: "4", Status: store.RunStatusRunning, CreatedAt: now.Add(-30 * time.Minute)},
			// Outside lookback window.
			{ID: "5", Status: store.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
	}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001) // 1 failed / 3 finished
	assert.InDelta(t, 200, snap.AvgLanduses, 0.001)
	assert.InDelta(t, 50, snap.AvgLiveNodes, 0.001)
	assert.InDelta(t, 60, snap.AvgDurationSecs, 0.001)
	assert.Equal(t, 2, snap.FetchFailures)
	assert.Equal(t, map[string]int{"retail": 2, "grocery": 1}, snap.CategoryFailures)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	st := &mockRuns{
		runs: []store.Run{
			{ID: "1", Status: store.RunStatusRunning, CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "2", Status: store.RunStatusRunning, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 2, snap.RunsRunning)
}

func TestCollector_ListError(t *testing.T) {
	st := &mockRuns{listErr: errors.New("db down")}

	_, err := NewCollector(st).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
