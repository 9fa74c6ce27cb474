package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/landuse-cli/internal/monitoring"
	"github.com/sells-group/landuse-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.Run{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			LocationKey: "oxford_street",
			Status:      store.RunStatusComplete,
			Result:      &store.RunResult{Landuses: 812, LiveNodes: 64},
			CreatedAt:   now,
			UpdatedAt:   now.Add(2 * time.Minute),
		},
		{
			ID:          "def12345-6789-0000-0000-000000000000",
			LocationKey: "nicosia",
			Status:      store.RunStatusFailed,
			Error:       "engine: no street network around nicosia",
			CreatedAt:   now.Add(-1 * time.Hour),
			UpdatedAt:   now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "LOCATION")
	assert.Contains(t, output, "LIVE_NODES")
	assert.Contains(t, output, "oxford_street")
	assert.Contains(t, output, "812")
	assert.Contains(t, output, "64")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "nicosia")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunsList_LongLocation(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.Run{{
		ID:          "1",
		LocationKey: "a_very_long_location_key_that_goes_on_and_on",
		Status:      store.RunStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "a_very_long_location_key_th...")
	assert.NotContains(t, buf.String(), "goes_on_and_on")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{
		RunsTotal:        4,
		RunsComplete:     3,
		RunsFailed:       1,
		FailRate:         0.25,
		AvgLanduses:      120,
		AvgLiveNodes:     45.5,
		AvgDurationSecs:  12.25,
		FetchFailures:    2,
		CategoryFailures: map[string]int{"retail": 2, "grocery": 1},
		LookbackHours:    24,
	})

	output := buf.String()
	assert.Contains(t, output, "24h")
	assert.Contains(t, output, "25.0%")
	assert.Contains(t, output, "45.5")
	assert.Contains(t, output, "Skipped grocery:")
	assert.Contains(t, output, "Skipped retail:")
	assert.Less(t, strings.Index(output, "grocery"), strings.Index(output, "retail"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
