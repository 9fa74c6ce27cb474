// Package store keeps the run log: one record per processed region with its
// status, fetch statistics and written artifacts.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landuse-cli/internal/landuse"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunResult is stored with a completed run.
type RunResult struct {
	Landuses   int                 `json:"landuses"`
	Categories map[string]int      `json:"categories"`
	Nodes      int                 `json:"nodes"`
	LiveNodes  int                 `json:"live_nodes"`
	Fetches    []landuse.FetchStat `json:"fetches"`
	Failed     []string            `json:"failed_categories,omitempty"`
	Artifacts  []string            `json:"artifacts"`
}

// Run is one region processed by the pipeline.
type Run struct {
	ID          string     `json:"id"`
	LocationKey string     `json:"location_key"`
	Status      RunStatus  `json:"status"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       RunStatus `json:"status,omitempty"`
	LocationKey  string    `json:"location_key,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store persists the run log.
type Store interface {
	CreateRun(ctx context.Context, locationKey string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, result *RunResult) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
