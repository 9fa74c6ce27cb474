// Package engine runs regions end to end: landuse pipeline, street network,
// accessibility join, node artifacts and the run log.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/access"
	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/network"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/sink"
	"github.com/sells-group/landuse-cli/internal/store"
)

// NetworkSource returns the street network inside an EPSG:4326 area.
type NetworkSource interface {
	Highways(ctx context.Context, area *geom.Polygon) ([]network.Way, error)
}

// Options configures the accessibility stage. A nil Computer skips it.
type Options struct {
	Computer  access.Computer
	Network   NetworkSource
	Distances []float64
}

// Engine orchestrates region runs.
type Engine struct {
	pipeline *landuse.Pipeline
	reg      *schema.Registry
	runs     store.Store
	sinks    []sink.Sink
	opts     Options
}

// Report is the outcome of one region.
type Report struct {
	RunID     string
	Location  string
	Landuses  int
	Nodes     int
	LiveNodes int
	Stats     landuse.Stats
	Artifacts []string
	Elapsed   time.Duration
}

// Summary is the outcome of a multi-region run.
type Summary struct {
	Reports []*Report
	Failed  map[string]error
}

// NewEngine creates an engine. runs may be nil to skip the run log; sinks
// receive the node layers and should match the pipeline's sinks.
func NewEngine(p *landuse.Pipeline, reg *schema.Registry, runs store.Store, opts Options, sinks ...sink.Sink) (*Engine, error) {
	if p == nil || reg == nil {
		return nil, eris.New("engine: pipeline and registry are required")
	}
	if opts.Computer != nil {
		if opts.Network == nil {
			return nil, eris.New("engine: accessibility needs a network source")
		}
		if len(opts.Distances) == 0 {
			return nil, eris.New("engine: accessibility needs distances")
		}
	}
	return &Engine{pipeline: p, reg: reg, runs: runs, sinks: sinks, opts: opts}, nil
}

// Run processes regions one after another. A failing region is logged and
// recorded; the remaining regions still run. Only cancellation stops early.
func (e *Engine) Run(ctx context.Context, regions []*region.Region) (*Summary, error) {
	log := zap.L().With(zap.String("component", "engine"))
	sum := &Summary{Failed: make(map[string]error)}

	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "engine: cancelled")
		}
		rep, err := e.RunRegion(ctx, r)
		if err != nil {
			sum.Failed[r.Key] = err
			if ctx.Err() != nil {
				return sum, eris.Wrap(ctx.Err(), "engine: cancelled")
			}
			continue
		}
		sum.Reports = append(sum.Reports, rep)
	}

	log.Info("engine run complete",
		zap.Int("regions", len(regions)),
		zap.Int("succeeded", len(sum.Reports)),
		zap.Int("failed", len(sum.Failed)),
	)
	return sum, nil
}

// RunRegion processes one region and records it in the run log.
func (e *Engine) RunRegion(ctx context.Context, r *region.Region) (*Report, error) {
	log := zap.L().With(
		zap.String("component", "engine"),
		zap.String("location", r.Key),
	)
	start := time.Now()

	var run *store.Run
	if e.runs != nil {
		var err error
		run, err = e.runs.CreateRun(ctx, r.Key)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: start run for %s", r.Key)
		}
	}

	rep, err := e.process(ctx, r)
	if err != nil {
		log.Error("region failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if run != nil {
			// Record the failure even when ctx is what failed.
			if logErr := e.runs.FailRun(context.WithoutCancel(ctx), run.ID, err); logErr != nil {
				log.Error("failed to record run failure", zap.Error(logErr))
			}
		}
		return nil, err
	}
	rep.Elapsed = time.Since(start)

	if run != nil {
		rep.RunID = run.ID
		res := &store.RunResult{
			Landuses:  rep.Landuses,
			Nodes:     rep.Nodes,
			LiveNodes: rep.LiveNodes,
			Fetches:   rep.Stats.Fetches,
			Failed:    rep.Stats.FailedCategories,
			Artifacts: rep.Artifacts,
		}
		if err := e.runs.CompleteRun(ctx, run.ID, res); err != nil {
			log.Error("failed to record run completion", zap.Error(err))
		}
	}

	log.Info("region complete",
		zap.Int("landuses", rep.Landuses),
		zap.Int("live_nodes", rep.LiveNodes),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}

func (e *Engine) process(ctx context.Context, r *region.Region) (*Report, error) {
	res, err := e.pipeline.Run(ctx, r)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Location:  r.Key,
		Landuses:  res.Landuses.Len(),
		Stats:     res.Stats,
		Artifacts: append([]string{}, res.Artifacts...),
	}
	if e.opts.Computer == nil {
		return rep, nil
	}

	g, err := e.network(ctx, r)
	if err != nil {
		return nil, err
	}
	rep.Nodes = g.Len()
	rep.LiveNodes = g.MarkLive(r.Live)

	scores, err := e.opts.Computer.Compute(ctx, res.Landuses, landuse.CategoryColumn, e.reg.Keys(), g, e.opts.Distances)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: accessibility for %s", r.Key)
	}

	layer := access.NodesLayer(sink.NodesName(r.Key), g, scores)
	for _, s := range e.sinks {
		loc, err := s.Write(ctx, layer)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: persist %s", layer.Name)
		}
		rep.Artifacts = append(rep.Artifacts, loc)
	}
	return rep, nil
}

func (e *Engine) network(ctx context.Context, r *region.Region) (*network.Graph, error) {
	area, err := r.FetchArea()
	if err != nil {
		return nil, eris.Wrapf(err, "engine: region %s", r.Key)
	}
	ways, err := e.opts.Network.Highways(ctx, area)
	if errors.Is(err, landuse.ErrEmptyResult) {
		return nil, eris.Errorf("engine: no street network around %s", r.Key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "engine: street network for %s", r.Key)
	}
	tf, err := crs.New(crs.WGS84, r.CRS)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: region %s", r.Key)
	}
	g, err := network.Build(ways, tf)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: street network for %s", r.Key)
	}
	return g, nil
}
