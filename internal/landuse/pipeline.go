package landuse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/sink"
)

// Policy decides what a source failure does to the rest of a region.
type Policy string

const (
	// SkipCategory drops the failing category (zero rows) and continues.
	SkipCategory Policy = "skip_category"
	// Abort fails the whole region.
	Abort Policy = "abort"
)

// ParsePolicy validates a policy name; the empty string selects SkipCategory.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", SkipCategory:
		return SkipCategory, nil
	case Abort:
		return Abort, nil
	default:
		return "", eris.Errorf("landuse: unknown source error policy %q", s)
	}
}

// FetchStatus is the outcome of one category/tag-key fetch.
type FetchStatus string

// Fetch outcomes.
const (
	StatusOK      FetchStatus = "ok"
	StatusEmpty   FetchStatus = "empty"
	StatusFailed  FetchStatus = "failed"
	StatusSkipped FetchStatus = "skipped"
)

// FetchStat records one category/tag-key fetch.
type FetchStat struct {
	Category string        `json:"category"`
	TagKey   string        `json:"tag_key"`
	Status   FetchStatus   `json:"status"`
	Raw      int           `json:"raw"`
	Rows     int           `json:"rows"`
	Dropped  int           `json:"dropped"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Stats summarizes a pipeline run.
type Stats struct {
	Fetches          []FetchStat `json:"fetches"`
	Rows             int         `json:"rows"`
	FailedCategories []string    `json:"failed_categories,omitempty"`
}

// Result is the output of Pipeline.Run for one region.
type Result struct {
	Location  string
	Landuses  *Set
	Stats     Stats
	Artifacts []string
}

// Options configures a Pipeline.
type Options struct {
	WorkingCRS  int
	Policy      Policy
	Concurrency int // fetches in flight; <= 1 is strictly sequential
}

// Pipeline fetches, normalizes, aggregates and persists the landuses of a
// region according to a schema registry.
type Pipeline struct {
	reg   *schema.Registry
	src   Source
	sinks []sink.Sink
	opts  Options
	tf    crs.Transform
}

// NewPipeline validates opts and builds a pipeline. Sinks receive the
// aggregated set in the order given.
func NewPipeline(reg *schema.Registry, src Source, opts Options, sinks ...sink.Sink) (*Pipeline, error) {
	if reg == nil {
		return nil, eris.New("landuse: nil registry")
	}
	if src == nil {
		return nil, eris.New("landuse: nil source")
	}
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}
	opts.Policy = policy
	tf, err := crs.New(crs.WGS84, opts.WorkingCRS)
	if err != nil {
		return nil, eris.Wrap(err, "landuse: working CRS")
	}
	return &Pipeline{reg: reg, src: src, sinks: sinks, opts: opts, tf: tf}, nil
}

type outcome struct {
	raw     []RawFeature
	err     error
	elapsed time.Duration
	done    bool
}

// Run processes one region. Categories and tag keys are visited in registry
// order, so identical source data yields identical rows and IDs.
func (p *Pipeline) Run(ctx context.Context, r *region.Region) (*Result, error) {
	log := zap.L().With(
		zap.String("component", "landuse.pipeline"),
		zap.String("location", r.Key),
	)
	if r.CRS != p.opts.WorkingCRS {
		return nil, eris.Errorf("landuse: region %s is in EPSG:%d, pipeline works in EPSG:%d", r.Key, r.CRS, p.opts.WorkingCRS)
	}
	area, err := r.FetchArea()
	if err != nil {
		return nil, eris.Wrapf(err, "landuse: region %s", r.Key)
	}

	cats := p.reg.Categories()
	log.Info("starting landuse fetch",
		zap.Int("categories", len(cats)),
		zap.Int("concurrency", max(p.opts.Concurrency, 1)),
		zap.String("policy", string(p.opts.Policy)),
	)

	outcomes := p.fetchAll(ctx, area, cats)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "landuse: region %s cancelled", r.Key)
	}

	var (
		stats Stats
		sets  [][]Feature
	)
	for ci, c := range cats {
		var catSets [][]Feature
		failed := false
		for ti, t := range c.Tags {
			o := outcomes[ci][ti]
			stat := FetchStat{Category: c.Key, TagKey: t.Key, Elapsed: o.elapsed}
			switch {
			case failed || !o.done:
				stat.Status = StatusSkipped
			case o.err == nil:
				feats, dropped := Normalize(o.raw, c.Key, t.Key, t.Values, p.tf)
				stat.Status = StatusOK
				stat.Raw = len(o.raw)
				stat.Rows = len(feats)
				stat.Dropped = len(dropped)
				catSets = append(catSets, feats)
			case IsEmptyResult(o.err):
				stat.Status = StatusEmpty
			case IsSchemaViolation(o.err):
				return nil, eris.Wrapf(o.err, "landuse: region %s", r.Key)
			default:
				stat.Status = StatusFailed
				stat.Error = o.err.Error()
				if p.opts.Policy == Abort {
					return nil, eris.Wrapf(o.err, "landuse: region %s", r.Key)
				}
				log.Error("category skipped after source failure",
					zap.String("category", c.Key),
					zap.String("tag_key", t.Key),
					zap.Error(o.err),
				)
				failed = true
				catSets = nil
			}
			stats.Fetches = append(stats.Fetches, stat)
		}
		if failed {
			stats.FailedCategories = append(stats.FailedCategories, c.Key)
			continue
		}
		sets = append(sets, catSets...)
	}

	set, err := Aggregate(sets, p.opts.WorkingCRS)
	if err != nil {
		return nil, eris.Wrapf(err, "landuse: region %s", r.Key)
	}
	if err := set.Validate(p.reg); err != nil {
		return nil, eris.Wrapf(err, "landuse: region %s", r.Key)
	}
	stats.Rows = set.Len()

	res := &Result{Location: r.Key, Landuses: set, Stats: stats}
	layer := set.Layer(sink.PlacesName(r.Key))
	for _, s := range p.sinks {
		loc, err := s.Write(ctx, layer)
		if err != nil {
			return nil, eris.Wrapf(err, "landuse: persist %s", layer.Name)
		}
		res.Artifacts = append(res.Artifacts, loc)
	}

	log.Info("landuse set ready",
		zap.Int("rows", stats.Rows),
		zap.Strings("failed_categories", stats.FailedCategories),
		zap.Strings("artifacts", res.Artifacts),
	)
	return res, nil
}

// fetchAll issues every category/tag-key fetch. Sequential mode stops a
// category at its first source failure; concurrent mode fetches everything
// and leaves the ordering to the caller.
func (p *Pipeline) fetchAll(ctx context.Context, area *geom.Polygon, cats []schema.Category) [][]outcome {
	out := make([][]outcome, len(cats))
	for i, c := range cats {
		out[i] = make([]outcome, len(c.Tags))
	}

	if p.opts.Concurrency <= 1 {
		for ci, c := range cats {
			for ti, t := range c.Tags {
				if ctx.Err() != nil {
					return out
				}
				o := p.fetchOne(ctx, area, c.Key, t)
				out[ci][ti] = o
				if o.err != nil && !IsEmptyResult(o.err) {
					if p.opts.Policy == Abort || IsSchemaViolation(o.err) {
						return out
					}
					break
				}
			}
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for ci, c := range cats {
		ci, c := ci, c
		for ti, t := range c.Tags {
			ti, t := ti, t
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				out[ci][ti] = p.fetchOne(gctx, area, c.Key, t)
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) fetchOne(ctx context.Context, area *geom.Polygon, category string, t schema.TagSpec) outcome {
	log := zap.L().With(
		zap.String("component", "landuse.pipeline"),
		zap.String("category", category),
		zap.String("tag_key", t.Key),
	)
	log.Info("fetching", zap.String("tag_values", t.Values.JSON()))

	start := time.Now()
	raw, err := Fetch(ctx, p.src, area, category, t.Key, t.Values)
	o := outcome{raw: raw, err: err, elapsed: time.Since(start), done: true}
	switch {
	case err == nil:
		log.Info("fetched", zap.Int("features", len(raw)), zap.Duration("elapsed", o.elapsed))
	case IsEmptyResult(err):
		log.Info("no matching features", zap.Duration("elapsed", o.elapsed))
	default:
		log.Warn("fetch failed", zap.Error(err), zap.Duration("elapsed", o.elapsed))
	}
	return o
}
