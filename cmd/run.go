package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/access"
	"github.com/sells-group/landuse-cli/internal/config"
	"github.com/sells-group/landuse-cli/internal/db"
	"github.com/sells-group/landuse-cli/internal/engine"
	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/osm"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/resilience"
	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/sink"
)

var (
	runRegionsFile string
	runLocation    string
	runLine        string
	runPoint       string
	runRadius      float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build landuse sets and accessibility scores for one or more regions",
	Example: `  landuse-cli run --location oxford_street --line "528680,181151;528983,181222"
  landuse-cli run --location nicosia --point 33.36402,35.17526 --radius 2000
  landuse-cli run --regions regions.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		specs, err := regionSpecs()
		if err != nil {
			return err
		}
		regions, err := buildRegions(specs, cfg)
		if err != nil {
			return err
		}

		reg, err := loadRegistry(cfg)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sinks, closeSinks, err := buildSinks(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeSinks()

		client := osm.NewClient(osmConfig(cfg))
		p, err := landuse.NewPipeline(reg, client, landuse.Options{
			WorkingCRS:  cfg.CRS,
			Policy:      landuse.Policy(cfg.Pipeline.OnSourceError),
			Concurrency: cfg.Fetch.Concurrency,
		}, sinks...)
		if err != nil {
			return eris.Wrap(err, "build pipeline")
		}

		opts := engine.Options{}
		if cfg.Access.Enabled {
			opts = engine.Options{
				Computer:  access.NetworkComputer{},
				Network:   client,
				Distances: cfg.Access.Distances,
			}
		}
		eng, err := engine.NewEngine(p, reg, st, opts, sinks...)
		if err != nil {
			return err
		}

		zap.L().Info("starting run",
			zap.Int("regions", len(regions)),
			zap.Int("categories", reg.Len()),
			zap.Int("crs", cfg.CRS),
			zap.Strings("formats", cfg.Output.Formats),
		)

		sum, err := eng.Run(ctx, regions)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaryView(sum)); err != nil {
			return eris.Wrap(err, "encode summary")
		}
		if len(sum.Failed) > 0 {
			return eris.Errorf("%d of %d regions failed", len(sum.Failed), len(regions))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runRegionsFile, "regions", "", "regions file (.yaml, .yml, .csv or .xlsx)")
	runCmd.Flags().StringVar(&runLocation, "location", "", "location key for a single region")
	runCmd.Flags().StringVar(&runLine, "line", "", `line in the working CRS, "x,y;x,y;..."`)
	runCmd.Flags().StringVar(&runPoint, "point", "", `geographic point "lng,lat"`)
	runCmd.Flags().Float64Var(&runRadius, "radius", 0, "study radius in meters around --point (default: region.fetch_buffer)")
	rootCmd.AddCommand(runCmd)
}

// regionSpecs collects the regions named on the command line.
func regionSpecs() ([]region.Spec, error) {
	if runRegionsFile != "" {
		if runLocation != "" || runLine != "" || runPoint != "" {
			return nil, eris.New("--regions cannot be combined with --location, --line or --point")
		}
		return region.LoadFile(runRegionsFile)
	}
	if runLocation == "" {
		return nil, eris.New("either --regions or --location is required")
	}

	spec := region.Spec{Key: runLocation, Radius: runRadius}
	switch {
	case runLine != "" && runPoint != "":
		return nil, eris.New("set either --line or --point, not both")
	case runLine != "":
		line, err := parseLine(runLine)
		if err != nil {
			return nil, err
		}
		spec.Line = line
	case runPoint != "":
		pt, err := parsePoint(runPoint)
		if err != nil {
			return nil, err
		}
		spec.Point = pt
	default:
		return nil, eris.New("--location needs --line or --point")
	}
	return []region.Spec{spec}, nil
}

// parseLine parses "x,y;x,y;..." into coordinate pairs.
func parseLine(s string) ([][]float64, error) {
	var out [][]float64
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xy, err := parsePair(pair)
		if err != nil {
			return nil, eris.Wrapf(err, "--line coordinate %d", i)
		}
		out = append(out, xy)
	}
	if len(out) == 0 {
		return nil, eris.New("--line has no coordinates")
	}
	return out, nil
}

// parsePoint parses "lng,lat".
func parsePoint(s string) (*region.PointSpec, error) {
	xy, err := parsePair(s)
	if err != nil {
		return nil, eris.Wrap(err, "--point")
	}
	return &region.PointSpec{Lng: xy[0], Lat: xy[1]}, nil
}

func parsePair(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, eris.Errorf("%q: want two comma-separated numbers", s)
	}
	out := make([]float64, 2)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "%q", s)
		}
		out[i] = v
	}
	return out, nil
}

func buildRegions(specs []region.Spec, c *config.Config) ([]*region.Region, error) {
	b := region.Buffers{Study: c.Region.StudyBuffer, Fetch: c.Region.FetchBuffer}
	regions := make([]*region.Region, 0, len(specs))
	for _, s := range specs {
		r, err := s.Build(c.CRS, b)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// loadRegistry returns the configured schema, or the built-in one.
func loadRegistry(c *config.Config) (*schema.Registry, error) {
	if c.Schema.Path == "" {
		return schema.Default(), nil
	}
	return schema.Load(c.Schema.Path)
}

// buildSinks creates one sink per configured output format. The returned
// func releases any database pool.
func buildSinks(ctx context.Context, c *config.Config) ([]sink.Sink, func(), error) {
	var (
		sinks   []sink.Sink
		closers []func()
	)
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}
	for _, f := range c.Output.Formats {
		switch f {
		case config.FormatGeoPackage:
			sinks = append(sinks, sink.NewGeoPackage(c.Output.Dir))
		case config.FormatGeoJSON:
			gj := sink.NewGeoJSON(c.Output.Dir)
			gj.KeepCRS = c.Output.KeepCRS
			sinks = append(sinks, gj)
		case config.FormatShapefile:
			sinks = append(sinks, sink.NewShapefile(c.Output.Dir))
		case config.FormatPostGIS:
			pool, err := db.Connect(ctx, c.PostGIS.DatabaseURL, c.PostGIS.MaxConns)
			if err != nil {
				closeAll()
				return nil, nil, eris.Wrap(err, "postgis sink")
			}
			closers = append(closers, pool.Close)
			pg := sink.NewPostGIS(pool, c.PostGIS.Table)
			if err := pg.Migrate(ctx); err != nil {
				closeAll()
				return nil, nil, eris.Wrap(err, "postgis sink")
			}
			sinks = append(sinks, pg)
		default:
			closeAll()
			return nil, nil, eris.Errorf("unknown output format %q", f)
		}
	}
	return sinks, closeAll, nil
}

func osmConfig(c *config.Config) osm.Config {
	o := c.Overpass
	return osm.Config{
		Endpoint:   o.Endpoint,
		Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
		RatePerSec: o.RatePerSec,
		UserAgent:  o.UserAgent,
		Retry: resilience.Backoff{
			Attempts: o.MaxAttempts,
			Initial:  time.Duration(o.RetryInitialSecs) * time.Second,
			Max:      osm.DefaultConfig().Retry.Max,
		},
		BreakerThreshold: o.BreakerThreshold,
		BreakerCooldown:  time.Duration(o.BreakerCooldownSecs) * time.Second,
	}
}

type regionView struct {
	Location  string              `json:"location"`
	RunID     string              `json:"run_id,omitempty"`
	Landuses  int                 `json:"landuses"`
	LiveNodes int                 `json:"live_nodes"`
	Failed    []string            `json:"failed_categories,omitempty"`
	Fetches   []landuse.FetchStat `json:"fetches"`
	Artifacts []string            `json:"artifacts"`
	Elapsed   string              `json:"elapsed"`
}

type runView struct {
	Regions []regionView      `json:"regions"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func summaryView(sum *engine.Summary) runView {
	v := runView{Regions: []regionView{}}
	for _, r := range sum.Reports {
		v.Regions = append(v.Regions, regionView{
			Location:  r.Location,
			RunID:     r.RunID,
			Landuses:  r.Landuses,
			LiveNodes: r.LiveNodes,
			Failed:    r.Stats.FailedCategories,
			Fetches:   r.Stats.Fetches,
			Artifacts: r.Artifacts,
			Elapsed:   r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	if len(sum.Failed) > 0 {
		v.Errors = make(map[string]string, len(sum.Failed))
		for k, err := range sum.Failed {
			v.Errors[k] = fmt.Sprint(err)
		}
	}
	return v
}
