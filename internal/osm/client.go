// Package osm fetches OpenStreetMap features and street networks from an
// Overpass API endpoint.
package osm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/network"
	"github.com/sells-group/landuse-cli/internal/resilience"
	"github.com/sells-group/landuse-cli/internal/schema"
)

// DefaultEndpoint is the public Overpass API interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Config configures a Client.
type Config struct {
	Endpoint   string
	Timeout    time.Duration // per request, also sent as the QL [timeout:]
	RatePerSec float64       // request rate; 0 disables limiting
	UserAgent  string
	Retry      resilience.Backoff

	// The breaker opens after BreakerThreshold consecutive transient failures
	// and stays open for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:         DefaultEndpoint,
		Timeout:          180 * time.Second,
		RatePerSec:       1,
		UserAgent:        "landuse-cli",
		Retry:            resilience.Backoff{Attempts: 3, Initial: 5 * time.Second, Max: 2 * time.Minute},
		BreakerThreshold: 5,
		BreakerCooldown:  time.Minute,
	}
}

// Client queries Overpass. It implements landuse.Source and is safe for
// concurrent use.
type Client struct {
	cfg       Config
	transport http.RoundTripper
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
}

var _ landuse.Source = (*Client)(nil)

// NewClient creates a client. Zero config fields take their defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	retry := cfg.Retry
	retry.OnRetry = resilience.LogRetry("osm.client", "overpass query")
	cfg.Retry = retry

	return &Client{
		cfg:       cfg,
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   resilience.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, nil),
	}
}

// Features returns the elements inside area tagged key with one of values.
// It returns landuse.ErrEmptyResult when nothing matches.
func (c *Client) Features(ctx context.Context, area *geom.Polygon, key string, values schema.TagValues) ([]landuse.RawFeature, error) {
	res, err := c.run(ctx, FeatureQuery(area, key, values, c.cfg.Timeout))
	if err != nil {
		return nil, eris.Wrapf(err, "osm: features %s=%s", key, values)
	}
	feats := toFeatures(res, key, values)
	if len(feats) == 0 {
		return nil, landuse.ErrEmptyResult
	}
	return feats, nil
}

// Highways returns the walkable highway ways inside area.
func (c *Client) Highways(ctx context.Context, area *geom.Polygon) ([]network.Way, error) {
	res, err := c.run(ctx, HighwayQuery(area, c.cfg.Timeout))
	if err != nil {
		return nil, eris.Wrap(err, "osm: highways")
	}
	ways := toWays(res)
	if len(ways) == 0 {
		return nil, landuse.ErrEmptyResult
	}
	return ways, nil
}

func (c *Client) run(ctx context.Context, query string) (*overpass.Result, error) {
	log := zap.L().With(zap.String("component", "osm.client"))
	start := time.Now()

	res, err := resilience.Retry(ctx, c.cfg.Retry, func(ctx context.Context) (*overpass.Result, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "osm: rate limit")
		}
		return resilience.Guard(ctx, c.breaker, func(ctx context.Context) (*overpass.Result, error) {
			return c.do(ctx, query)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Debug("overpass query done",
		zap.Int("nodes", len(res.Nodes)),
		zap.Int("ways", len(res.Ways)),
		zap.Int("relations", len(res.Relations)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// do runs one request. The Overpass library takes no context, so each call
// gets its own http.Client whose transport binds the request to ctx and
// records the response status.
func (c *Client) do(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	p := &recorder{ctx: ctx, base: c.transport, userAgent: c.cfg.UserAgent}
	api := overpass.NewWithSettings(c.cfg.Endpoint, 1, &http.Client{Transport: p})
	res, err := api.Query(query)
	if err == nil {
		// Overpass reports server-side timeouts and memory exhaustion as a
		// 200 with a remark; the elements are then missing or truncated.
		if strings.HasPrefix(strings.ToLower(p.remark), "runtime error") {
			return nil, resilience.Transient(eris.Errorf("osm: overpass %s", p.remark), p.status, 0)
		}
		return &res, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, resilience.Transient(eris.Wrap(ctx.Err(), "osm: overpass request"), 0, 0)
	case p.status != 0 && resilience.TransientStatus(p.status):
		return nil, resilience.Transient(eris.Wrap(err, "osm: overpass request"), p.status, p.retryAfter)
	case p.err != nil && resilience.IsTransient(p.err):
		return nil, resilience.Transient(eris.Wrap(p.err, "osm: overpass request"), 0, 0)
	}
	return nil, eris.Wrap(err, "osm: overpass request")
}

// recorder binds outgoing requests to a context and remembers the last response
// status, Retry-After hint and Overpass remark.
type recorder struct {
	ctx       context.Context
	base      http.RoundTripper
	userAgent string

	status     int
	retryAfter time.Duration
	remark     string
	err        error
}

func (p *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(p.ctx)
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.base.RoundTrip(req)
	if err != nil {
		p.err = err
		return nil, err
	}
	p.status = resp.StatusCode
	p.retryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		p.err = err
		return nil, err
	}
	var meta struct {
		Remark string `json:"remark"`
	}
	if json.Unmarshal(body, &meta) == nil {
		p.remark = meta.Remark
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
