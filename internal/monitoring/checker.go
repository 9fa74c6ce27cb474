package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the run history on a fixed interval while the server
// is up.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker wires a collector and alerter together. A non-positive
// check interval falls back to five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run checks on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("alert checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot and sends whatever it triggers. It returns the
// number of alerts delivered.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("collect run metrics", zap.Error(err))
		return 0
	}
	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return 0
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Info("alert check done",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
		zap.Float64("fail_rate", snap.FailRate),
	)
	return sent
}
