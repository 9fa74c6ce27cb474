package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate   AlertType = "run_failure_rate"
	AlertCategoryFailures AlertType = "category_failures"
)

// minFinishedRuns is the sample size below which the failure rate is not
// judged.
const minFinishedRuns = 5

// Alert is one webhook notification.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter compares snapshots with the configured thresholds and posts
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	log    *zap.Logger
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    zap.L().With(zap.String("component", "monitoring.alerter")),
	}
}

// Evaluate returns the alerts a snapshot triggers, failure rate first.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, rule := range []func(*MetricsSnapshot) (Alert, bool){a.failureRate, a.categoryFailures} {
		if alert, ok := rule(snap); ok {
			alert.Timestamp = now
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func (a *Alerter) failureRate(snap *MetricsSnapshot) (Alert, bool) {
	finished := snap.RunsComplete + snap.RunsFailed
	if finished < minFinishedRuns || snap.FailRate <= a.cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertRunFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("Region failure rate %.1f%% exceeds threshold %.1f%% (%d of %d finished runs in last %dh)",
			snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.RunsFailed, finished, snap.LookbackHours),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       snap.RunsFailed,
			"finished":     finished,
		},
	}, true
}

// categoryFailures flags categories that were skipped in at least the
// threshold number of runs. A zero threshold disables the rule.
func (a *Alerter) categoryFailures(snap *MetricsSnapshot) (Alert, bool) {
	limit := a.cfg.CategoryFailureThreshold
	if limit <= 0 {
		return Alert{}, false
	}
	counts := make(map[string]any)
	var cats []string
	for cat, n := range snap.CategoryFailures {
		if n >= limit {
			cats = append(cats, cat)
			counts[cat] = n
		}
	}
	if len(cats) == 0 {
		return Alert{}, false
	}
	slices.Sort(cats)
	return Alert{
		Type:     AlertCategoryFailures,
		Severity: "medium",
		Message: fmt.Sprintf("Categories skipped after source failures in %d+ runs in last %dh: %s",
			limit, snap.LookbackHours, strings.Join(cats, ", ")),
		Details: map[string]any{"categories": counts, "threshold": limit},
	}, true
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Without a webhook URL nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	sent := 0
	for _, alert := range alerts {
		log := a.log.With(zap.String("type", string(alert.Type)))
		if err := a.post(ctx, alert); err != nil {
			log.Error("alert delivery failed", zap.Error(err))
			continue
		}
		log.Info("alert sent", zap.String("severity", alert.Severity))
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook answered %d", resp.StatusCode)
	}
	return nil
}
