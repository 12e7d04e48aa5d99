package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCacheHitRateLow     AlertType = "cache_hit_rate_low"
	AlertCacheAgingOut       AlertType = "cache_aging_out"
	AlertRefreshQueueBacking AlertType = "refresh_queue_backing_up"
)

// minEntriesForHitRateAlert gates the hit-rate check so a near-empty
// cache does not page anyone.
const minEntriesForHitRateAlert = 10

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// A low hit rate means cached analyses are written but rarely read,
	// so the cache is not earning its keep.
	if snap.CacheEntries >= minEntriesForHitRateAlert && a.cfg.HitRateFloor > 0 && snap.CacheHitRate < a.cfg.HitRateFloor {
		alerts = append(alerts, Alert{
			Type:     AlertCacheHitRateLow,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Cache hit rate %.2f below floor %.2f across %d entries",
				snap.CacheHitRate, a.cfg.HitRateFloor, snap.CacheEntries,
			),
			Details: map[string]any{
				"hit_rate": snap.CacheHitRate,
				"floor":    a.cfg.HitRateFloor,
				"entries":  snap.CacheEntries,
			},
			Timestamp: now,
		})
	}

	// An old average age means cleanup or refresh has stalled.
	if a.cfg.AvgAgeCeilingHrs > 0 && snap.CacheAvgAgeHours > a.cfg.AvgAgeCeilingHrs {
		alerts = append(alerts, Alert{
			Type:     AlertCacheAgingOut,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Average cache entry age %.1fh exceeds ceiling %.1fh",
				snap.CacheAvgAgeHours, a.cfg.AvgAgeCeilingHrs,
			),
			Details: map[string]any{
				"avg_age_hours": snap.CacheAvgAgeHours,
				"ceiling_hours": a.cfg.AvgAgeCeilingHrs,
				"entries":       snap.CacheEntries,
			},
			Timestamp: now,
		})
	}

	// A saturated queue drops refresh requests and serves stale data.
	if a.cfg.QueueSaturation > 0 && snap.QueueSaturation > a.cfg.QueueSaturation {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshQueueBacking,
			Severity: "high",
			Message: fmt.Sprintf(
				"Refresh queue %.0f%% full (%d/%d); background refreshes are being dropped",
				snap.QueueSaturation*100, snap.QueueDepth, snap.QueueCapacity,
			),
			Details: map[string]any{
				"depth":      snap.QueueDepth,
				"capacity":   snap.QueueCapacity,
				"saturation": snap.QueueSaturation,
				"threshold":  a.cfg.QueueSaturation,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
