package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AlertmanagerDispatcher posts lifecycle events to a Prometheus
// Alertmanager, which owns routing to Slack, PagerDuty and friends. A
// resolved event is expressed the Alertmanager way: the same alert with
// endsAt set.
type AlertmanagerDispatcher struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAlertmanagerDispatcher creates a dispatcher for the given base URL
// (e.g. http://alertmanager:9093).
func NewAlertmanagerDispatcher(baseURL string, timeout time.Duration, logger *zap.Logger) *AlertmanagerDispatcher {
	return &AlertmanagerDispatcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type alertmanagerAlert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      *time.Time        `json:"endsAt,omitempty"`
}

// Dispatch implements Dispatcher
func (d *AlertmanagerDispatcher) Dispatch(ctx context.Context, ev Event) error {
	alert := alertmanagerAlert{
		Labels: map[string]string{
			"alertname": "SLOBurnRate",
			"slo_id":    ev.SLOID,
			"tenant_id": ev.TenantID,
			"service":   ev.Service,
			"severity":  "page",
		},
		Annotations: map[string]string{
			"summary": fmt.Sprintf("%s: error budget burning at %.1fx (fast) / %.1fx (slow), %.1f%% budget remaining",
				ev.SLOName, ev.FastBurnRate, ev.SlowBurnRate, ev.BudgetRemainingPct),
			"event_id": ev.ID,
		},
		StartsAt: ev.OccurredAt,
	}
	if ev.Transition == TransitionResolved {
		endsAt := ev.OccurredAt
		alert.EndsAt = &endsAt
	}

	payload, err := json.Marshal([]alertmanagerAlert{alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/api/v2/alerts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alertmanager returned status %d", resp.StatusCode)
	}

	d.logger.Debug("dispatched alert to alertmanager",
		zap.String("slo_id", ev.SLOID),
		zap.String("transition", string(ev.Transition)))
	return nil
}
