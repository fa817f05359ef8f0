package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleEvent(tr Transition) Event {
	return Event{
		ID:                 "ev-1",
		SLOID:              "checkout-availability",
		TenantID:           "acme",
		SLOName:            "Checkout availability",
		Service:            "checkout",
		Transition:         tr,
		FastBurnRate:       50,
		SlowBurnRate:       10,
		BudgetRemainingPct: 42.5,
		OccurredAt:         time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestAlertmanagerDispatchFiring(t *testing.T) {
	var gotPath string
	var gotAlerts []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAlerts))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewAlertmanagerDispatcher(server.URL, time.Second, zap.NewNop())
	require.NoError(t, d.Dispatch(context.Background(), sampleEvent(TransitionFiring)))

	assert.Equal(t, "/api/v2/alerts", gotPath)
	require.Len(t, gotAlerts, 1)

	labels := gotAlerts[0]["labels"].(map[string]any)
	assert.Equal(t, "SLOBurnRate", labels["alertname"])
	assert.Equal(t, "checkout-availability", labels["slo_id"])
	assert.Equal(t, "acme", labels["tenant_id"])

	annotations := gotAlerts[0]["annotations"].(map[string]any)
	assert.Contains(t, annotations["summary"], "50.0x")
	assert.Equal(t, "ev-1", annotations["event_id"])

	_, hasEndsAt := gotAlerts[0]["endsAt"]
	assert.False(t, hasEndsAt, "a firing alert carries no endsAt")
}

func TestAlertmanagerDispatchResolvedSetsEndsAt(t *testing.T) {
	var gotAlerts []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAlerts))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewAlertmanagerDispatcher(server.URL, time.Second, zap.NewNop())
	require.NoError(t, d.Dispatch(context.Background(), sampleEvent(TransitionResolved)))

	require.Len(t, gotAlerts, 1)
	endsAt, ok := gotAlerts[0]["endsAt"].(string)
	require.True(t, ok, "resolved alert must carry endsAt")
	parsed, err := time.Parse(time.RFC3339, endsAt)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
}

func TestAlertmanagerDispatchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewAlertmanagerDispatcher(server.URL, time.Second, zap.NewNop())
	err := d.Dispatch(context.Background(), sampleEvent(TransitionFiring))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestAlertmanagerDispatchBackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	d := NewAlertmanagerDispatcher(server.URL, time.Second, zap.NewNop())
	assert.Error(t, d.Dispatch(context.Background(), sampleEvent(TransitionFiring)))
}
