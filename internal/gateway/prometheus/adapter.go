// Package prometheus implements the telemetry query gateway against the
// Prometheus HTTP API using instant queries.
package prometheus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/burnwatch/burnwatch/internal/gateway"
)

// Config holds Prometheus gateway configuration
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxConcurrency int64
}

// DefaultConfig returns default configuration
func DefaultConfig(prometheusURL string) Config {
	return Config{
		URL:            prometheusURL,
		Timeout:        10 * time.Second,
		MaxConcurrency: 10,
	}
}

// Gateway is a Prometheus-backed telemetry query gateway. It performs no
// internal retries; each call carries an explicit deadline and a failed call
// surfaces one of the gateway failure kinds.
type Gateway struct {
	config Config
	client *http.Client
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewGateway creates a new Prometheus gateway
func NewGateway(config Config, logger *zap.Logger) *Gateway {
	return &Gateway{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		sem:    semaphore.NewWeighted(config.MaxConcurrency),
		logger: logger,
	}
}

// Evaluate implements gateway.QueryGateway. The expression is evaluated as
// an instant query at q.AsOf; an empty vector or NaN result is reported as
// insufficient data rather than a zero ratio.
func (g *Gateway) Evaluate(ctx context.Context, q gateway.Query) (gateway.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return gateway.Result{}, fmt.Errorf("%w: waiting for query slot: %v", gateway.ErrTimeout, err)
	}
	defer g.sem.Release(1)

	resp, err := g.executeQuery(ctx, q)
	if err != nil {
		return gateway.Result{}, err
	}

	if len(resp.Data.Result) == 0 {
		return gateway.Result{InsufficientData: true}, nil
	}

	value := resp.Data.Result[0].Value.Value()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		// 0/0 from an increase() ratio means no traffic in the window
		return gateway.Result{InsufficientData: true, Samples: len(resp.Data.Result)}, nil
	}

	result := gateway.Result{
		Ratio:   gateway.ClampRatio(value),
		Samples: len(resp.Data.Result),
	}
	if ts := resp.Data.Result[0].Value.Timestamp(); !ts.IsZero() {
		result.DataTimestamp = &ts
	}
	return result, nil
}

// executeQuery performs a single Prometheus instant query
func (g *Gateway) executeQuery(ctx context.Context, q gateway.Query) (*QueryResponse, error) {
	queryURL := fmt.Sprintf("%s/api/v1/query", strings.TrimSuffix(g.config.URL, "/"))

	params := url.Values{}
	params.Add("query", q.Expression)
	if !q.AsOf.IsZero() {
		params.Add("time", strconv.FormatInt(q.AsOf.Unix(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, fmt.Errorf("%w: %v", gateway.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", gateway.ErrBackendUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", gateway.ErrMalformedExpression, truncate(string(body), 200))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: http status %d", gateway.ErrBackendUnavailable, resp.StatusCode)
	}

	var result QueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", gateway.ErrBackendUnavailable, err)
	}

	if result.Status != "success" {
		if result.ErrorType == "bad_data" {
			return nil, fmt.Errorf("%w: %s", gateway.ErrMalformedExpression, result.Error)
		}
		return nil, fmt.Errorf("%w: prometheus error: %s", gateway.ErrBackendUnavailable, result.Error)
	}

	return &result, nil
}

// ValidateExpression dry-runs an expression against the backend so malformed
// PromQL is caught at definition registration instead of at evaluation time.
func (g *Gateway) ValidateExpression(ctx context.Context, expression string) error {
	_, err := g.Evaluate(ctx, gateway.Query{Expression: expression, AsOf: time.Now()})
	if errors.Is(err, gateway.ErrMalformedExpression) {
		return err
	}
	if err != nil {
		// The backend being down is not the expression's fault
		g.logger.Warn("expression validation inconclusive", zap.Error(err))
	}
	return nil
}

func isClientTimeout(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
