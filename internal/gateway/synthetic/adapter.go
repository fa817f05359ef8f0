// Package synthetic implements a fixture-backed telemetry gateway for tests
// and local development. Expressions use the form "fixture:<name>"; each
// fixture maps window labels to canned error ratios.
package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/burnwatch/burnwatch/internal/gateway"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// RatioFixture represents a fixture file format
type RatioFixture struct {
	Windows map[string]WindowData `json:"windows"`
}

// WindowData holds the canned result for one window label
type WindowData struct {
	Ratio            float64    `json:"ratio"`
	InsufficientData bool       `json:"insufficientData,omitempty"`
	DataTimestamp    *time.Time `json:"dataTimestamp,omitempty"`
}

// Gateway serves canned ratios keyed by fixture name and window label.
type Gateway struct {
	mu       sync.RWMutex
	fixtures map[string]*RatioFixture
}

// NewGateway creates an empty synthetic gateway
func NewGateway() *Gateway {
	return &Gateway{
		fixtures: make(map[string]*RatioFixture),
	}
}

// LoadFixture loads a fixture from a JSON file
func (g *Gateway) LoadFixture(name string, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture RatioFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	g.SetFixture(name, &fixture)
	return nil
}

// SetFixture directly sets a fixture (useful for testing)
func (g *Gateway) SetFixture(name string, fixture *RatioFixture) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fixtures[name] = fixture
}

// Evaluate implements gateway.QueryGateway
func (g *Gateway) Evaluate(_ context.Context, q gateway.Query) (gateway.Result, error) {
	name := strings.TrimPrefix(q.Expression, "fixture:")
	if name == q.Expression || name == "" {
		return gateway.Result{}, fmt.Errorf("%w: synthetic expressions must use fixture:<name>, got %q",
			gateway.ErrMalformedExpression, q.Expression)
	}

	g.mu.RLock()
	fixture, exists := g.fixtures[name]
	g.mu.RUnlock()
	if !exists {
		return gateway.Result{}, fmt.Errorf("%w: fixture not found: %s", gateway.ErrBackendUnavailable, name)
	}

	label := slo.FormatDuration(q.Window)
	data, exists := fixture.Windows[label]
	if !exists {
		return gateway.Result{InsufficientData: true}, nil
	}

	return gateway.Result{
		Ratio:            gateway.ClampRatio(data.Ratio),
		InsufficientData: data.InsufficientData,
		Samples:          1,
		DataTimestamp:    data.DataTimestamp,
	}, nil
}
