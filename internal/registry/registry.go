// Package registry is the engine's view of the external SLO registry: a
// read-only source of active definitions. Definitions are versioned by
// fingerprint so the scheduler can detect updates and discard stale alert
// state.
package registry

import (
	"context"
	"errors"

	"github.com/burnwatch/burnwatch/internal/slo"
)

// ErrNotFound is returned by Get for an unknown SLO id.
var ErrNotFound = errors.New("slo definition not found")

// Registry supplies SLO definitions to the engine.
type Registry interface {
	// Get returns the definition for one SLO id.
	Get(ctx context.Context, id string) (*slo.Definition, error)

	// ListActive returns every active definition across all tenants. This is
	// deliberately the one read that ignores tenant scoping: the engine must
	// see the full set to schedule evaluation fairly. Nothing else in the
	// engine reads cross-tenant.
	ListActive(ctx context.Context) ([]*slo.Definition, error)
}

// Reloader is implemented by registries that can refresh their definition
// set from the backing source. The scheduler reloads at the top of each tick
// so definition edits take effect without a restart.
type Reloader interface {
	Reload() error
}
