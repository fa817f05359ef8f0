package storage

import (
	"context"
	"time"

	"github.com/burnwatch/burnwatch/internal/eval"
)

// Snapshot is one evaluation tick distilled for persistence: append-only,
// never mutated after write. EvaluatedAt is truncated to the scheduler tick
// so a retried evaluation for the same tick carries the same key.
type Snapshot struct {
	SLOID       string
	TenantID    string
	EvaluatedAt time.Time

	FastBurnRate  eval.BurnRate
	SlowBurnRate  eval.BurnRate
	FastErrorRate float64
	SlowErrorRate float64

	Budget eval.Budget
	Fired  bool

	// InsufficientData marks a tick where a window lacked telemetry; the
	// burn rates above are unknown sentinels in that case.
	InsufficientData bool
}

// SnapshotStore persists the append-only evaluation history.
type SnapshotStore interface {
	// Record appends a snapshot. A snapshot already present under the same
	// (slo_id, evaluated_at) key is a no-op, not an error, so a crash-restart
	// replay of a tick cannot duplicate history.
	Record(ctx context.Context, snap Snapshot) error

	// Latest returns the most recent snapshot for an SLO, or nil if none.
	Latest(ctx context.Context, sloID string) (*Snapshot, error)

	// History returns snapshots in [from, to) ordered by evaluated_at
	// ascending, capped at limit rows (0 means the store's default cap).
	History(ctx context.Context, sloID string, from, to time.Time, limit int) ([]Snapshot, error)

	// Close releases the underlying storage.
	Close() error
}
