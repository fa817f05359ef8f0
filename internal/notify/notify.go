// Package notify defines the notification dispatch contract. The engine is
// fire-and-forget here: a dispatcher failure is logged and never retried by
// the evaluation path.
package notify

import (
	"context"
	"time"
)

// Transition is the lifecycle change being announced.
type Transition string

const (
	TransitionFiring   Transition = "FIRING"
	TransitionResolved Transition = "RESOLVED"
)

// Event carries everything a notification transport needs to render a page
// or a resolution.
type Event struct {
	ID         string
	SLOID      string
	TenantID   string
	SLOName    string
	Service    string
	Transition Transition

	FastBurnRate       float64
	SlowBurnRate       float64
	BudgetRemainingPct float64

	OccurredAt time.Time
}

// Dispatcher delivers alert lifecycle events to a notification transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}
