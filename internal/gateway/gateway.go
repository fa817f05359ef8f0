// Package gateway defines the boundary to the telemetry backend: evaluate a
// time-series expression over a window and get back a scalar error ratio.
// Implementations wrap a concrete backend; they never retry internally,
// retry policy belongs to the scheduler.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Failure kinds surfaced by gateway implementations. Callers classify with
// errors.Is; Timeout and BackendUnavailable are retriable, MalformedExpression
// is not (it indicates a definition that slipped past registration checks).
var (
	ErrTimeout             = errors.New("telemetry query timed out")
	ErrBackendUnavailable  = errors.New("telemetry backend unavailable")
	ErrMalformedExpression = errors.New("malformed telemetry expression")
)

// Query is a single scalar evaluation request. Window and AsOf define the
// time range; Expression is the backend-native error-ratio expression with
// the window already applied.
type Query struct {
	Expression string
	Window     time.Duration
	AsOf       time.Time
}

// Result is the outcome of a successful query. Ratio is clamped to [0,1].
// InsufficientData is set when the backend reports zero or too few samples;
// the ratio is meaningless in that case and must not be read as "no errors".
type Result struct {
	Ratio            float64
	InsufficientData bool
	Samples          int
	DataTimestamp    *time.Time
}

// QueryGateway evaluates expressions against the telemetry backend.
type QueryGateway interface {
	Evaluate(ctx context.Context, q Query) (Result, error)
}

// Retriable reports whether a gateway failure is worth retrying.
func Retriable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBackendUnavailable)
}

// ClampRatio bounds a raw backend ratio to [0,1].
func ClampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
