package eval

import (
	"time"

	"github.com/burnwatch/burnwatch/internal/slo"
)

// WindowEvaluation holds the query result and derived burn rate for one
// window. Transient: it is distilled into a snapshot, never stored directly.
type WindowEvaluation struct {
	Window           time.Duration
	ErrorRatio       float64
	InsufficientData bool
	Samples          int
	BurnRate         BurnRate
	DataTimestamp    *time.Time
}

// Evaluation is the complete result of evaluating one SLO at one instant.
type Evaluation struct {
	Definition  *slo.Definition
	EvaluatedAt time.Time
	Fast        WindowEvaluation
	Slow        WindowEvaluation
	Budget      Budget
}

// InsufficientData reports whether either window lacked usable telemetry.
func (e *Evaluation) InsufficientData() bool {
	return e.Fast.InsufficientData || e.Slow.InsufficientData
}
