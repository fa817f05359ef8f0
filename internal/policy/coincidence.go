// Package policy decides, from a pair of window burn rates, whether an
// alert should fire, clear, or hold, and drives the per-SLO alert
// lifecycle off those decisions.
package policy

import "github.com/burnwatch/burnwatch/internal/eval"

// Decision is the tri-state outcome of one evaluation tick.
type Decision string

const (
	// DecisionFire: both windows are at or above their thresholds.
	DecisionFire Decision = "FIRE"
	// DecisionClear: both windows are strictly below their thresholds.
	DecisionClear Decision = "CLEAR"
	// DecisionHold: neither condition is met, or a window is unknown.
	DecisionHold Decision = "HOLD"
)

// Thresholds holds the burn-rate multipliers for the two windows.
type Thresholds struct {
	Fast float64
	Slow float64
}

// Coincide applies the two-window coincidence rule. The fast window alone is
// noisy and the slow window alone is too sluggish; requiring both catches
// genuine incidents while suppressing single-window blips. An unknown burn
// rate on either window suppresses both firing and clearing: insufficient
// data holds the prior state.
func Coincide(fast, slow eval.BurnRate, th Thresholds) Decision {
	if fast.Unknown || slow.Unknown {
		return DecisionHold
	}
	if fast.Value >= th.Fast && slow.Value >= th.Slow {
		return DecisionFire
	}
	if fast.Value < th.Fast && slow.Value < th.Slow {
		return DecisionClear
	}
	return DecisionHold
}
