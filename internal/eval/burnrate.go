package eval

import (
	"time"

	"github.com/burnwatch/burnwatch/internal/gateway"
)

// BurnRate is a burn-rate observation for one window. Unknown marks the
// insufficient-data sentinel: the window had no usable telemetry, so the
// value must not be compared against thresholds. Unknown is never "below
// threshold"; decision logic holds the prior alert state instead.
type BurnRate struct {
	Value   float64
	Unknown bool
}

// UnknownBurnRate returns the insufficient-data sentinel.
func UnknownBurnRate() BurnRate {
	return BurnRate{Unknown: true}
}

// ComputeBurnRate calculates the burn rate from an observed error ratio:
//
//	burn_rate = error_ratio / (1 - target)
//
// A burn rate of 1.0 consumes the budget exactly over the full compliance
// window. Targets making the denominator zero are rejected at registration
// and never reach this function.
func ComputeBurnRate(res gateway.Result, target float64) BurnRate {
	if res.InsufficientData {
		return UnknownBurnRate()
	}
	errorBudget := 1 - target
	if errorBudget <= 0 {
		return UnknownBurnRate()
	}
	return BurnRate{Value: res.Ratio / errorBudget}
}

// Budget describes error-budget consumption over the compliance window.
type Budget struct {
	RemainingPct     float64
	ConsumedPct      float64
	TotalMinutes     float64
	RemainingMinutes float64
	Unknown          bool
}

// ComputeBudget extrapolates budget consumption from the slow-window burn
// rate over the full compliance window:
//
//	consumed = min(slow_burn * slow_window / compliance_window, 1)
//
// The slow window is used because it is the more stable of the two; callers
// wanting a blend can substitute a different burn rate.
func ComputeBudget(slowBurn BurnRate, slowWindow, complianceWindow time.Duration, target float64) Budget {
	totalMinutes := complianceWindow.Minutes() * (1 - target)
	if slowBurn.Unknown || complianceWindow <= 0 {
		return Budget{TotalMinutes: totalMinutes, Unknown: true}
	}

	consumed := slowBurn.Value * (slowWindow.Minutes() / complianceWindow.Minutes())
	if consumed > 1 {
		consumed = 1
	}
	if consumed < 0 {
		consumed = 0
	}

	return Budget{
		RemainingPct:     (1 - consumed) * 100,
		ConsumedPct:      consumed * 100,
		TotalMinutes:     totalMinutes,
		RemainingMinutes: totalMinutes * (1 - consumed),
	}
}
