package policy

import "time"

// Phase is the alert lifecycle phase for one SLO.
type Phase string

const (
	PhaseOK      Phase = "OK"
	PhasePending Phase = "PENDING"
	PhaseFiring  Phase = "FIRING"
)

// Transition is an externally visible lifecycle change produced by applying
// a decision. Only Firing and Resolved carry side effects (notification
// dispatch); everything else is internal.
type Transition string

const (
	TransitionNone     Transition = ""
	TransitionFiring   Transition = "FIRING"
	TransitionResolved Transition = "RESOLVED"
)

// AlertState is the per-SLO lifecycle state. It is mutated exclusively
// through Apply and Reset, and only ever by the evaluation that currently
// owns the SLO, so no internal locking is needed.
type AlertState struct {
	Phase                 Phase
	Since                 time.Time
	ConsecutiveFireTicks  int
	ConsecutiveClearTicks int

	// Version is the definition fingerprint the state was built under. A
	// changed fingerprint discards the state rather than carrying it into
	// changed semantics.
	Version string
}

// NewAlertState returns the initial OK state for a definition version.
func NewAlertState(version string, now time.Time) *AlertState {
	return &AlertState{
		Phase:   PhaseOK,
		Since:   now,
		Version: version,
	}
}

// Reset returns the state to OK and clears counters, adopting a new
// definition version.
func (s *AlertState) Reset(version string, now time.Time) {
	s.Phase = PhaseOK
	s.Since = now
	s.ConsecutiveFireTicks = 0
	s.ConsecutiveClearTicks = 0
	s.Version = version
}

// Apply advances the state machine by one tick. minFireTicks is the number
// of consecutive FIRE decisions required to escalate PENDING to FIRING
// (entry debounce). Recovery is deliberately asymmetric: a single CLEAR
// while FIRING resolves immediately, because a burn-rate alert that has
// genuinely stopped burning should stop paging at once.
func (s *AlertState) Apply(d Decision, now time.Time, minFireTicks int) Transition {
	if minFireTicks < 1 {
		minFireTicks = 1
	}

	switch s.Phase {
	case PhaseOK:
		switch d {
		case DecisionFire:
			s.Phase = PhasePending
			s.Since = now
			s.ConsecutiveFireTicks = 1
			s.ConsecutiveClearTicks = 0
			if s.ConsecutiveFireTicks >= minFireTicks {
				s.Phase = PhaseFiring
				s.Since = now
				return TransitionFiring
			}
		case DecisionClear:
			s.ConsecutiveClearTicks++
			s.ConsecutiveFireTicks = 0
		}

	case PhasePending:
		switch d {
		case DecisionFire:
			s.ConsecutiveFireTicks++
			if s.ConsecutiveFireTicks >= minFireTicks {
				s.Phase = PhaseFiring
				s.Since = now
				s.ConsecutiveClearTicks = 0
				return TransitionFiring
			}
		default:
			// A single non-FIRE tick resets the debounce entirely
			s.Phase = PhaseOK
			s.Since = now
			s.ConsecutiveFireTicks = 0
			s.ConsecutiveClearTicks = 0
		}

	case PhaseFiring:
		switch d {
		case DecisionClear:
			s.Phase = PhaseOK
			s.Since = now
			s.ConsecutiveFireTicks = 0
			s.ConsecutiveClearTicks = 1
			return TransitionResolved
		case DecisionFire:
			s.ConsecutiveFireTicks++
		}
	}

	return TransitionNone
}
