package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/burnwatch/burnwatch/internal/policy"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// stateTracker owns the per-SLO alert states. All mutation happens under
// the tracker mutex, so snapshot reads taken while an evaluation is applying
// a decision observe either the old state or the new one, never a torn mix.
type stateTracker struct {
	mu     sync.Mutex
	states map[string]*policy.AlertState
	logger *zap.Logger
}

func newStateTracker(logger *zap.Logger) *stateTracker {
	return &stateTracker{
		states: make(map[string]*policy.AlertState),
		logger: logger,
	}
}

// ensure creates the alert state for a definition on first sight and resets
// it when the definition's fingerprint has changed. Called before the window
// queries so a definition change is adopted even when the evaluation fails.
func (t *stateTracker) ensure(def *slo.Definition, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(def, now)
}

func (t *stateTracker) ensureLocked(def *slo.Definition, now time.Time) *policy.AlertState {
	fp := def.Fingerprint()
	st, ok := t.states[def.ID]
	if !ok {
		st = policy.NewAlertState(fp, now)
		t.states[def.ID] = st
		return st
	}

	if st.Version != fp {
		t.logger.Info("definition changed, resetting alert state",
			zap.String("slo_id", def.ID),
			zap.String("previous_phase", string(st.Phase)))
		st.Reset(fp, now)
	}
	return st
}

// apply advances the alert state for a definition by one decision under the
// tracker lock and returns the transition plus a copy of the updated state.
func (t *stateTracker) apply(def *slo.Definition, d policy.Decision, now time.Time, minFireTicks int) (policy.Transition, policy.AlertState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.ensureLocked(def, now)
	tr := st.Apply(d, now, minFireTicks)
	return tr, *st
}

// snapshot returns a copy of the state for an SLO, if one exists.
func (t *stateTracker) snapshot(sloID string) (policy.AlertState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[sloID]
	if !ok {
		return policy.AlertState{}, false
	}
	return *st, true
}

// retain drops state for SLOs absent from the given id set, so deleted
// definitions do not leak state forever. A state handed out by acquire stays
// valid through its evaluation; only the map entry goes away.
func (t *stateTracker) retain(ids map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.states {
		if _, ok := ids[id]; !ok {
			delete(t.states, id)
		}
	}
}
