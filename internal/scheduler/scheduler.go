// Package scheduler drives periodic multi-window burn-rate evaluation
// across all active SLOs: bounded-concurrency fan-out per tick, per-SLO
// serialization, snapshot persistence, and alert lifecycle dispatch.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/gateway"
	"github.com/burnwatch/burnwatch/internal/metrics"
	"github.com/burnwatch/burnwatch/internal/notify"
	"github.com/burnwatch/burnwatch/internal/policy"
	"github.com/burnwatch/burnwatch/internal/registry"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
)

// Config holds scheduler timing and concurrency settings. All values come
// from the external configuration surface; the only engine-internal defaults
// are the Google SRE ones living on the definitions themselves.
type Config struct {
	// Interval between evaluation ticks.
	Interval time.Duration

	// Workers bounds concurrent SLO evaluations per tick, so one tenant's
	// slow backend cannot starve the rest.
	Workers int64

	// MinFireTicks is the entry debounce: consecutive FIRE decisions
	// required before PENDING escalates to FIRING.
	MinFireTicks int

	// RetryCount and RetryDelay govern retries of retriable gateway
	// failures. Retry policy lives here, never inside the gateway.
	RetryCount int
	RetryDelay time.Duration

	// ShutdownGrace bounds how long Stop waits for in-flight evaluations.
	ShutdownGrace time.Duration
}

// Scheduler owns the evaluation loop. One instance runs per process; all
// mutable evaluation state (alert states, in-flight set) hangs off it rather
// than off package globals.
type Scheduler struct {
	cfg        Config
	registry   registry.Registry
	evaluator  *eval.Evaluator
	store      storage.SnapshotStore
	dispatcher notify.Dispatcher
	logger     *zap.Logger

	sem    *semaphore.Weighted
	states *stateTracker

	// inflight holds the ids of SLOs currently mid-evaluation. An SLO in
	// this set is skipped by later ticks: ticks for one SLO never overlap,
	// so its state machine sees results strictly in temporal order.
	inflight sync.Map

	tickActive atomic.Bool

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler. Collaborators are injected; the scheduler never
// constructs its own backends.
func New(cfg Config, reg registry.Registry, evaluator *eval.Evaluator, store storage.SnapshotStore, dispatcher notify.Dispatcher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		registry:   reg,
		evaluator:  evaluator,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		sem:        semaphore.NewWeighted(cfg.Workers),
		states:     newStateTracker(logger),
	}
}

// Start begins the periodic evaluation loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int64("workers", s.cfg.Workers))
	return nil
}

// Stop halts the tick loop and waits, bounded by the grace period, for
// in-flight evaluations to finish. Evaluations still running when the grace
// period elapses are abandoned; their results are discarded, not partially
// persisted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	loopDone := s.loopDone
	s.mu.Unlock()

	cancel()
	<-loopDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("shutdown grace period elapsed with evaluations still in flight",
			zap.Duration("grace", s.cfg.ShutdownGrace))
	}
}

// StateOf returns a copy of the current alert state for an SLO.
func (s *Scheduler) StateOf(sloID string) (policy.AlertState, bool) {
	return s.states.snapshot(sloID)
}

// run is the tick loop. The first tick fires immediately.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.launchTick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.launchTick(ctx, now)
		}
	}
}

// launchTick starts a tick unless the previous one is still running, in
// which case this tick is skipped: ticks never overlap, preserving per-SLO
// ordering even when the backend is slower than the interval.
func (s *Scheduler) launchTick(ctx context.Context, now time.Time) {
	if !s.tickActive.CompareAndSwap(false, true) {
		s.logger.Warn("tick overrun: previous tick still running, skipping this tick",
			zap.Duration("interval", s.cfg.Interval))
		metrics.IncTickSkipped()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.tickActive.Store(false)
		s.Tick(ctx, now)
	}()
}

// Tick evaluates every active SLO once. Exported so operators (and tests)
// can force an immediate pass outside the periodic loop.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	start := time.Now()

	// Pick up definition edits before listing. A failed reload keeps the
	// previous set; the tick still runs.
	if r, ok := s.registry.(registry.Reloader); ok {
		if err := r.Reload(); err != nil {
			s.logger.Warn("definition reload failed, keeping previous set", zap.Error(err))
		}
	}

	defs, err := s.registry.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active definitions, skipping tick", zap.Error(err))
		return
	}
	metrics.SetActiveSLOs(len(defs))

	active := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		active[def.ID] = struct{}{}
	}
	s.states.retain(active)

	tickStamp := now.UTC().Truncate(s.cfg.Interval)

	var wg sync.WaitGroup
	for _, def := range defs {
		if _, busy := s.inflight.LoadOrStore(def.ID, struct{}{}); busy {
			s.logger.Warn("previous evaluation still in flight, skipping",
				zap.String("slo_id", def.ID))
			metrics.ObserveEvaluation(0, metrics.OutcomeSkipped)
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Shutting down; nothing more is scheduled this tick.
			s.inflight.Delete(def.ID)
			break
		}

		wg.Add(1)
		go func(def *slo.Definition) {
			defer wg.Done()
			defer s.sem.Release(1)
			defer s.inflight.Delete(def.ID)
			s.evaluateOne(ctx, def, tickStamp, now)
		}(def)
	}
	wg.Wait()

	elapsed := time.Since(start)
	metrics.ObserveTick(elapsed)
	if elapsed > s.cfg.Interval {
		s.logger.Warn("tick took longer than the evaluation interval",
			zap.Duration("elapsed", elapsed),
			zap.Duration("interval", s.cfg.Interval))
	}
}

// evaluateOne runs the full pipeline for a single SLO: query both windows,
// combine burn rates, advance the alert state machine, persist the snapshot,
// and dispatch on lifecycle transitions. A failure here is isolated to this
// SLO and this tick; the prior alert state is left untouched.
func (s *Scheduler) evaluateOne(ctx context.Context, def *slo.Definition, tickStamp, now time.Time) {
	start := time.Now()

	s.states.ensure(def, now)

	evaluation, err := s.evaluateWithRetry(ctx, def, now)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("evaluation failed, holding alert state",
			zap.String("slo_id", def.ID),
			zap.String("tenant_id", def.TenantID),
			zap.Error(err))
		metrics.ObserveEvaluation(time.Since(start), metrics.OutcomeError)
		return
	}

	// Shutdown between query and commit: discard rather than persist a
	// partially applied tick.
	if ctx.Err() != nil {
		return
	}

	decision := policy.Coincide(evaluation.Fast.BurnRate, evaluation.Slow.BurnRate, policy.Thresholds{
		Fast: def.FastBurnThreshold,
		Slow: def.SlowBurnThreshold,
	})
	transition, state := s.states.apply(def, decision, now, s.cfg.MinFireTicks)

	snap := buildSnapshot(def, evaluation, decision, tickStamp)
	if err := s.store.Record(ctx, snap); err != nil {
		s.logger.Error("failed to record snapshot",
			zap.String("slo_id", def.ID),
			zap.Error(err))
	}

	if transition != policy.TransitionNone {
		s.dispatch(ctx, def, evaluation, transition, now)
	}

	s.logger.Debug("evaluated slo",
		zap.String("slo_id", def.ID),
		zap.String("decision", string(decision)),
		zap.String("phase", string(state.Phase)))
	metrics.ObserveEvaluation(time.Since(start), metrics.OutcomeSuccess)
}

// evaluateWithRetry retries retriable gateway failures (timeouts, backend
// outages) with a fixed delay. Malformed expressions are not retried.
func (s *Scheduler) evaluateWithRetry(ctx context.Context, def *slo.Definition, now time.Time) (*eval.Evaluation, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		evaluation, err := s.evaluator.Evaluate(ctx, def, now)
		if err == nil {
			return evaluation, nil
		}
		lastErr = err
		if !gateway.Retriable(err) {
			break
		}
	}
	return nil, lastErr
}

// dispatch sends a lifecycle notification. Fire-and-forget: a dispatcher
// failure is logged here and never retried.
func (s *Scheduler) dispatch(ctx context.Context, def *slo.Definition, evaluation *eval.Evaluation, transition policy.Transition, now time.Time) {
	ev := notify.Event{
		ID:                 uuid.NewString(),
		SLOID:              def.ID,
		TenantID:           def.TenantID,
		SLOName:            def.Name,
		Service:            def.Service,
		Transition:         notify.Transition(transition),
		FastBurnRate:       evaluation.Fast.BurnRate.Value,
		SlowBurnRate:       evaluation.Slow.BurnRate.Value,
		BudgetRemainingPct: evaluation.Budget.RemainingPct,
		OccurredAt:         now,
	}

	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		s.logger.Error("notification dispatch failed",
			zap.String("slo_id", def.ID),
			zap.String("transition", string(transition)),
			zap.Error(err))
		return
	}
	metrics.IncDispatch(string(transition))
}

func buildSnapshot(def *slo.Definition, evaluation *eval.Evaluation, decision policy.Decision, tickStamp time.Time) storage.Snapshot {
	return storage.Snapshot{
		SLOID:            def.ID,
		TenantID:         def.TenantID,
		EvaluatedAt:      tickStamp,
		FastBurnRate:     evaluation.Fast.BurnRate,
		SlowBurnRate:     evaluation.Slow.BurnRate,
		FastErrorRate:    evaluation.Fast.ErrorRatio,
		SlowErrorRate:    evaluation.Slow.ErrorRatio,
		Budget:           evaluation.Budget,
		Fired:            decision == policy.DecisionFire,
		InsufficientData: evaluation.InsufficientData(),
	}
}
