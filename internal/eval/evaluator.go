// Package eval turns telemetry query results into burn rates and budget
// figures for a single SLO. The math is pure; the evaluator adds the two
// window queries on top of it.
package eval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/burnwatch/burnwatch/internal/gateway"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// Evaluator performs one complete SLO evaluation: two window queries against
// the gateway, burn rates, and budget extrapolation.
type Evaluator struct {
	gateway      gateway.QueryGateway
	queryTimeout time.Duration
}

// NewEvaluator creates an evaluator over the given gateway. queryTimeout is
// the per-call deadline applied to each window query.
func NewEvaluator(gw gateway.QueryGateway, queryTimeout time.Duration) *Evaluator {
	return &Evaluator{gateway: gw, queryTimeout: queryTimeout}
}

// Evaluate queries both windows and computes burn rates and budget. The two
// window queries run concurrently; either failing fails the evaluation as a
// whole, leaving the caller's alert state untouched.
func (e *Evaluator) Evaluate(ctx context.Context, def *slo.Definition, asOf time.Time) (*Evaluation, error) {
	if def == nil {
		return nil, fmt.Errorf("nil definition")
	}

	fastWindow := def.FastWindowDuration()
	slowWindow := def.SlowWindowDuration()

	var fastRes, slowRes gateway.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fastRes, err = e.queryWindow(gctx, def, fastWindow, asOf)
		if err != nil {
			return fmt.Errorf("fast window (%s): %w", def.FastWindow, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		slowRes, err = e.queryWindow(gctx, def, slowWindow, asOf)
		if err != nil {
			return fmt.Errorf("slow window (%s): %w", def.SlowWindow, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slowBurn := ComputeBurnRate(slowRes, def.Target)

	return &Evaluation{
		Definition:  def,
		EvaluatedAt: asOf,
		Fast:        newWindowEvaluation(fastWindow, fastRes, def.Target),
		Slow:        newWindowEvaluation(slowWindow, slowRes, def.Target),
		Budget:      ComputeBudget(slowBurn, slowWindow, def.ComplianceWindow(), def.Target),
	}, nil
}

func (e *Evaluator) queryWindow(ctx context.Context, def *slo.Definition, window time.Duration, asOf time.Time) (gateway.Result, error) {
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	return e.gateway.Evaluate(ctx, gateway.Query{
		Expression: ErrorRatioExpression(def, window),
		Window:     window,
		AsOf:       asOf,
	})
}

func newWindowEvaluation(window time.Duration, res gateway.Result, target float64) WindowEvaluation {
	return WindowEvaluation{
		Window:           window,
		ErrorRatio:       res.Ratio,
		InsufficientData: res.InsufficientData,
		Samples:          res.Samples,
		BurnRate:         ComputeBurnRate(res, target),
		DataTimestamp:    res.DataTimestamp,
	}
}

// ErrorRatioExpression builds the backend expression for one window. With a
// direct errorRatioQuery the {{window}} placeholder is substituted;
// otherwise the ratio is built from the good/total selectors:
//
//	1 - (sum(increase(good[w:])) / sum(increase(total[w:])))
func ErrorRatioExpression(def *slo.Definition, window time.Duration) string {
	label := slo.FormatDuration(window)
	if def.ErrorRatioQuery != "" {
		return strings.ReplaceAll(def.ErrorRatioQuery, "{{window}}", label)
	}
	return fmt.Sprintf("1 - (sum(increase((%s)[%s:])) / sum(increase((%s)[%s:])))",
		def.GoodQuery, label, def.TotalQuery, label)
}
