// Package sqlite implements the snapshot store on SQLite. Writes are
// idempotent on (slo_id, evaluated_at); rows are never updated or deleted.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/storage"
)

// defaultHistoryLimit caps History when the caller passes no limit.
const defaultHistoryLimit = 1000

// Store implements storage.SnapshotStore using SQLite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens (or creates) the database at dbPath and runs migrations
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Record appends a snapshot. A duplicate (slo_id, evaluated_at) key is a
// no-op: the first write for a tick wins and the replay is swallowed.
func (s *Store) Record(ctx context.Context, snap storage.Snapshot) error {
	query := `
		INSERT INTO burn_rate_snapshots (
			slo_id, tenant_id, evaluated_at,
			fast_burn_rate, slow_burn_rate, fast_error_rate, slow_error_rate,
			error_budget_remaining_pct, error_budget_remaining_minutes, error_budget_total_minutes,
			fired, insufficient_data
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slo_id, evaluated_at) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		snap.SLOID,
		snap.TenantID,
		snap.EvaluatedAt.UTC(),
		nullableBurnRate(snap.FastBurnRate),
		nullableBurnRate(snap.SlowBurnRate),
		snap.FastErrorRate,
		snap.SlowErrorRate,
		nullableBudgetPct(snap.Budget),
		nullableBudgetMinutes(snap.Budget),
		snap.Budget.TotalMinutes,
		snap.Fired,
		snap.InsufficientData,
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("snapshot already recorded for tick",
			zap.String("slo_id", snap.SLOID),
			zap.Time("evaluated_at", snap.EvaluatedAt))
	}
	return nil
}

// Latest returns the most recent snapshot for an SLO, or nil if none exists
func (s *Store) Latest(ctx context.Context, sloID string) (*storage.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		FROM burn_rate_snapshots
		WHERE slo_id = ?
		ORDER BY evaluated_at DESC
		LIMIT 1
	`, sloID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return snap, nil
}

// History returns snapshots in [from, to) ordered by evaluated_at ascending
func (s *Store) History(ctx context.Context, sloID string, from, to time.Time, limit int) ([]storage.Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM burn_rate_snapshots
		WHERE slo_id = ? AND evaluated_at >= ? AND evaluated_at < ?
		ORDER BY evaluated_at ASC
		LIMIT ?
	`, sloID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var snaps []storage.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `
	SELECT slo_id, tenant_id, evaluated_at,
		fast_burn_rate, slow_burn_rate, fast_error_rate, slow_error_rate,
		error_budget_remaining_pct, error_budget_remaining_minutes, error_budget_total_minutes,
		fired, insufficient_data
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*storage.Snapshot, error) {
	var snap storage.Snapshot
	var fastBurn, slowBurn, budgetPct, budgetMin sql.NullFloat64

	err := row.Scan(
		&snap.SLOID,
		&snap.TenantID,
		&snap.EvaluatedAt,
		&fastBurn,
		&slowBurn,
		&snap.FastErrorRate,
		&snap.SlowErrorRate,
		&budgetPct,
		&budgetMin,
		&snap.Budget.TotalMinutes,
		&snap.Fired,
		&snap.InsufficientData,
	)
	if err != nil {
		return nil, err
	}

	snap.FastBurnRate = burnRateFromNullable(fastBurn)
	snap.SlowBurnRate = burnRateFromNullable(slowBurn)
	if budgetPct.Valid {
		snap.Budget.RemainingPct = budgetPct.Float64
		snap.Budget.ConsumedPct = 100 - budgetPct.Float64
	} else {
		snap.Budget.Unknown = true
	}
	if budgetMin.Valid {
		snap.Budget.RemainingMinutes = budgetMin.Float64
	}
	snap.EvaluatedAt = snap.EvaluatedAt.UTC()
	return &snap, nil
}

func nullableBurnRate(br eval.BurnRate) sql.NullFloat64 {
	if br.Unknown {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: br.Value, Valid: true}
}

func burnRateFromNullable(v sql.NullFloat64) eval.BurnRate {
	if !v.Valid {
		return eval.UnknownBurnRate()
	}
	return eval.BurnRate{Value: v.Float64}
}

func nullableBudgetPct(b eval.Budget) sql.NullFloat64 {
	if b.Unknown {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: b.RemainingPct, Valid: true}
}

func nullableBudgetMinutes(b eval.Budget) sql.NullFloat64 {
	if b.Unknown {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: b.RemainingMinutes, Valid: true}
}
