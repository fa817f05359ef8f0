package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Append-only burn rate snapshot log, one row per (SLO, tick).
-- Burn rate and budget columns are NULL when the tick had insufficient data.
CREATE TABLE IF NOT EXISTS burn_rate_snapshots (
	slo_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	evaluated_at TIMESTAMP NOT NULL,
	fast_burn_rate REAL,
	slow_burn_rate REAL,
	fast_error_rate REAL NOT NULL DEFAULT 0,
	slow_error_rate REAL NOT NULL DEFAULT 0,
	error_budget_remaining_pct REAL,
	error_budget_remaining_minutes REAL,
	error_budget_total_minutes REAL NOT NULL DEFAULT 0,
	fired BOOLEAN NOT NULL DEFAULT 0,
	insufficient_data BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (slo_id, evaluated_at)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_tenant ON burn_rate_snapshots(tenant_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_evaluated_at ON burn_rate_snapshots(evaluated_at DESC);
`
