package journal

// Decimal columns are TEXT so values round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	fill_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	amount TEXT NOT NULL,
	price TEXT NOT NULL,
	position_size TEXT NOT NULL,
	available_funds TEXT NOT NULL,
	realized_pnl TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	price TEXT NOT NULL,
	equity TEXT NOT NULL,
	available_funds TEXT NOT NULL,
	position_size TEXT NOT NULL,
	drawdown TEXT NOT NULL,
	peak TEXT NOT NULL,
	trough TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS aborts (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	exit_mode TEXT NOT NULL,
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, fill_id);
CREATE INDEX IF NOT EXISTS idx_equity_run_time ON equity(run_id, time);
`
