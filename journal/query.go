package journal

import (
	"fmt"
	"strings"
)

// ListFills returns the fills of a run in booking order.
func (j *SQLite) ListFills(runID string) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, fill_id, time, amount, price, position_size, available_funds, realized_pnl
		FROM fills
		WHERE run_id = ?
		ORDER BY fill_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var rec FillRecord
		if err := rows.Scan(
			&rec.RunID,
			&rec.FillID,
			&rec.Time,
			&rec.Amount,
			&rec.Price,
			&rec.PositionSize,
			&rec.AvailableFunds,
			&rec.RealizedPnL,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquity returns the equity curve of a run ordered by time.
func (j *SQLite) ListEquity(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, price, equity, available_funds, position_size, drawdown, peak, trough
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var rec EquitySnapshot
		if err := rows.Scan(
			&rec.RunID,
			&rec.Time,
			&rec.Price,
			&rec.Equity,
			&rec.AvailableFunds,
			&rec.PositionSize,
			&rec.Drawdown,
			&rec.Peak,
			&rec.Trough,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListAborts returns the abort events of a run.
func (j *SQLite) ListAborts(runID string) ([]AbortRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, exit_mode, message
		FROM aborts
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AbortRecord
	for rows.Next() {
		var rec AbortRecord
		if err := rows.Scan(&rec.RunID, &rec.Time, &rec.ExitMode, &rec.Message); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRuns returns every run id that booked at least one fill or equity row.
func (j *SQLite) ListRuns() ([]string, error) {
	rows, err := j.db.Query(`
		SELECT run_id FROM fills
		UNION
		SELECT run_id FROM equity
		ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FormatFill renders a fill as one line for terminal output.
func FormatFill(f FillRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  amount=%s price=%s",
		f.Time.UTC().Format("2006-01-02T15:04:05Z"), f.FillID, f.Amount, f.Price)
	fmt.Fprintf(&b, "  position=%s funds=%s realized=%s",
		f.PositionSize, f.AvailableFunds.StringFixed(2), f.RealizedPnL.StringFixed(2))
	return b.String()
}
