package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(fill_id, run_id, time, amount, price, position_size, available_funds, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FillID, f.RunID, f.Time, f.Amount, f.Price,
		f.PositionSize, f.AvailableFunds, f.RealizedPnL,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, price, equity, available_funds, position_size, drawdown, peak, trough)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Price, e.Equity, e.AvailableFunds,
		e.PositionSize, e.Drawdown, e.Peak, e.Trough,
	)
	return err
}

func (j *SQLite) RecordAbort(a AbortRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO aborts (run_id, time, exit_mode, message)
		VALUES (?, ?, ?, ?)`,
		a.RunID, a.Time, a.ExitMode, a.Message,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
