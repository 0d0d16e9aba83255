// Package storage persists finished runs in SQLite.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"equity-backtest/internal/backtest"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/model"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	elapsed_ns  INTEGER NOT NULL,
	ticks       INTEGER NOT NULL,
	truncated   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	final_value TEXT NOT NULL,
	total_cost  TEXT NOT NULL,
	history     TEXT NOT NULL,
	checksum    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	order_id     INTEGER NOT NULL,
	symbol       TEXT NOT NULL,
	direction    TEXT NOT NULL,
	quantity     TEXT NOT NULL,
	price        TEXT NOT NULL,
	value        TEXT NOT NULL,
	cost         TEXT NOT NULL,
	submitted_at INTEGER NOT NULL,
	filled_at    INTEGER NOT NULL,
	time         INTEGER NOT NULL,
	PRIMARY KEY (run_id, order_id)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// RunSummary is the row kept for each stored run.
type RunSummary struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Strategy   string          `json:"strategy"`
	StartedAt  time.Time       `json:"started_at"`
	Elapsed    time.Duration   `json:"elapsed"`
	Ticks      int             `json:"ticks"`
	Truncated  bool            `json:"truncated"`
	Error      string          `json:"error,omitempty"`
	FinalValue decimal.Decimal `json:"final_value"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// SQLiteStore stores run summaries, histories and trades.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath and applies the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult writes a run and its trades in one transaction. Saving the same
// run twice replaces it.
func (s *SQLiteStore) SaveResult(ctx context.Context, res *backtest.Result) error {
	history, err := json.Marshal(res.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	checksum := sha256.Sum256(history)
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, res.ID.String()); err != nil {
		return fmt.Errorf("failed to clear trades: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, name, strategy, started_at, elapsed_ns, ticks, truncated, error, final_value, total_cost, history, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID.String(), res.Name, res.Strategy, res.StartedAt.UnixNano(), int64(res.Elapsed),
		len(res.History), res.Truncated, errText, res.FinalValue().String(), res.TotalCost().String(),
		string(history), checksum[:])
	if err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trades
		(run_id, order_id, symbol, direction, quantity, price, value, cost, submitted_at, filled_at, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range res.Trades {
		_, err := stmt.ExecContext(ctx, res.ID.String(), int64(t.OrderID), t.Symbol, string(t.Direction),
			t.Quantity.String(), t.Price.String(), t.Value.String(), t.Cost.String(),
			int(t.SubmittedAt), int(t.FilledAt), t.Time.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to write trade %d: %w", t.OrderID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns stored runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, strategy, started_at, elapsed_ns, ticks, truncated,
		error, final_value, total_cost FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one run summary.
func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, strategy, started_at, elapsed_ns, ticks, truncated,
		error, final_value, total_cost FROM runs WHERE id = ?`, id.String())
	r, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, ErrRunNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (RunSummary, error) {
	var (
		r                RunSummary
		id               string
		started, elapsed int64
		final, totalCost string
	)
	if err := sc.Scan(&id, &r.Name, &r.Strategy, &started, &elapsed, &r.Ticks, &r.Truncated,
		&r.Error, &final, &totalCost); err != nil {
		return r, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return r, fmt.Errorf("corrupt run id %q: %w", id, err)
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.Elapsed = time.Duration(elapsed)
	if r.FinalValue, err = decimal.NewFromString(final); err != nil {
		return r, fmt.Errorf("corrupt final value for run %s: %w", id, err)
	}
	if r.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return r, fmt.Errorf("corrupt total cost for run %s: %w", id, err)
	}
	return r, nil
}

// LoadHistory returns a run's history after verifying its checksum.
func (s *SQLiteStore) LoadHistory(ctx context.Context, id uuid.UUID) (backtest.History, error) {
	var data string
	var stored []byte
	err := s.db.QueryRowContext(ctx, `SELECT history, checksum FROM runs WHERE id = ?`, id.String()).Scan(&data, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	sum := sha256.Sum256([]byte(data))
	if !bytes.Equal(sum[:], stored) {
		return nil, fmt.Errorf("history checksum mismatch for run %s", id)
	}
	var h backtest.History
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return h, nil
}

// LoadTrades returns a run's trades in fill order.
func (s *SQLiteStore) LoadTrades(ctx context.Context, id uuid.UUID) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, symbol, direction, quantity, price, value, cost,
		submitted_at, filled_at, time FROM trades WHERE run_id = ? ORDER BY filled_at, order_id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t                            model.Trade
			orderID, ts                  int64
			dir, qty, price, value, cost string
			submitted, filled            int
		)
		if err := rows.Scan(&orderID, &t.Symbol, &dir, &qty, &price, &value, &cost, &submitted, &filled, &ts); err != nil {
			return nil, err
		}
		t.OrderID = model.OrderID(orderID)
		t.Direction = model.Direction(dir)
		t.SubmittedAt = clock.Tick(submitted)
		t.FilledAt = clock.Tick(filled)
		t.Time = time.Unix(0, ts).UTC()
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&t.Quantity, qty}, {&t.Price, price}, {&t.Value, value}, {&t.Cost, cost}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("corrupt trade %d: %w", orderID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trades.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}
