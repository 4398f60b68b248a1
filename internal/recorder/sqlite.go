package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"PaperDesk/internal/model"
)

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so report queries can read while cycles write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			direction    TEXT NOT NULL,
			opening      INTEGER NOT NULL,
			size         REAL,
			price        REAL,
			fee          REAL,
			realized_pnl REAL,
			reason       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account_ts ON trades(account_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS account_snapshots (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id        TEXT NOT NULL,
			timestamp         INTEGER NOT NULL,
			initial_balance   REAL,
			balance           REAL,
			available_balance REAL,
			equity            REAL,
			realized_pnl      REAL,
			unrealized_pnl    REAL,
			trade_count       INTEGER,
			positions         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_account_ts ON account_snapshots(account_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id    TEXT NOT NULL,
			timestamp     INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			source        TEXT,
			cache_hit     INTEGER,
			action        TEXT,
			confidence    REAL,
			position_size REAL,
			outcome       TEXT,
			note          TEXT,
			tokens        INTEGER,
			cost          REAL,
			latency_ms    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_account_ts ON decisions(account_id, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLiteRecorder) RecordTrade(t model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR IGNORE INTO trades
		(id, account_id, timestamp, symbol, direction, opening, size, price, fee, realized_pnl, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.AccountID, t.Timestamp.UnixMilli(), t.Symbol, string(t.Direction), boolInt(t.Opening),
		t.Size, t.Price, t.Fee, t.RealizedPnL, t.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecordSnapshot(s model.AccountSnapshot) error {
	positions, err := json.Marshal(s.Positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO account_snapshots
		(account_id, timestamp, initial_balance, balance, available_balance, equity,
		 realized_pnl, unrealized_pnl, trade_count, positions)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.AccountID, s.Timestamp.UnixMilli(), s.InitialBalance, s.Balance, s.AvailableBalance, s.Equity,
		s.RealizedPnL, s.UnrealizedPnL, s.TradeCount, string(positions),
	)
	return err
}

func (r *SQLiteRecorder) RecordDecision(d *DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO decisions
		(account_id, timestamp, symbol, source, cache_hit, action, confidence, position_size,
		 outcome, note, tokens, cost, latency_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.AccountID, ts.UnixMilli(), d.Symbol, d.Source, boolInt(d.CacheHit), string(d.Action),
		d.Confidence, d.PositionSize, d.Outcome, d.Note, d.Tokens, d.Cost, d.Latency.Milliseconds(),
	)
	return err
}

// RecentTrades returns up to limit trades, newest first. An empty account
// id returns trades of every account.
func (r *SQLiteRecorder) RecentTrades(accountID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, account_id, timestamp, symbol, direction, opening, size, price, fee, realized_pnl, reason
		FROM trades`
	args := []any{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t         model.Trade
			ts        int64
			direction string
			opening   int
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &ts, &t.Symbol, &direction, &opening,
			&t.Size, &t.Price, &t.Fee, &t.RealizedPnL, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Timestamp = time.UnixMilli(ts)
		t.Direction = model.Direction(direction)
		t.Opening = opening == 1
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
