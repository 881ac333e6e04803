/*
Package sqlite provides the SQLite-backed implementation of the settlement
storage interfaces.

PURPOSE:
  Implements settlement.Store (wallet reads, idempotency guard, atomic
  commit) plus the wallet-credit and reporting queries the HTTP layer
  needs. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

IDEMPOTENCY ENFORCEMENT:
  The unique index on settlements(kind, period_start, period_end) is the
  real guarantee behind the engine's Exists() check. A second committer for
  the same period fails the insert with SQLITE_CONSTRAINT, which this
  package maps onto settlement.ErrAlreadySettled.

ATOMIC COMMIT:
  Commit runs header insert, item inserts, and balance decrements in one
  database transaction. Each wallet is re-read inside the transaction and
  decremented by the amount captured at aggregation time, so a credit that
  landed between aggregation and commit survives the reset instead of
  being silently wiped.

CONCURRENCY:
  Writers are serialized with a sync.Mutex on top of SQLite's WAL
  single-writer model. With PostgreSQL, row locks (SELECT ... FOR UPDATE)
  would take that role.

MONEY:
  Balances and amounts are shopspring decimals stored as TEXT; SQL
  comparisons go through CAST(... AS NUMERIC), arithmetic stays in Go.

USAGE:
  store, err := sqlite.New("./data/settlements.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := settlement.NewEngine(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fleetpay/settlement-engine/settlement"
)

// Store implements settlement.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Wallets: one row per driver, two independent running balances.
	-- Increased by the earning process, decremented only inside Commit.
	CREATE TABLE IF NOT EXISTS wallets (
		driver_id TEXT PRIMARY KEY,
		batta_balance TEXT NOT NULL DEFAULT '0',
		salary_balance TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	-- Settlements: immutable payout records.
	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		settled_at TEXT NOT NULL
	);

	-- CRITICAL: the idempotency key. At most one settlement per
	-- (kind, period); concurrent committers lose here, not in app code.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_kind_period
		ON settlements(kind, period_start, period_end);

	CREATE INDEX IF NOT EXISTS idx_settlements_settled_at
		ON settlements(settled_at DESC);

	-- Settlement items: owned by their settlement, no independent lifecycle.
	CREATE TABLE IF NOT EXISTS settlement_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		settlement_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		UNIQUE(settlement_id, driver_id),
		FOREIGN KEY (settlement_id) REFERENCES settlements(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_settlement_items_settlement
		ON settlement_items(settlement_id);
	CREATE INDEX IF NOT EXISTS idx_settlement_items_driver
		ON settlement_items(driver_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WALLET STORE (settlement.WalletStore interface)
// =============================================================================

// EligibleWallets returns wallets whose balance for the kind is strictly
// positive, ordered by driver for deterministic item lists.
func (s *Store) EligibleWallets(ctx context.Context, kind settlement.Kind) ([]settlement.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT driver_id, batta_balance, salary_balance, updated_at
		FROM wallets
		WHERE CAST(%s AS NUMERIC) > 0
		ORDER BY driver_id ASC
	`, balanceColumn(kind))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible wallets: %w", err)
	}
	defer rows.Close()

	var wallets []settlement.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// CreditWallet increases one balance field, creating the wallet row if it
// does not exist yet. This is the write path of the external earning
// process; the engine itself never calls it.
func (s *Store) CreditWallet(ctx context.Context, driverID settlement.DriverID, kind settlement.Kind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (driver_id, updated_at) VALUES (?, ?)
		 ON CONFLICT(driver_id) DO NOTHING`,
		driverID, now,
	); err != nil {
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}

	balance, err := readBalanceTx(ctx, tx, driverID, kind)
	if err != nil {
		return err
	}

	col := balanceColumn(kind)
	if _, err := tx.ExecContext(ctx,
		"UPDATE wallets SET "+col+" = ?, updated_at = ? WHERE driver_id = ?",
		balance.Add(amount).String(), now, driverID,
	); err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	return tx.Commit()
}

// GetWallet returns a driver's wallet, or nil if none exists.
func (s *Store) GetWallet(ctx context.Context, driverID settlement.DriverID) (*settlement.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT driver_id, batta_balance, salary_balance, updated_at FROM wallets WHERE driver_id = ?",
		driverID,
	)

	w, err := scanWallet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWallets returns all wallets ordered by driver.
func (s *Store) ListWallets(ctx context.Context) ([]settlement.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT driver_id, batta_balance, salary_balance, updated_at FROM wallets ORDER BY driver_id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []settlement.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// =============================================================================
// SETTLEMENT STORE (settlement.SettlementStore interface)
// =============================================================================

// Exists reports whether a settlement occupies (kind, period). The unique
// index performs the same lookup, so this is a single indexed read.
func (s *Store) Exists(ctx context.Context, kind settlement.Kind, period settlement.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM settlements WHERE kind = ? AND period_start = ? AND period_end = ?",
		kind, period.Start.Format(settlement.DateLayout), period.End.Format(settlement.DateLayout),
	).Scan(&count)

	return count > 0, err
}

// Commit performs the atomic state transition: settlement header with the
// final total, all items, and the balance decrements for exactly the
// listed drivers. On any error the transaction rolls back and nothing is
// persisted.
func (s *Store) Commit(ctx context.Context, st settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Header first: if a concurrent trigger already settled this period the
	// unique index rejects us here, before any wallet is touched.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlements (id, kind, period_start, period_end, total_amount, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID,
		st.Kind,
		st.Period.Start.Format(settlement.DateLayout),
		st.Period.End.Format(settlement.DateLayout),
		st.TotalAmount.String(),
		st.SettledAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return settlement.ErrAlreadySettled
		}
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	settledAt := st.SettledAt.Format(time.RFC3339)
	for _, it := range st.Items {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO settlement_items (settlement_id, driver_id, amount) VALUES (?, ?, ?)",
			st.ID, it.DriverID, it.Amount.String(),
		); err != nil {
			return fmt.Errorf("failed to insert settlement item for %s: %w", it.DriverID, err)
		}

		// Decrement by the aggregated amount instead of overwriting with
		// zero: a credit that raced in since aggregation is preserved.
		balance, err := readBalanceTx(ctx, tx, it.DriverID, st.Kind)
		if err != nil {
			return err
		}
		if balance.LessThan(it.Amount) {
			return fmt.Errorf("%w: driver %s has %s, settling %s",
				settlement.ErrBalanceChanged, it.DriverID, balance, it.Amount)
		}

		col := balanceColumn(st.Kind)
		if _, err := tx.ExecContext(ctx,
			"UPDATE wallets SET "+col+" = ?, updated_at = ? WHERE driver_id = ?",
			balance.Sub(it.Amount).String(), settledAt, it.DriverID,
		); err != nil {
			return fmt.Errorf("failed to reset balance for %s: %w", it.DriverID, err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// REPORTING QUERIES (for the API layer)
// =============================================================================

// GetSettlement returns a settlement with its items, or nil if not found.
func (s *Store) GetSettlement(ctx context.Context, id string) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, kind, period_start, period_end, total_amount, settled_at FROM settlements WHERE id = ?",
		id,
	)

	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT driver_id, amount FROM settlement_items WHERE settlement_id = ? ORDER BY driver_id ASC",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var driverID, amount string
		if err := rows.Scan(&driverID, &amount); err != nil {
			return nil, err
		}
		st.Items = append(st.Items, settlement.Item{
			DriverID: settlement.DriverID(driverID),
			Amount:   mustDecimal(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListSettlements returns settlements newest first, optionally filtered by
// kind. Items are not loaded; use GetSettlement for the full record.
func (s *Store) ListSettlements(ctx context.Context, kind settlement.Kind) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, kind, period_start, period_end, total_amount, settled_at FROM settlements"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY settled_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []settlement.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}
	return settlements, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func balanceColumn(kind settlement.Kind) string {
	if kind == settlement.KindLongCycle {
		return "salary_balance"
	}
	return "batta_balance"
}

func readBalanceTx(ctx context.Context, tx *sql.Tx, driverID settlement.DriverID, kind settlement.Kind) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		"SELECT "+balanceColumn(kind)+" FROM wallets WHERE driver_id = ?",
		driverID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("%w: driver %s has no wallet", settlement.ErrBalanceChanged, driverID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance for %s: %w", driverID, err)
	}
	return mustDecimal(raw), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (settlement.Wallet, error) {
	var (
		w         settlement.Wallet
		batta     string
		salary    string
		updatedAt string
	)
	if err := row.Scan(&w.DriverID, &batta, &salary, &updatedAt); err != nil {
		return w, err
	}
	w.BattaBalance = mustDecimal(batta)
	w.SalaryBalance = mustDecimal(salary)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return w, nil
}

func scanSettlement(row scanner) (settlement.Settlement, error) {
	var (
		st          settlement.Settlement
		periodStart string
		periodEnd   string
		total       string
		settledAt   string
	)
	if err := row.Scan(&st.ID, &st.Kind, &periodStart, &periodEnd, &total, &settledAt); err != nil {
		return st, err
	}
	st.Period.Start, _ = time.Parse(settlement.DateLayout, periodStart)
	st.Period.End, _ = time.Parse(settlement.DateLayout, periodEnd)
	st.TotalAmount = mustDecimal(total)
	st.SettledAt, _ = time.Parse(time.RFC3339, settledAt)
	return st, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
