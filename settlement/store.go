/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the storage contract the engine depends on. The SQLite store
  implements both interfaces; tests use the in-memory implementation in
  settlement/store.

CONTRACT NOTES:
  - Exists must be answered against a store that also ENFORCES uniqueness
    of (kind, period) with a unique constraint. The read is an optimization;
    the constraint is the guarantee. Two concurrent triggers may both pass
    Exists, in which case the loser's Commit must surface ErrAlreadySettled.
  - Commit is one atomic unit of work: settlement header with the final
    total, all items, and the balance decrements for exactly the listed
    drivers. A partial commit must never be observable.
*/
package settlement

import "context"

// WalletStore exposes the wallet reads and the single write the engine needs.
// Balance increases are the earning process's concern, not the engine's.
type WalletStore interface {
	// EligibleWallets returns every wallet whose balance for the given kind
	// is strictly positive, with the balance value read at call time.
	EligibleWallets(ctx context.Context, kind Kind) ([]Wallet, error)
}

// SettlementStore persists settlement records and enforces the idempotency
// key (kind, periodStart, periodEnd).
type SettlementStore interface {
	// Exists reports whether a settlement already occupies (kind, period).
	Exists(ctx context.Context, kind Kind, period Period) (bool, error)

	// Commit atomically inserts the settlement with its final total and
	// items, and decrements each listed driver's relevant balance by the
	// item amount. Returns ErrAlreadySettled if the uniqueness slot was
	// taken by a concurrent commit, ErrBalanceChanged if a wallet no longer
	// covers its item amount. On any error nothing is persisted.
	Commit(ctx context.Context, s Settlement) error
}

// Store is the full persistence surface required to run the engine.
type Store interface {
	WalletStore
	SettlementStore
}
