/*
Package settlement contains the core settlement engine for driver payouts.

PURPOSE:
  Drivers accumulate two independent running balances in their wallet: a
  short-cycle allowance (batta) settled weekly and a long-cycle salary
  balance settled monthly. This package turns an accumulated balance into
  an immutable settlement record and drains the settled amount from the
  source balance, exactly once per period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: which balance is settled and how its period is calculated
  - Wallet: a driver's two running balances
  - Settlement / Item: the immutable payout record and its per-driver lines

DESIGN PRINCIPLES:
  1. Idempotency: at most one settlement per (kind, period) - enforced by
     a storage-level unique constraint, not an application check
  2. Precision: uses decimal.Decimal for money, never float64
  3. Atomicity: header, items, and balance resets commit together or not
     at all

SEE ALSO:
  - period.go: Period calculation per kind
  - engine.go: End-to-end run orchestration
  - store.go: Persistence interfaces
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND - The settlement flavor descriptor
// =============================================================================

// Kind identifies one of the two settlement flavors. The two flavors differ
// only in period rule and which wallet balance they drain, so the engine is
// parameterized by Kind instead of being duplicated per flavor.
type Kind string

const (
	// KindShortCycle settles the batta allowance over an ISO week (Mon-Sun).
	KindShortCycle Kind = "short_cycle"

	// KindLongCycle settles the salary balance over a calendar month.
	KindLongCycle Kind = "long_cycle"
)

// Valid reports whether k is a known settlement kind.
func (k Kind) Valid() bool {
	return k == KindShortCycle || k == KindLongCycle
}

// Label returns the human-facing name used in API messages.
func (k Kind) Label() string {
	switch k {
	case KindShortCycle:
		return "Weekly"
	case KindLongCycle:
		return "Monthly"
	default:
		return string(k)
	}
}

// Kinds returns all settlement kinds, in trigger order.
func Kinds() []Kind {
	return []Kind{KindShortCycle, KindLongCycle}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DriverID string

// =============================================================================
// WALLET - A driver's running balances
// =============================================================================

// Wallet holds the two independently accumulated balances for one driver.
// Balances are increased by the earning process (outside this package) and
// reset only by the settlement committer. Wallets are never deleted.
type Wallet struct {
	DriverID      DriverID
	BattaBalance  decimal.Decimal // drained by short_cycle settlements
	SalaryBalance decimal.Decimal // drained by long_cycle settlements
	UpdatedAt     time.Time
}

// BalanceFor returns the balance field relevant to the given kind.
func (w Wallet) BalanceFor(kind Kind) decimal.Decimal {
	if kind == KindLongCycle {
		return w.SalaryBalance
	}
	return w.BattaBalance
}

// =============================================================================
// SETTLEMENT - Immutable payout record
// =============================================================================

// Settlement is the committed payout record for one (kind, period). Once it
// has items it is immutable; TotalAmount is written exactly once at commit.
type Settlement struct {
	ID          string
	Kind        Kind
	Period      Period
	TotalAmount decimal.Decimal
	SettledAt   time.Time
	Items       []Item
}

// Item is one driver's contribution within a settlement, frozen at commit
// time. Amount is the wallet balance read during aggregation, always > 0.
type Item struct {
	DriverID DriverID
	Amount   decimal.Decimal
}

// SumItems returns the total of the item amounts.
func SumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}
