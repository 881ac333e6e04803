/*
engine.go - End-to-end settlement run orchestration

PURPOSE:
  Runs one settlement attempt: resolve the period, short-circuit if the
  period is already settled, aggregate eligible wallets, and commit the
  settlement atomically. The engine is parameterized by Kind; there is one
  code path for both settlement flavors.

STATE FLOW:
  PeriodResolved -> CheckedIdempotency -> {AlreadySettled | Aggregated}
                 -> {NothingToSettle | Committed}

FAILURE MODEL:
  Any storage error surfaces as a Failed result with the underlying
  message; the atomic Commit guarantees no partial mutation is visible, so
  every failure is retry-safe. A uniqueness conflict during commit (a
  concurrent trigger won the race) is reported as AlreadySettled, not as
  a failure.
*/
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTCOMES
// =============================================================================

// Outcome is the terminal state of a settlement run.
type Outcome string

const (
	OutcomeCommitted       Outcome = "committed"
	OutcomeAlreadySettled  Outcome = "already_settled"
	OutcomeNothingToSettle Outcome = "nothing_to_settle"
)

// Result summarizes a successful (or informationally short-circuited) run.
type Result struct {
	Outcome        Outcome
	Kind           Kind
	Period         Period
	DriversSettled int
	TotalAmount    decimal.Decimal
	SettlementID   string
}

// Message renders the caller-visible summary line for the result.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeAlreadySettled:
		return fmt.Sprintf("%s settlement already exists for this period.", r.Kind.Label())
	case OutcomeNothingToSettle:
		return "No drivers to settle."
	default:
		return fmt.Sprintf("%s settlement completed for %d drivers.", r.Kind.Label(), r.DriversSettled)
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates period calculation, the idempotency guard, balance
// aggregation, and the atomic commit. Safe for concurrent use; all shared
// state lives in the store.
type Engine struct {
	store  Store
	logger *slog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewEngine creates an engine on top of the given store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the commit-timestamp clock. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run executes one settlement attempt for kind, with the period resolved
// from ref. Replaying the same trigger for the same reference time is
// idempotent: the second call resolves the same period and reports
// AlreadySettled without touching any state.
func (e *Engine) Run(ctx context.Context, kind Kind, ref time.Time) (Result, error) {
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	period := PeriodFor(kind, ref)
	log := e.logger.With("kind", string(kind), "period_start", period.Start.Format(DateLayout), "period_end", period.End.Format(DateLayout))

	// Idempotency guard. A plain read; the unique constraint behind Commit
	// closes the window between this check and the insert.
	settled, err := e.store.Exists(ctx, kind, period)
	if err != nil {
		return Result{}, &StorageError{Kind: kind, Period: period, Stage: "guard", Err: err}
	}
	if settled {
		log.Info("settlement already exists, skipping")
		return Result{Outcome: OutcomeAlreadySettled, Kind: kind, Period: period}, nil
	}

	// Aggregate eligible balances. Zero and negative balances are excluded
	// entirely; their wallets are untouched by the commit.
	wallets, err := e.store.EligibleWallets(ctx, kind)
	if err != nil {
		return Result{}, &StorageError{Kind: kind, Period: period, Stage: "aggregate", Err: err}
	}
	if len(wallets) == 0 {
		// No header row here: an empty run must not occupy the period's
		// uniqueness slot and block a later, non-empty run.
		log.Info("no eligible drivers, nothing to settle")
		return Result{Outcome: OutcomeNothingToSettle, Kind: kind, Period: period}, nil
	}

	items := make([]Item, 0, len(wallets))
	for _, w := range wallets {
		items = append(items, Item{DriverID: w.DriverID, Amount: w.BalanceFor(kind)})
	}

	s := Settlement{
		ID:          uuid.NewString(),
		Kind:        kind,
		Period:      period,
		TotalAmount: SumItems(items), // final total known before insert, written once
		SettledAt:   e.now().UTC(),
		Items:       items,
	}

	if err := e.store.Commit(ctx, s); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			// A concurrent trigger for the same period committed first.
			log.Info("lost idempotency race, settlement committed elsewhere")
			return Result{Outcome: OutcomeAlreadySettled, Kind: kind, Period: period}, nil
		}
		return Result{}, &StorageError{Kind: kind, Period: period, Stage: "commit", Err: err}
	}

	log.Info("settlement committed",
		"settlement_id", s.ID,
		"drivers", len(items),
		"total", s.TotalAmount.String())

	return Result{
		Outcome:        OutcomeCommitted,
		Kind:           kind,
		Period:         period,
		DriversSettled: len(items),
		TotalAmount:    s.TotalAmount,
		SettlementID:   s.ID,
	}, nil
}
