/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. The storage layer maps driver-level
  failures (unique constraint violations in particular) onto these
  sentinels so the engine never has to parse database error strings.

ERROR CATEGORIES:
  1. Informational outcomes - AlreadySettled, NothingToSettle (not failures)
  2. Commit conflicts - a concurrent trigger won the uniqueness race
  3. Storage errors - any other read/write failure

USAGE:
  if errors.Is(err, settlement.ErrAlreadySettled) { ... }

SEE ALSO:
  - engine.go: Converts these into caller-visible outcomes
  - store/sqlite: Maps SQLITE_CONSTRAINT onto ErrAlreadySettled
*/
package settlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadySettled is returned when a settlement for the resolved
	// (kind, period) already exists. This is expected behavior for retries
	// and replayed triggers, not a failure.
	ErrAlreadySettled = errors.New("settlement already exists for this period")

	// ErrNothingToSettle is returned when no wallet has a positive relevant
	// balance. No settlement row is created in this case.
	ErrNothingToSettle = errors.New("no drivers to settle")

	// ErrBalanceChanged is returned when a wallet balance no longer covers
	// the amount read during aggregation, meaning the commit would wipe a
	// balance it never read. The whole commit rolls back.
	ErrBalanceChanged = errors.New("wallet balance changed during commit")

	// ErrUnknownKind is returned for a kind outside {short_cycle, long_cycle}.
	ErrUnknownKind = errors.New("unknown settlement kind")
)

// Informational reports whether err is one of the non-failure outcomes that
// map to an HTTP 200 (idempotent replay, empty eligible set).
func Informational(err error) bool {
	return errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrNothingToSettle)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps a wallet/settlement store failure with enough context
// (kind, period, stage) to diagnose it from logs.
type StorageError struct {
	Kind   Kind
	Period Period
	Stage  string // "guard", "aggregate", "commit"
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s settlement %s failed at %s: %v", e.Kind, e.Period, e.Stage, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
