// Package store provides an in-memory settlement.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetpay/settlement-engine/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements settlement.Store with maps guarded by a mutex. The
// mutex doubles as the transaction boundary: Commit mutates everything
// under one critical section, so partial commits are never observable and
// concurrent commits for the same period serialize on the uniqueness check.
type Memory struct {
	mu          sync.RWMutex
	wallets     map[settlement.DriverID]settlement.Wallet
	settlements map[periodKey]settlement.Settlement
}

type periodKey struct {
	Kind  settlement.Kind
	Start string
	End   string
}

func keyFor(kind settlement.Kind, p settlement.Period) periodKey {
	return periodKey{
		Kind:  kind,
		Start: p.Start.Format(settlement.DateLayout),
		End:   p.End.Format(settlement.DateLayout),
	}
}

func NewMemory() *Memory {
	return &Memory{
		wallets:     make(map[settlement.DriverID]settlement.Wallet),
		settlements: make(map[periodKey]settlement.Settlement),
	}
}

// Credit increases one balance field, playing the external earning process.
func (m *Memory) Credit(driverID settlement.DriverID, kind settlement.Kind, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[driverID]
	if !ok {
		w = settlement.Wallet{DriverID: driverID}
	}
	if kind == settlement.KindLongCycle {
		w.SalaryBalance = w.SalaryBalance.Add(amount)
	} else {
		w.BattaBalance = w.BattaBalance.Add(amount)
	}
	w.UpdatedAt = time.Now().UTC()
	m.wallets[driverID] = w
}

// Wallet returns a copy of the driver's wallet.
func (m *Memory) Wallet(driverID settlement.DriverID) (settlement.Wallet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[driverID]
	return w, ok
}

// Settlements returns all committed settlements, oldest first.
func (m *Memory) Settlements() []settlement.Settlement {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]settlement.Settlement, 0, len(m.settlements))
	for _, s := range m.settlements {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.Before(out[j].SettledAt) })
	return out
}

// =============================================================================
// settlement.Store implementation
// =============================================================================

func (m *Memory) EligibleWallets(_ context.Context, kind settlement.Kind) ([]settlement.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var eligible []settlement.Wallet
	for _, w := range m.wallets {
		if w.BalanceFor(kind).IsPositive() {
			eligible = append(eligible, w)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].DriverID < eligible[j].DriverID })
	return eligible, nil
}

func (m *Memory) Exists(_ context.Context, kind settlement.Kind, period settlement.Period) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.settlements[keyFor(kind, period)]
	return ok, nil
}

func (m *Memory) Commit(_ context.Context, s settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(s.Kind, s.Period)
	if _, ok := m.settlements[key]; ok {
		return settlement.ErrAlreadySettled
	}

	// Validate every decrement before applying any, so a failure leaves the
	// whole store untouched.
	updated := make(map[settlement.DriverID]settlement.Wallet, len(s.Items))
	for _, it := range s.Items {
		w, ok := m.wallets[it.DriverID]
		if !ok || w.BalanceFor(s.Kind).LessThan(it.Amount) {
			return settlement.ErrBalanceChanged
		}
		if s.Kind == settlement.KindLongCycle {
			w.SalaryBalance = w.SalaryBalance.Sub(it.Amount)
		} else {
			w.BattaBalance = w.BattaBalance.Sub(it.Amount)
		}
		w.UpdatedAt = s.SettledAt
		updated[it.DriverID] = w
	}

	for id, w := range updated {
		m.wallets[id] = w
	}
	m.settlements[key] = s
	return nil
}
