/*
handlers_test.go - HTTP-level tests for the settlement triggers

Exercises the full stack: chi router, CORS middleware, handlers, engine,
and the SQLite store on an in-memory database.
*/
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpay/settlement-engine/settlement"
	"github.com/fleetpay/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// wednesday is the fixed trigger reference time for all tests.
var wednesday = time.Date(2025, time.June, 11, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*sqlite.Store, http.Handler) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := settlement.NewEngine(store, logger).WithClock(func() time.Time { return wednesday })

	handler := NewHandler(store, engine)
	handler.now = func() time.Time { return wednesday }

	return store, NewRouter(handler)
}

func credit(t *testing.T, store *sqlite.Store, driverID string, kind settlement.Kind, amount string) {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	require.NoError(t, store.CreditWallet(context.Background(), settlement.DriverID(driverID), kind, d))
}

func doRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

// =============================================================================
// TRIGGER ENDPOINTS
// =============================================================================

func TestRunShortCycle_Committed(t *testing.T) {
	store, router := newTestServer(t)
	credit(t, store, "driver-a", settlement.KindShortCycle, "100")
	credit(t, store, "driver-b", settlement.KindLongCycle, "300") // not eligible here
	credit(t, store, "driver-c", settlement.KindShortCycle, "50")

	rec := doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	decodeJSON(t, rec, &resp)

	assert.Equal(t, "Weekly settlement completed for 2 drivers.", resp.Message)
	assert.Equal(t, "committed", resp.Outcome)
	assert.Equal(t, 2, resp.DriversSettled)
	assert.Equal(t, "150", resp.TotalAmount)
	assert.Equal(t, "2025-06-09", resp.PeriodStart)
	assert.Equal(t, "2025-06-15", resp.PeriodEnd)
	assert.NotEmpty(t, resp.SettlementID)

	// Balances drained for settled drivers only
	a, err := store.GetWallet(context.Background(), "driver-a")
	require.NoError(t, err)
	assert.True(t, a.BattaBalance.IsZero())
	b, err := store.GetWallet(context.Background(), "driver-b")
	require.NoError(t, err)
	assert.True(t, b.SalaryBalance.Equal(decimal.NewFromInt(300)))
}

func TestRunShortCycle_ReplayReturnsAlreadyExists(t *testing.T) {
	store, router := newTestServer(t)
	credit(t, store, "driver-a", settlement.KindShortCycle, "100")

	rec := doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "Weekly settlement already exists for this period.", resp.Message)
	assert.Equal(t, "already_settled", resp.Outcome)
	assert.Zero(t, resp.DriversSettled)

	// Still exactly one settlement
	settlements, err := store.ListSettlements(context.Background(), settlement.KindShortCycle)
	require.NoError(t, err)
	assert.Len(t, settlements, 1)
}

func TestRunShortCycle_NothingToSettle(t *testing.T) {
	store, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "No drivers to settle.", resp.Message)

	// No phantom row: the period stays open for a later non-empty run
	settlements, err := store.ListSettlements(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, settlements)

	credit(t, store, "driver-a", settlement.KindShortCycle, "20")
	rec = doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "committed", resp.Outcome)
}

func TestRunLongCycle_Committed(t *testing.T) {
	store, router := newTestServer(t)
	credit(t, store, "driver-b", settlement.KindLongCycle, "300")

	rec := doRequest(t, router, http.MethodPost, "/api/settlements/long-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "Monthly settlement completed for 1 drivers.", resp.Message)
	assert.Equal(t, "2025-06-01", resp.PeriodStart)
	assert.Equal(t, "2025-06-30", resp.PeriodEnd)
	assert.Equal(t, "300", resp.TotalAmount)
}

func TestRun_StorageFailureReturns400(t *testing.T) {
	store, router := newTestServer(t)
	store.Close() // every query now fails

	rec := doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	decodeJSON(t, rec, &resp)
	assert.NotEmpty(t, resp.Error)
}

// =============================================================================
// CORS PREFLIGHT
// =============================================================================

func TestPreflight_ReturnsBare200(t *testing.T) {
	_, router := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/settlements/short-cycle/run", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Body.String())
}

// =============================================================================
// REPORTING ENDPOINTS
// =============================================================================

func TestListAndGetSettlements(t *testing.T) {
	store, router := newTestServer(t)
	credit(t, store, "driver-a", settlement.KindShortCycle, "100")
	credit(t, store, "driver-c", settlement.KindShortCycle, "50")

	rec := doRequest(t, router, http.MethodPost, "/api/settlements/short-cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)
	var run RunResponse
	decodeJSON(t, rec, &run)

	rec = doRequest(t, router, http.MethodGet, "/api/settlements?kind=short_cycle")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Settlements []SettlementDTO `json:"settlements"`
	}
	decodeJSON(t, rec, &list)
	require.Len(t, list.Settlements, 1)
	assert.Equal(t, run.SettlementID, list.Settlements[0].ID)
	assert.Equal(t, "150", list.Settlements[0].TotalAmount)

	rec = doRequest(t, router, http.MethodGet, "/api/settlements/"+run.SettlementID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got SettlementDTO
	decodeJSON(t, rec, &got)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "driver-a", got.Items[0].DriverID)
	assert.Equal(t, "100", got.Items[0].Amount)
	assert.Equal(t, "driver-c", got.Items[1].DriverID)
	assert.Equal(t, "50", got.Items[1].Amount)
}

func TestGetSettlement_NotFound(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/settlements/missing-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSettlements_UnknownKindRejected(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/settlements?kind=quarterly")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWallets(t *testing.T) {
	store, router := newTestServer(t)
	credit(t, store, "driver-a", settlement.KindShortCycle, "100.25")

	rec := doRequest(t, router, http.MethodGet, "/api/wallets")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Wallets []WalletDTO `json:"wallets"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Wallets, 1)
	assert.Equal(t, "driver-a", resp.Wallets[0].DriverID)
	assert.Equal(t, "100.25", resp.Wallets[0].BattaBalance)
	assert.Equal(t, "0", resp.Wallets[0].SalaryBalance)
}
