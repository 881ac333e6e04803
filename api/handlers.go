/*
handlers.go - HTTP handlers for settlement triggers and reporting

PURPOSE:
  Exposes the settlement engine over HTTP. The trigger endpoints accept a
  POST with no required body; the caller (an ops dashboard or a cron-like
  scheduler) only chooses which settlement kind to run.

ENDPOINTS:
  POST /api/settlements/short-cycle/run  Run the weekly batta settlement
  POST /api/settlements/long-cycle/run   Run the monthly salary settlement
  GET  /api/settlements                  List settlements (?kind= filter)
  GET  /api/settlements/{id}             One settlement with items
  GET  /api/wallets                      Current wallet balances

RESPONSES:
  Informational outcomes (already settled, nothing to settle) and committed
  runs are all 200 with a human-readable message. Storage failures are 400
  with the underlying message; the atomic commit makes retries safe.

SECURITY NOTE:
  Authentication of the trigger caller is an upstream concern (gateway),
  not handled here.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: In-process periodic trigger
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetpay/settlement-engine/metrics"
	"github.com/fleetpay/settlement-engine/settlement"
	"github.com/fleetpay/settlement-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *settlement.Engine

	// now supplies the trigger reference time; injectable for tests.
	now func() time.Time
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, engine *settlement.Engine) *Handler {
	return &Handler{Store: store, Engine: engine, now: time.Now}
}

// =============================================================================
// TRIGGER ENDPOINTS
// =============================================================================

// RunShortCycle triggers the weekly batta settlement.
// POST /api/settlements/short-cycle/run
func (h *Handler) RunShortCycle(w http.ResponseWriter, r *http.Request) {
	h.runSettlement(w, r, settlement.KindShortCycle)
}

// RunLongCycle triggers the monthly salary settlement.
// POST /api/settlements/long-cycle/run
func (h *Handler) RunLongCycle(w http.ResponseWriter, r *http.Request) {
	h.runSettlement(w, r, settlement.KindLongCycle)
}

func (h *Handler) runSettlement(w http.ResponseWriter, r *http.Request, kind settlement.Kind) {
	started := time.Now()
	res, err := h.Engine.Run(r.Context(), kind, h.now())
	if err != nil {
		metrics.ObserveRun(string(kind), "failed", 0, time.Since(started))
		slog.Error("settlement run failed", "kind", string(kind), "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.ObserveRun(string(kind), string(res.Outcome), res.DriversSettled, time.Since(started))
	writeJSON(w, http.StatusOK, toRunResponse(res))
}

// =============================================================================
// REPORTING ENDPOINTS
// =============================================================================

// ListSettlements returns committed settlements, newest first.
// GET /api/settlements?kind=short_cycle
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	kind := settlement.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown settlement kind: "+string(kind))
		return
	}

	settlements, err := h.Store.ListSettlements(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}

	dtos := make([]SettlementDTO, 0, len(settlements))
	for _, s := range settlements {
		dtos = append(dtos, toSettlementDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": dtos})
}

// GetSettlement returns one settlement with its items.
// GET /api/settlements/{id}
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.Store.GetSettlement(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settlement")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "settlement not found")
		return
	}

	writeJSON(w, http.StatusOK, toSettlementDTO(*s))
}

// ListWallets returns all driver wallets.
// GET /api/wallets
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.Store.ListWallets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}

	dtos := make([]WalletDTO, 0, len(wallets))
	for _, wl := range wallets {
		dtos = append(dtos, toWalletDTO(wl))
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": dtos})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
