package api

import (
	"time"

	"github.com/fleetpay/settlement-engine/settlement"
)

// =============================================================================
// RESPONSE DTOs
// =============================================================================

// RunResponse is the trigger endpoints' success payload. Message alone is
// populated for the informational outcomes; committed runs carry the
// summary fields as well.
type RunResponse struct {
	Message        string `json:"message"`
	Outcome        string `json:"outcome"`
	Kind           string `json:"kind"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	DriversSettled int    `json:"drivers_settled,omitempty"`
	TotalAmount    string `json:"total_amount,omitempty"`
	SettlementID   string `json:"settlement_id,omitempty"`
}

// ErrorResponse is the failure payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

type SettlementDTO struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	TotalAmount string    `json:"total_amount"`
	SettledAt   string    `json:"settled_at"`
	Items       []ItemDTO `json:"items,omitempty"`
}

type ItemDTO struct {
	DriverID string `json:"driver_id"`
	Amount   string `json:"amount"`
}

type WalletDTO struct {
	DriverID      string `json:"driver_id"`
	BattaBalance  string `json:"batta_balance"`
	SalaryBalance string `json:"salary_balance"`
	UpdatedAt     string `json:"updated_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRunResponse(res settlement.Result) RunResponse {
	out := RunResponse{
		Message:     res.Message(),
		Outcome:     string(res.Outcome),
		Kind:        string(res.Kind),
		PeriodStart: res.Period.Start.Format(settlement.DateLayout),
		PeriodEnd:   res.Period.End.Format(settlement.DateLayout),
	}
	if res.Outcome == settlement.OutcomeCommitted {
		out.DriversSettled = res.DriversSettled
		out.TotalAmount = res.TotalAmount.String()
		out.SettlementID = res.SettlementID
	}
	return out
}

func toSettlementDTO(s settlement.Settlement) SettlementDTO {
	dto := SettlementDTO{
		ID:          s.ID,
		Kind:        string(s.Kind),
		PeriodStart: s.Period.Start.Format(settlement.DateLayout),
		PeriodEnd:   s.Period.End.Format(settlement.DateLayout),
		TotalAmount: s.TotalAmount.String(),
		SettledAt:   s.SettledAt.Format(time.RFC3339),
	}
	for _, it := range s.Items {
		dto.Items = append(dto.Items, ItemDTO{
			DriverID: string(it.DriverID),
			Amount:   it.Amount.String(),
		})
	}
	return dto
}

func toWalletDTO(w settlement.Wallet) WalletDTO {
	return WalletDTO{
		DriverID:      string(w.DriverID),
		BattaBalance:  w.BattaBalance.String(),
		SalaryBalance: w.SalaryBalance.String(),
		UpdatedAt:     w.UpdatedAt.Format(time.RFC3339),
	}
}
