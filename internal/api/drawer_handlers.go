package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"farmacia/m/domain"
	"farmacia/m/internal/pos"
)

type drawerResponse struct {
	domain.CashDrawerState
	ExpectedCash *decimal.Decimal `json:"expected_cash,omitempty"`
}

func (h *Handler) drawerState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Drawer.State(r.Context())
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	resp := drawerResponse{CashDrawerState: state}
	if state.IsOpen {
		expected, err := h.svc.Drawer.ComputeExpected(r.Context())
		if err != nil {
			h.respondCoreError(w, r, err)
			return
		}
		resp.ExpectedCash = &expected
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) openDrawer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InitialAmount decimal.Decimal `json:"initial_amount"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := h.svc.Drawer.Open(r.Context(), pos.OpenDrawer{InitialAmount: payload.InitialAmount, UserID: actor(r)})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handler) closeDrawer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CountedAmount decimal.Decimal `json:"counted_amount"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Drawer.Close(r.Context(), pos.CloseDrawer{CountedAmount: payload.CountedAmount, UserID: actor(r)})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) drawerSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	sessions, err := h.svc.Drawer.Sessions(r.Context(), limit)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}
