package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"farmacia/m/domain"
	"farmacia/m/internal/inventory"
)

type entryRequest struct {
	Kind      domain.EntryKind `json:"kind"`
	Quantity  int64            `json:"quantity"`
	Reason    string           `json:"reason"`
	Reference string           `json:"reference"`
}

func (h *Handler) appendEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.svc.Ledger.Append(r.Context(), inventory.AppendEntry{
		MedicationID: chi.URLParam(r, "id"),
		Kind:         req.Kind,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Reference:    req.Reference,
		UserID:       actor(r),
	})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) medicationHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Ledger.HistoryFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) reconcileMedication(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Ledger.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		return
	}
	kind := domain.EntryKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		respondError(w, http.StatusBadRequest, "unknown entry kind")
		return
	}
	entries, err := h.svc.Ledger.List(r.Context(), inventory.LedgerFilter{From: from, To: to, Kind: kind})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) reconcileAll(w http.ResponseWriter, r *http.Request) {
	mismatched, err := h.svc.Ledger.ReconcileAll(r.Context())
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"consistent": len(mismatched) == 0,
		"mismatched": mismatched,
	})
}

func (h *Handler) runReturns(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	today := h.now()
	if payload.Date != "" {
		parsed, err := time.Parse(dateLayout, payload.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		today = parsed
	}
	entries, err := h.svc.Returns.RunReturns(r.Context(), today, actor(r))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"returned": len(entries),
		"entries":  entries,
	})
}
