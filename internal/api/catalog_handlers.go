package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"farmacia/m/internal/inventory"
)

const dateLayout = "2006-01-02"

// Category Handlers

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cats)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := h.svc.Catalog.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req inventory.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := h.svc.Catalog.CreateCategory(r.Context(), req)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cat)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req inventory.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := h.svc.Catalog.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Supplier Handlers

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	sups, err := h.svc.Catalog.ListSuppliers(r.Context())
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sups)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := h.svc.Catalog.GetSupplier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sup)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req inventory.SupplierInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sup, err := h.svc.Catalog.CreateSupplier(r.Context(), req)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sup)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	var req inventory.SupplierInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sup, err := h.svc.Catalog.UpdateSupplier(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sup)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteSupplier(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Medication Handlers

type medicationRequest struct {
	Name             string          `json:"name"`
	ActiveIngredient string          `json:"active_ingredient"`
	Batch            string          `json:"batch"`
	CategoryID       string          `json:"category_id"`
	SupplierID       string          `json:"supplier_id"`
	Quantity         int64           `json:"quantity"`
	MinStock         int64           `json:"min_stock"`
	Price            decimal.Decimal `json:"price"`
	ExpiryDate       string          `json:"expiry_date"`
	Location         string          `json:"location"`
}

func (req medicationRequest) input() (inventory.MedicationInput, error) {
	in := inventory.MedicationInput{
		Name:             req.Name,
		ActiveIngredient: req.ActiveIngredient,
		Batch:            req.Batch,
		CategoryID:       req.CategoryID,
		SupplierID:       req.SupplierID,
		Quantity:         req.Quantity,
		MinStock:         req.MinStock,
		Price:            req.Price,
		Location:         req.Location,
	}
	if strings.TrimSpace(req.ExpiryDate) != "" {
		expiry, err := time.Parse(dateLayout, strings.TrimSpace(req.ExpiryDate))
		if err != nil {
			return in, err
		}
		in.ExpiryDate = &expiry
	}
	return in, nil
}

func (h *Handler) listMedications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meds, err := h.svc.Catalog.ListMedications(r.Context(), inventory.MedicationFilter{
		Query:           q.Get("q"),
		CategoryID:      q.Get("category_id"),
		SupplierID:      q.Get("supplier_id"),
		IncludeInactive: q.Get("include_inactive") == "true",
	})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

func (h *Handler) getMedication(w http.ResponseWriter, r *http.Request) {
	med, err := h.svc.Catalog.GetMedication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) createMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
		return
	}
	med, err := h.svc.Catalog.CreateMedication(r.Context(), in)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, med)
}

func (h *Handler) updateMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
		return
	}
	med, err := h.svc.Catalog.UpdateMedication(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) disableMedication(w http.ResponseWriter, r *http.Request) {
	h.setMedicationActive(w, r, false)
}

func (h *Handler) enableMedication(w http.ResponseWriter, r *http.Request) {
	h.setMedicationActive(w, r, true)
}

func (h *Handler) setMedicationActive(w http.ResponseWriter, r *http.Request, active bool) {
	med, err := h.svc.Catalog.SetMedicationActive(r.Context(), chi.URLParam(r, "id"), active)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	meds, err := h.svc.Catalog.LowStock(r.Context())
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}
	meds, err := h.svc.Catalog.Expiring(r.Context(), days)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

// parseDateRange reads start_date and end_date (inclusive) as YYYY-MM-DD
// and returns the half-open UTC interval they cover. Missing bounds are
// zero.
func parseDateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("start_date"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			return
		}
	}
	if raw := q.Get("end_date"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			return
		}
		to = to.AddDate(0, 0, 1)
	}
	return
}
