package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"farmacia/m/domain"
	"farmacia/m/internal/pos"
)

var (
	cardExpiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cardLast4Pattern  = regexp.MustCompile(`^[0-9]{4}$`)
)

type quoteRequest struct {
	Items []pos.CartLine `json:"items"`
}

func (h *Handler) quoteSale(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	totals, err := h.svc.Sales.Quote(r.Context(), req.Items)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

// saleRequest carries the payment details the register collects. They are
// checked here; the core only records the method.
type saleRequest struct {
	Items         []pos.CartLine       `json:"items"`
	Customer      domain.Customer      `json:"customer"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Tendered      *decimal.Decimal     `json:"tendered,omitempty"`
	CardLast4     string               `json:"card_last4,omitempty"`
	CardExpiry    string               `json:"card_expiry,omitempty"`
}

type saleResponse struct {
	domain.Sale
	Change *decimal.Decimal `json:"change,omitempty"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.PaymentMethod.Valid() {
		respondError(w, http.StatusUnprocessableEntity, "payment_method must be cash, card or transfer")
		return
	}

	totals, err := h.svc.Sales.Quote(r.Context(), req.Items)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.Tendered != nil && req.Tendered.LessThan(totals.Total) {
			respondError(w, http.StatusUnprocessableEntity, "tendered amount is below the sale total")
			return
		}
	case domain.PaymentCard:
		if req.CardExpiry != "" && !cardExpiryPattern.MatchString(req.CardExpiry) {
			respondError(w, http.StatusUnprocessableEntity, "card_expiry must be MM/YY")
			return
		}
		if req.CardLast4 != "" && !cardLast4Pattern.MatchString(req.CardLast4) {
			respondError(w, http.StatusUnprocessableEntity, "card_last4 must be four digits")
			return
		}
	}

	sale, err := h.svc.Sales.Process(r.Context(), pos.ProcessSale{
		Cart:          req.Items,
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
		Cashier:       actor(r),
	})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}

	resp := saleResponse{Sale: sale}
	if req.PaymentMethod == domain.PaymentCash && req.Tendered != nil {
		change := req.Tendered.Sub(sale.Total)
		resp.Change = &change
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.svc.Sales.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.svc.Sales.Cancel(r.Context(), pos.CancelSale{
		SaleID: chi.URLParam(r, "id"),
		UserID: actor(r),
	})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

// Reports

type summaryResponse struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int64           `json:"count"`
}

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	day := domain.StartOfDay(h.now())
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	h.respondSummary(w, r, day, day.AddDate(0, 0, 1))
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		start = parsed
	}
	h.respondSummary(w, r, start, start.AddDate(0, 1, 0))
}

func (h *Handler) respondSummary(w http.ResponseWriter, r *http.Request, from, to time.Time) {
	summary, err := h.svc.Sales.Summary(r.Context(), from, to)
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		From:    from.Format(dateLayout),
		To:      to.AddDate(0, 0, -1).Format(dateLayout),
		Revenue: summary.Revenue,
		Count:   summary.Count,
	})
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		return
	}
	sales, err := h.svc.Sales.List(r.Context(), pos.SaleFilter{
		From:   from,
		To:     to,
		Status: domain.SaleStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		h.respondCoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sales)
}
