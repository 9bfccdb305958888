package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentCard || p == PaymentTransfer
}

type SaleStatus string

const (
	SalePending   SaleStatus = "Pendiente"
	SaleCompleted SaleStatus = "Completada"
	SaleCancelled SaleStatus = "Anulada"
)

// Sale is a completed point-of-sale transaction. Totals are computed once
// at creation and never recomputed.
type Sale struct {
	ID               string          `db:"id" json:"id"`
	CustomerName     string          `db:"customer_name" json:"customer_name,omitempty"`
	CustomerDocument string          `db:"customer_document" json:"customer_document,omitempty"`
	CustomerEmail    string          `db:"customer_email" json:"customer_email,omitempty"`
	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount         decimal.Decimal `db:"discount" json:"discount"`
	Tax              decimal.Decimal `db:"tax" json:"tax"`
	Total            decimal.Decimal `db:"total" json:"total"`
	PaymentMethod    PaymentMethod   `db:"payment_method" json:"payment_method"`
	Status           SaleStatus      `db:"status" json:"status"`
	Cashier          string          `db:"cashier" json:"cashier"`
	Date             time.Time       `db:"date" json:"date"`
	CancelledAt      *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy      string          `db:"cancelled_by" json:"cancelled_by,omitempty"`
	Items            []SaleItem      `db:"-" json:"items"`
}

// SaleItem is a frozen snapshot of a cart line at sale time.
type SaleItem struct {
	SaleID       string          `db:"sale_id" json:"sale_id"`
	Line         int             `db:"line" json:"line"`
	MedicationID string          `db:"medication_id" json:"medication_id"`
	Name         string          `db:"name" json:"name"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	LineDiscount decimal.Decimal `db:"line_discount" json:"line_discount"`
}

// Customer is the optional free-form buyer identification on a sale.
type Customer struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email"`
}

// Totals is the price breakdown of a cart.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// SalesSummary aggregates completed sales in a period.
type SalesSummary struct {
	Revenue decimal.Decimal `json:"revenue"`
	Count   int64           `json:"sales_count"`
}
