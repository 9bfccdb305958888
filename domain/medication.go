package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medication is a stocked product. Quantity is a cache of
// InitialQuantity plus the signed sum of its ledger entries and is only
// written by the stock ledger.
type Medication struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	ActiveIngredient string          `db:"active_ingredient" json:"active_ingredient"`
	Batch            string          `db:"batch" json:"batch"`
	CategoryID       string          `db:"category_id" json:"category_id"`
	SupplierID       string          `db:"supplier_id" json:"supplier_id"`
	Quantity         int64           `db:"quantity" json:"quantity"`
	InitialQuantity  int64           `db:"initial_quantity" json:"initial_quantity"`
	MinStock         int64           `db:"min_stock" json:"min_stock"`
	Price            decimal.Decimal `db:"price" json:"price"`
	ExpiryDate       *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Location         string          `db:"location" json:"location"`
	Active           bool            `db:"active" json:"active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether the medication is at or below its reorder level.
func (m Medication) LowStock() bool {
	return m.Quantity <= m.MinStock
}

// ExpiredOn reports whether the expiry date falls strictly before the
// calendar day of today.
func (m Medication) ExpiredOn(today time.Time) bool {
	if m.ExpiryDate == nil {
		return false
	}
	return m.ExpiryDate.Before(StartOfDay(today))
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
