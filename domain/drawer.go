package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashDrawerState is the singleton register state for the current shift.
type CashDrawerState struct {
	IsOpen        bool            `db:"is_open" json:"is_open"`
	InitialAmount decimal.Decimal `db:"initial_amount" json:"initial_amount"`
	OpenedAt      *time.Time      `db:"opened_at" json:"opened_at,omitempty"`
	OpenedBy      string          `db:"opened_by" json:"opened_by,omitempty"`
}

// DrawerSession is the closed record of one shift.
type DrawerSession struct {
	ID            string          `db:"id" json:"id"`
	InitialAmount decimal.Decimal `db:"initial_amount" json:"initial_amount"`
	OpenedAt      time.Time       `db:"opened_at" json:"opened_at"`
	OpenedBy      string          `db:"opened_by" json:"opened_by"`
	ClosedAt      time.Time       `db:"closed_at" json:"closed_at"`
	ClosedBy      string          `db:"closed_by" json:"closed_by"`
	ExpectedCash  decimal.Decimal `db:"expected_cash" json:"expected_cash"`
	CountedAmount decimal.Decimal `db:"counted_amount" json:"counted_amount"`
	Variance      decimal.Decimal `db:"variance" json:"variance"`
}
