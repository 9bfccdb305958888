package domain

import "time"

// EntryKind is the closed set of stock ledger entry types.
type EntryKind string

const (
	KindEntrada             EntryKind = "entrada"
	KindSalida              EntryKind = "salida"
	KindAjusteIncremento    EntryKind = "ajuste-incremento"
	KindAjusteDecremento    EntryKind = "ajuste-decremento"
	KindDevolucionProveedor EntryKind = "devolución-proveedor"
	KindDevolucionVenta     EntryKind = "devolución-venta"
)

// Fixed reasons written by the core itself.
const (
	ReasonSale          = "Venta punto de venta"
	ReasonSaleCancelled = "Anulación de venta"
	ReasonExpiredReturn = "Producto vencido - devolución a proveedor"
)

// Valid reports whether k is one of the known kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindEntrada, KindSalida, KindAjusteIncremento, KindAjusteDecremento,
		KindDevolucionProveedor, KindDevolucionVenta:
		return true
	}
	return false
}

// Sign is +1 for kinds that add stock and -1 for kinds that remove it.
func (k EntryKind) Sign() int64 {
	switch k {
	case KindEntrada, KindAjusteIncremento, KindDevolucionVenta:
		return 1
	default:
		return -1
	}
}

// RequiresReason reports whether entries of this kind must carry a
// justification.
func (k EntryKind) RequiresReason() bool {
	switch k {
	case KindAjusteIncremento, KindAjusteDecremento, KindDevolucionProveedor, KindDevolucionVenta:
		return true
	}
	return false
}

// LedgerEntry is an immutable stock movement. Seq orders entries by
// insertion.
type LedgerEntry struct {
	ID           string    `db:"id" json:"id"`
	Seq          int64     `db:"seq" json:"seq"`
	MedicationID string    `db:"medication_id" json:"medication_id"`
	Kind         EntryKind `db:"kind" json:"kind"`
	Quantity     int64     `db:"quantity" json:"quantity"`
	SignedDelta  int64     `db:"signed_delta" json:"signed_delta"`
	Reason       string    `db:"reason" json:"reason"`
	Reference    string    `db:"reference" json:"reference,omitempty"`
	UserID       string    `db:"user_id" json:"user_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Reconciliation compares a medication's cached quantity with the value
// derived from its ledger.
type Reconciliation struct {
	MedicationID    string `db:"medication_id" json:"medication_id"`
	Name            string `db:"name" json:"name"`
	InitialQuantity int64  `db:"initial_quantity" json:"initial_quantity"`
	LedgerSum       int64  `db:"ledger_sum" json:"ledger_sum"`
	Quantity        int64  `db:"quantity" json:"quantity"`
}

func (r Reconciliation) Expected() int64 {
	return r.InitialQuantity + r.LedgerSum
}

func (r Reconciliation) Consistent() bool {
	return r.Expected() == r.Quantity
}
