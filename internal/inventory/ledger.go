package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
)

const entryColumns = `id, seq, medication_id, kind, quantity, signed_delta, reason, reference, user_id, created_at`

// AppendEntry is the command that records one stock change.
type AppendEntry struct {
	MedicationID string           `json:"medication_id"`
	Kind         domain.EntryKind `json:"kind"`
	Quantity     int64            `json:"quantity"`
	Reason       string           `json:"reason"`
	Reference    string           `json:"reference,omitempty"`
	UserID       string           `json:"user_id"`
}

func (cmd AppendEntry) validate() error {
	const op = "ledger.Append"
	switch {
	case cmd.MedicationID == "":
		return domain.NewOpError(op, domain.ErrValidationFailed, "medication_id is required")
	case !cmd.Kind.Valid():
		return domain.NewOpError(op, domain.ErrValidationFailed, "unknown entry kind %q", cmd.Kind)
	case cmd.Quantity <= 0:
		return domain.NewOpError(op, domain.ErrInvalidQuantity, "quantity must be a positive integer, got %d", cmd.Quantity)
	case cmd.Kind.RequiresReason() && strings.TrimSpace(cmd.Reason) == "":
		return domain.NewOpError(op, domain.ErrMissingReason, "%s entries need a reason", cmd.Kind)
	case strings.TrimSpace(cmd.UserID) == "":
		return domain.NewOpError(op, domain.ErrValidationFailed, "user_id is required")
	}
	return nil
}

// Ledger is the append-only log of stock changes. Every append updates the
// medication's cached quantity in the same transaction.
type Ledger struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(db *sqlx.DB, log zerolog.Logger, opts ...Option) *Ledger {
	s := applyOptions(opts)
	return &Ledger{db: db, log: log, now: s.now}
}

// Append validates and records a single entry in its own transaction.
func (l *Ledger) Append(ctx context.Context, cmd AppendEntry) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := database.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var err error
		entry, err = l.AppendTx(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	l.log.Info().
		Str("medication_id", entry.MedicationID).
		Str("kind", string(entry.Kind)).
		Int64("delta", entry.SignedDelta).
		Str("user_id", entry.UserID).
		Msg("ledger entry appended")
	return entry, nil
}

// AppendTx records an entry inside a caller-owned transaction. The caller
// must roll back on error.
func (l *Ledger) AppendTx(ctx context.Context, tx *sqlx.Tx, cmd AppendEntry) (domain.LedgerEntry, error) {
	if err := cmd.validate(); err != nil {
		return domain.LedgerEntry{}, err
	}

	med, err := FindMedication(ctx, tx, cmd.MedicationID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	delta := cmd.Kind.Sign() * cmd.Quantity
	if delta > 0 && med.Quantity > math.MaxInt64-delta {
		return domain.LedgerEntry{}, domain.NewOpError("ledger.Append", domain.ErrInvalidQuantity,
			"adding %d to %d exceeds the largest stock that can be held", delta, med.Quantity)
	}
	if med.Quantity+delta < 0 {
		return domain.LedgerEntry{}, &domain.StockError{
			MedicationID: med.ID,
			Name:         med.Name,
			Requested:    cmd.Quantity,
			Available:    med.Quantity,
		}
	}

	// The guard in the WHERE clause keeps the update safe even if the row
	// changed after it was read.
	now := l.now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE medications SET quantity = quantity + ?, updated_at = ?
                WHERE id = ? AND quantity + ? >= 0`, delta, now, med.ID, delta)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("update quantity: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.LedgerEntry{}, err
	} else if n == 0 {
		return domain.LedgerEntry{}, &domain.StockError{
			MedicationID: med.ID,
			Name:         med.Name,
			Requested:    cmd.Quantity,
			Available:    med.Quantity,
		}
	}

	entry := domain.LedgerEntry{
		ID:           uuid.NewString(),
		MedicationID: med.ID,
		Kind:         cmd.Kind,
		Quantity:     cmd.Quantity,
		SignedDelta:  delta,
		Reason:       strings.TrimSpace(cmd.Reason),
		Reference:    cmd.Reference,
		UserID:       strings.TrimSpace(cmd.UserID),
		CreatedAt:    now,
	}
	res, err = tx.ExecContext(ctx, `INSERT INTO ledger_entries (id, medication_id, kind, quantity, signed_delta, reason, reference, user_id, created_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MedicationID, entry.Kind, entry.Quantity, entry.SignedDelta,
		entry.Reason, entry.Reference, entry.UserID, entry.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	if entry.Seq, err = res.LastInsertId(); err != nil {
		return domain.LedgerEntry{}, err
	}

	med.Quantity += delta
	if delta < 0 && med.LowStock() {
		l.log.Warn().
			Str("medication_id", med.ID).
			Int64("quantity", med.Quantity).
			Int64("min_stock", med.MinStock).
			Msg("stock at or below minimum")
	}
	return entry, nil
}

// HistoryFor returns every entry of a medication, newest first.
func (l *Ledger) HistoryFor(ctx context.Context, medicationID string) ([]domain.LedgerEntry, error) {
	if _, err := FindMedication(ctx, l.db, medicationID); err != nil {
		return nil, err
	}
	entries := []domain.LedgerEntry{}
	err := l.db.SelectContext(ctx, &entries, `SELECT `+entryColumns+` FROM ledger_entries
                WHERE medication_id = ? ORDER BY seq DESC`, medicationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// LedgerFilter narrows List. Zero values mean unbounded.
type LedgerFilter struct {
	From time.Time
	To   time.Time
	Kind domain.EntryKind
}

// List returns entries across all medications, newest first.
func (l *Ledger) List(ctx context.Context, f LedgerFilter) ([]domain.LedgerEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if !f.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.To.UTC())
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq DESC"

	entries := []domain.LedgerEntry{}
	if err := l.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return entries, nil
}

const reconcileQuery = `SELECT m.id AS medication_id, m.name, m.initial_quantity, m.quantity,
                COALESCE((SELECT SUM(e.signed_delta) FROM ledger_entries e WHERE e.medication_id = m.id), 0) AS ledger_sum
                FROM medications m`

// Reconcile recomputes a medication's quantity from its ledger.
func (l *Ledger) Reconcile(ctx context.Context, medicationID string) (domain.Reconciliation, error) {
	var rec domain.Reconciliation
	if _, err := FindMedication(ctx, l.db, medicationID); err != nil {
		return rec, err
	}
	err := l.db.GetContext(ctx, &rec, reconcileQuery+` WHERE m.id = ?`, medicationID)
	return rec, err
}

// ReconcileAll returns the reconciliation of every medication whose cached
// quantity disagrees with its ledger. An empty result means the store is
// consistent.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]domain.Reconciliation, error) {
	var all []domain.Reconciliation
	if err := l.db.SelectContext(ctx, &all, reconcileQuery+` ORDER BY m.name`); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	mismatched := []domain.Reconciliation{}
	for _, rec := range all {
		if !rec.Consistent() {
			l.log.Warn().
				Str("medication_id", rec.MedicationID).
				Int64("quantity", rec.Quantity).
				Int64("expected", rec.Expected()).
				Msg("ledger mismatch")
			mismatched = append(mismatched, rec)
		}
	}
	return mismatched, nil
}
