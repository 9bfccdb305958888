package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
)

// ReturnSweep sends expired stock back to suppliers.
type ReturnSweep struct {
	db     *sqlx.DB
	ledger *Ledger
	log    zerolog.Logger
}

// NewReturnSweep constructs a ReturnSweep that appends through ledger.
func NewReturnSweep(db *sqlx.DB, ledger *Ledger, log zerolog.Logger) *ReturnSweep {
	return &ReturnSweep{db: db, ledger: ledger, log: log}
}

// RunReturns zeroes every medication that expired before today's date with
// a supplier-return entry. The whole batch is one transaction. Items
// already at zero are skipped, so a second run on the same day is a no-op.
func (r *ReturnSweep) RunReturns(ctx context.Context, today time.Time, userID string) ([]domain.LedgerEntry, error) {
	if userID == "" {
		return nil, domain.NewOpError("returns.RunReturns", domain.ErrValidationFailed, "user_id is required")
	}
	cutoff := domain.StartOfDay(today)
	entries := []domain.LedgerEntry{}

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var candidates []domain.Medication
		if err := tx.SelectContext(ctx, &candidates, `SELECT `+medicationColumns+` FROM medications
                WHERE quantity > 0 AND expiry_date IS NOT NULL ORDER BY name`); err != nil {
			return fmt.Errorf("load expiry candidates: %w", err)
		}
		for _, med := range candidates {
			if !med.ExpiredOn(cutoff) {
				continue
			}
			entry, err := r.ledger.AppendTx(ctx, tx, AppendEntry{
				MedicationID: med.ID,
				Kind:         domain.KindDevolucionProveedor,
				Quantity:     med.Quantity,
				Reason:       domain.ReasonExpiredReturn,
				Reference:    med.SupplierID,
				UserID:       userID,
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("date", cutoff.Format("2006-01-02")).
		Int("returned", len(entries)).
		Msg("supplier return sweep finished")
	return entries, nil
}
