package pos

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
)

// Option customizes the services in this package.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func applyOptions(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type OpenDrawer struct {
	InitialAmount decimal.Decimal `json:"initial_amount"`
	UserID        string          `json:"user_id"`
}

type CloseDrawer struct {
	CountedAmount decimal.Decimal `json:"counted_amount"`
	UserID        string          `json:"user_id"`
}

// CloseResult is the reconciliation produced when a shift ends. Variance is
// positive when the drawer is over and negative when it is short.
type CloseResult struct {
	ExpectedCash  decimal.Decimal      `json:"expected_cash"`
	CountedAmount decimal.Decimal      `json:"counted_amount"`
	Variance      decimal.Decimal      `json:"variance"`
	Session       domain.DrawerSession `json:"session"`
}

// Drawer owns the cash drawer state of one register. Open and Close are
// serialized by mu.
type Drawer struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
	mu  sync.Mutex
}

// NewDrawer constructs a Drawer.
func NewDrawer(db *sqlx.DB, log zerolog.Logger, opts ...Option) *Drawer {
	s := applyOptions(opts)
	return &Drawer{db: db, log: log, now: s.now}
}

// State returns the current drawer state.
func (d *Drawer) State(ctx context.Context) (domain.CashDrawerState, error) {
	return loadDrawer(ctx, d.db)
}

// Open starts a shift with the given float.
func (d *Drawer) Open(ctx context.Context, cmd OpenDrawer) (domain.CashDrawerState, error) {
	const op = "drawer.Open"
	userID := strings.TrimSpace(cmd.UserID)
	switch {
	case userID == "":
		return domain.CashDrawerState{}, domain.NewOpError(op, domain.ErrValidationFailed, "user_id is required")
	case cmd.InitialAmount.IsNegative():
		return domain.CashDrawerState{}, domain.NewOpError(op, domain.ErrValidationFailed, "initial amount must not be negative")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var state domain.CashDrawerState
	err := database.WithTx(ctx, d.db, func(tx *sqlx.Tx) error {
		current, err := loadDrawer(ctx, tx)
		if err != nil {
			return err
		}
		if current.IsOpen {
			return domain.ErrAlreadyOpen
		}
		openedAt := d.now().UTC()
		state = domain.CashDrawerState{
			IsOpen:        true,
			InitialAmount: cmd.InitialAmount,
			OpenedAt:      &openedAt,
			OpenedBy:      userID,
		}
		_, err = tx.ExecContext(ctx, `UPDATE cash_drawer SET is_open = 1, initial_amount = ?, opened_at = ?, opened_by = ? WHERE id = 1`,
			state.InitialAmount, openedAt, userID)
		return err
	})
	if err != nil {
		return domain.CashDrawerState{}, err
	}

	d.log.Info().Str("initial_amount", state.InitialAmount.StringFixed(2)).Str("user_id", userID).Msg("cash drawer opened")
	return state, nil
}

// ComputeExpected returns the float plus cash sales since opening minus
// cash refunds since opening.
func (d *Drawer) ComputeExpected(ctx context.Context) (decimal.Decimal, error) {
	state, err := loadDrawer(ctx, d.db)
	if err != nil {
		return decimal.Zero, err
	}
	if !state.IsOpen {
		return decimal.Zero, domain.ErrNotOpen
	}
	return expectedCash(ctx, d.db, state)
}

// Close ends the shift, records the session and resets the drawer.
func (d *Drawer) Close(ctx context.Context, cmd CloseDrawer) (CloseResult, error) {
	const op = "drawer.Close"
	userID := strings.TrimSpace(cmd.UserID)
	switch {
	case userID == "":
		return CloseResult{}, domain.NewOpError(op, domain.ErrValidationFailed, "user_id is required")
	case cmd.CountedAmount.IsNegative():
		return CloseResult{}, domain.NewOpError(op, domain.ErrValidationFailed, "counted amount must not be negative")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var result CloseResult
	err := database.WithTx(ctx, d.db, func(tx *sqlx.Tx) error {
		state, err := loadDrawer(ctx, tx)
		if err != nil {
			return err
		}
		if !state.IsOpen {
			return domain.ErrNotOpen
		}
		expected, err := expectedCash(ctx, tx, state)
		if err != nil {
			return err
		}

		session := domain.DrawerSession{
			ID:            uuid.NewString(),
			InitialAmount: state.InitialAmount,
			OpenedAt:      state.OpenedAt.UTC(),
			OpenedBy:      state.OpenedBy,
			ClosedAt:      d.now().UTC(),
			ClosedBy:      userID,
			ExpectedCash:  expected,
			CountedAmount: cmd.CountedAmount,
			Variance:      cmd.CountedAmount.Sub(expected),
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO drawer_sessions (id, initial_amount, opened_at, opened_by, closed_at,
                closed_by, expected_cash, counted_amount, variance)
                VALUES (:id, :initial_amount, :opened_at, :opened_by, :closed_at, :closed_by, :expected_cash, :counted_amount, :variance)`,
			session); err != nil {
			return fmt.Errorf("insert drawer session: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cash_drawer SET is_open = 0, initial_amount = '0', opened_at = NULL, opened_by = '' WHERE id = 1`); err != nil {
			return fmt.Errorf("reset drawer: %w", err)
		}

		result = CloseResult{
			ExpectedCash:  expected,
			CountedAmount: cmd.CountedAmount,
			Variance:      session.Variance,
			Session:       session,
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}

	d.log.Info().
		Str("expected", result.ExpectedCash.StringFixed(2)).
		Str("counted", result.CountedAmount.StringFixed(2)).
		Str("variance", result.Variance.StringFixed(2)).
		Msg("cash drawer closed")
	return result, nil
}

// Sessions returns closed shifts, newest first.
func (d *Drawer) Sessions(ctx context.Context, limit int) ([]domain.DrawerSession, error) {
	if limit <= 0 {
		limit = 50
	}
	sessions := []domain.DrawerSession{}
	err := d.db.SelectContext(ctx, &sessions, `SELECT id, initial_amount, opened_at, opened_by, closed_at, closed_by,
                expected_cash, counted_amount, variance FROM drawer_sessions ORDER BY closed_at DESC LIMIT ?`, limit)
	return sessions, err
}

func loadDrawer(ctx context.Context, q sqlx.QueryerContext) (domain.CashDrawerState, error) {
	var state domain.CashDrawerState
	err := sqlx.GetContext(ctx, q, &state, `SELECT is_open, initial_amount, opened_at, opened_by FROM cash_drawer WHERE id = 1`)
	if err != nil {
		return state, fmt.Errorf("load cash drawer: %w", err)
	}
	return state, nil
}

// expectedCash sums cash sales dated since opening, minus cash sales
// cancelled since opening. A sale made and voided in the same shift nets to
// zero.
func expectedCash(ctx context.Context, q sqlx.QueryerContext, state domain.CashDrawerState) (decimal.Decimal, error) {
	expected := state.InitialAmount
	if state.OpenedAt == nil {
		return expected, nil
	}
	since := state.OpenedAt.UTC()

	var sold []decimal.Decimal
	if err := sqlx.SelectContext(ctx, q, &sold, `SELECT total FROM sales WHERE payment_method = ? AND date >= ?`,
		domain.PaymentCash, since); err != nil {
		return decimal.Zero, fmt.Errorf("load cash sales: %w", err)
	}
	for _, t := range sold {
		expected = expected.Add(t)
	}

	var refunded []decimal.Decimal
	if err := sqlx.SelectContext(ctx, q, &refunded, `SELECT total FROM sales WHERE payment_method = ? AND status = ? AND cancelled_at >= ?`,
		domain.PaymentCash, domain.SaleCancelled, since); err != nil {
		return decimal.Zero, fmt.Errorf("load cash refunds: %w", err)
	}
	for _, t := range refunded {
		expected = expected.Sub(t)
	}
	return expected, nil
}
