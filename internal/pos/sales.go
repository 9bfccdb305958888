// Package pos implements the point-of-sale side of the core: pricing and
// processing sales, cancelling them and reconciling the cash drawer.
package pos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
	"farmacia/m/internal/inventory"
)

const saleColumns = `id, customer_name, customer_document, customer_email, subtotal, discount, tax, total,
        payment_method, status, cashier, date, cancelled_at, cancelled_by`

// CartLine is one requested product in a cart.
type CartLine struct {
	MedicationID string          `json:"medication_id"`
	Quantity     int64           `json:"quantity"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

// ProcessSale is the command that turns a cart into a completed sale.
type ProcessSale struct {
	Cart          []CartLine           `json:"items"`
	Customer      domain.Customer      `json:"customer"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Cashier       string               `json:"cashier"`
}

// CancelSale is the command that voids a completed sale.
type CancelSale struct {
	SaleID string `json:"sale_id"`
	UserID string `json:"user_id"`
}

// SaleProcessor prices carts and records sales. Stock is only ever
// deducted through the ledger.
type SaleProcessor struct {
	db     *sqlx.DB
	ledger *inventory.Ledger
	log    zerolog.Logger
	now    func() time.Time
}

// NewSaleProcessor constructs a SaleProcessor.
func NewSaleProcessor(db *sqlx.DB, ledger *inventory.Ledger, log zerolog.Logger, opts ...Option) *SaleProcessor {
	s := applyOptions(opts)
	return &SaleProcessor{db: db, ledger: ledger, log: log, now: s.now}
}

// Quote validates a cart against a consistent stock snapshot and returns
// its totals. Nothing is written.
func (p *SaleProcessor) Quote(ctx context.Context, cart []CartLine) (domain.Totals, error) {
	var totals domain.Totals
	err := database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		lines, err := priceCart(ctx, tx, cart)
		if err != nil {
			return err
		}
		totals = computeTotals(lines)
		return nil
	})
	return totals, err
}

// Process re-validates the cart, records the sale and deducts stock for
// every line in one transaction. Either everything is written or nothing
// is.
func (p *SaleProcessor) Process(ctx context.Context, cmd ProcessSale) (domain.Sale, error) {
	const op = "sales.Process"
	if !cmd.PaymentMethod.Valid() {
		return domain.Sale{}, domain.NewOpError(op, domain.ErrValidationFailed, "unknown payment method %q", cmd.PaymentMethod)
	}
	cashier := strings.TrimSpace(cmd.Cashier)
	if cashier == "" {
		return domain.Sale{}, domain.NewOpError(op, domain.ErrValidationFailed, "cashier is required")
	}

	var sale domain.Sale
	err := database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		lines, err := priceCart(ctx, tx, cmd.Cart)
		if err != nil {
			return err
		}
		totals := computeTotals(lines)
		sale = domain.Sale{
			ID:               uuid.NewString(),
			CustomerName:     strings.TrimSpace(cmd.Customer.Name),
			CustomerDocument: strings.TrimSpace(cmd.Customer.Document),
			CustomerEmail:    strings.ToLower(strings.TrimSpace(cmd.Customer.Email)),
			Subtotal:         totals.Subtotal,
			Discount:         totals.Discount,
			Tax:              totals.Tax,
			Total:            totals.Total,
			PaymentMethod:    cmd.PaymentMethod,
			Status:           domain.SaleCompleted,
			Cashier:          cashier,
			Date:             p.now().UTC(),
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO sales (`+saleColumns+`)
                VALUES (:id, :customer_name, :customer_document, :customer_email, :subtotal, :discount, :tax, :total,
                :payment_method, :status, :cashier, :date, :cancelled_at, :cancelled_by)`, sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		for i, l := range lines {
			item := domain.SaleItem{
				SaleID:       sale.ID,
				Line:         i + 1,
				MedicationID: l.med.ID,
				Name:         l.med.Name,
				UnitPrice:    l.med.Price,
				Quantity:     l.quantity,
				LineDiscount: l.lineDiscount,
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO sale_items (sale_id, line, medication_id, name, unit_price, quantity, line_discount)
                VALUES (:sale_id, :line, :medication_id, :name, :unit_price, :quantity, :line_discount)`, item); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
			if _, err := p.ledger.AppendTx(ctx, tx, inventory.AppendEntry{
				MedicationID: l.med.ID,
				Kind:         domain.KindSalida,
				Quantity:     l.quantity,
				Reason:       domain.ReasonSale,
				Reference:    sale.ID,
				UserID:       cashier,
			}); err != nil {
				return err
			}
			sale.Items = append(sale.Items, item)
		}
		return nil
	})
	if err != nil {
		p.log.Warn().Err(err).Str("cashier", cashier).Msg("sale rejected")
		return domain.Sale{}, err
	}

	p.log.Info().
		Str("sale_id", sale.ID).
		Str("total", sale.Total.StringFixed(2)).
		Str("payment_method", string(sale.PaymentMethod)).
		Int("lines", len(sale.Items)).
		Msg("sale processed")
	return sale, nil
}

// Cancel voids a completed sale and returns every sold unit to stock with
// a sale-return entry, atomically with the status change.
func (p *SaleProcessor) Cancel(ctx context.Context, cmd CancelSale) (domain.Sale, error) {
	const op = "sales.Cancel"
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Sale{}, domain.NewOpError(op, domain.ErrValidationFailed, "user_id is required")
	}

	var sale domain.Sale
	err := database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		var err error
		sale, err = loadSale(ctx, tx, cmd.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleCompleted {
			return domain.NewOpError(op, domain.ErrInvalidStateTransition, "sale %s is %s", sale.ID, sale.Status)
		}

		for _, item := range sale.Items {
			if _, err := p.ledger.AppendTx(ctx, tx, inventory.AppendEntry{
				MedicationID: item.MedicationID,
				Kind:         domain.KindDevolucionVenta,
				Quantity:     item.Quantity,
				Reason:       domain.ReasonSaleCancelled,
				Reference:    sale.ID,
				UserID:       userID,
			}); err != nil {
				return err
			}
		}

		now := p.now().UTC()
		res, err := tx.ExecContext(ctx, `UPDATE sales SET status = ?, cancelled_at = ?, cancelled_by = ? WHERE id = ? AND status = ?`,
			domain.SaleCancelled, now, userID, sale.ID, domain.SaleCompleted)
		if err != nil {
			return fmt.Errorf("update sale status: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.NewOpError(op, domain.ErrInvalidStateTransition, "sale %s changed concurrently", sale.ID)
		}
		sale.Status = domain.SaleCancelled
		sale.CancelledAt = &now
		sale.CancelledBy = userID
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	p.log.Info().Str("sale_id", sale.ID).Str("user_id", userID).Msg("sale cancelled")
	return sale, nil
}

// Get returns a sale with its items.
func (p *SaleProcessor) Get(ctx context.Context, id string) (domain.Sale, error) {
	return loadSale(ctx, p.db, id)
}

// SaleFilter narrows List. Zero values mean unbounded.
type SaleFilter struct {
	From   time.Time
	To     time.Time
	Status domain.SaleStatus
}

// List returns sales newest first, each with its items.
func (p *SaleProcessor) List(ctx context.Context, f SaleFilter) ([]domain.Sale, error) {
	var (
		clauses []string
		args    []any
	)
	if !f.From.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "date < ?")
		args = append(args, f.To.UTC())
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date DESC"

	sales := []domain.Sale{}
	if err := p.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
	}
	itemsQuery, itemsArgs, err := sqlx.In(`SELECT sale_id, line, medication_id, name, unit_price, quantity, line_discount
                FROM sale_items WHERE sale_id IN (?) ORDER BY sale_id, line`, ids)
	if err != nil {
		return nil, fmt.Errorf("prepare sale items query: %w", err)
	}
	var rows []domain.SaleItem
	if err := p.db.SelectContext(ctx, &rows, p.db.Rebind(itemsQuery), itemsArgs...); err != nil {
		return nil, fmt.Errorf("load sale items: %w", err)
	}
	itemsBySale := make(map[string][]domain.SaleItem)
	for _, row := range rows {
		itemsBySale[row.SaleID] = append(itemsBySale[row.SaleID], row)
	}
	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
	}
	return sales, nil
}

// Summary aggregates completed sales dated in [from, to).
func (p *SaleProcessor) Summary(ctx context.Context, from, to time.Time) (domain.SalesSummary, error) {
	var totals []decimal.Decimal
	err := p.db.SelectContext(ctx, &totals, `SELECT total FROM sales WHERE status = ? AND date >= ? AND date < ?`,
		domain.SaleCompleted, from.UTC(), to.UTC())
	if err != nil {
		return domain.SalesSummary{}, fmt.Errorf("summarize sales: %w", err)
	}
	summary := domain.SalesSummary{Revenue: decimal.Zero, Count: int64(len(totals))}
	for _, t := range totals {
		summary.Revenue = summary.Revenue.Add(t)
	}
	return summary, nil
}

func loadSale(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Sale, error) {
	var sale domain.Sale
	err := sqlx.GetContext(ctx, q, &sale, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return sale, domain.NewOpError("sales.Get", domain.ErrNotFound, "sale %s", id)
	}
	if err != nil {
		return sale, err
	}
	if err := sqlx.SelectContext(ctx, q, &sale.Items, `SELECT sale_id, line, medication_id, name, unit_price, quantity, line_discount
                FROM sale_items WHERE sale_id = ? ORDER BY line`, id); err != nil {
		return sale, fmt.Errorf("load sale items: %w", err)
	}
	return sale, nil
}

// priceCart validates every line and checks aggregated quantities against
// the stock visible to q. It reads only.
func priceCart(ctx context.Context, q sqlx.QueryerContext, cart []CartLine) ([]pricedLine, error) {
	const op = "sales.Quote"
	if len(cart) == 0 {
		return nil, domain.NewOpError(op, domain.ErrValidationFailed, "cart is empty")
	}

	lines := make([]pricedLine, 0, len(cart))
	requested := make(map[string]int64, len(cart))
	for i, c := range cart {
		switch {
		case strings.TrimSpace(c.MedicationID) == "":
			return nil, domain.NewOpError(op, domain.ErrValidationFailed, "line %d: medication_id is required", i+1)
		case c.Quantity <= 0:
			return nil, domain.NewOpError(op, domain.ErrInvalidQuantity, "line %d: quantity must be positive", i+1)
		case c.LineDiscount.IsNegative():
			return nil, domain.NewOpError(op, domain.ErrValidationFailed, "line %d: discount must not be negative", i+1)
		}
		med, err := inventory.FindMedication(ctx, q, c.MedicationID)
		if err != nil {
			return nil, err
		}
		if !med.Active {
			return nil, domain.NewOpError(op, domain.ErrNotFound, "medication %s is disabled", med.ID)
		}
		if c.LineDiscount.GreaterThan(med.Price) {
			return nil, domain.NewOpError(op, domain.ErrValidationFailed, "line %d: discount exceeds unit price", i+1)
		}
		// Compared by subtraction so repeated lines cannot wrap the total.
		if prior := requested[med.ID]; c.Quantity > med.Quantity || prior > med.Quantity-c.Quantity {
			want := c.Quantity
			if c.Quantity <= med.Quantity {
				want = prior + c.Quantity
			}
			return nil, &domain.StockError{
				MedicationID: med.ID,
				Name:         med.Name,
				Requested:    want,
				Available:    med.Quantity,
			}
		}
		requested[med.ID] += c.Quantity
		lines = append(lines, pricedLine{med: med, quantity: c.Quantity, lineDiscount: c.LineDiscount})
	}
	return lines, nil
}
