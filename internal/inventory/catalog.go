// Package inventory holds the medication catalog, the append-only stock
// ledger and the expired-stock return sweep.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
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

const medicationColumns = `id, name, active_ingredient, batch, category_id, supplier_id, quantity, initial_quantity,
        min_stock, price, expiry_date, location, active, created_at, updated_at`

// Catalog stores medications, categories and suppliers. It never changes a
// medication's quantity after creation; that belongs to the Ledger.
type Catalog struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
}

// NewCatalog constructs a Catalog.
func NewCatalog(db *sqlx.DB, log zerolog.Logger, opts ...Option) *Catalog {
	s := applyOptions(opts)
	return &Catalog{db: db, log: log, now: s.now}
}

// Categories

type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *Catalog) CreateCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	const op = "catalog.CreateCategory"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Category{}, domain.NewOpError(op, domain.ErrValidationFailed, "name is required")
	}
	cat := domain.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   c.now().UTC(),
	}
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		if err := ensureUniqueName(ctx, tx, op, "categories", name, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO categories (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
			cat.ID, cat.Name, cat.Description, cat.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Category{}, err
	}
	return cat, nil
}

func (c *Catalog) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var cat domain.Category
	err := c.db.GetContext(ctx, &cat, `SELECT id, name, description, created_at FROM categories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return cat, domain.NewOpError("catalog.GetCategory", domain.ErrNotFound, "category %s", id)
	}
	return cat, err
}

func (c *Catalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cats := []domain.Category{}
	err := c.db.SelectContext(ctx, &cats, `SELECT id, name, description, created_at FROM categories ORDER BY name`)
	return cats, err
}

func (c *Catalog) UpdateCategory(ctx context.Context, id string, in CategoryInput) (domain.Category, error) {
	const op = "catalog.UpdateCategory"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Category{}, domain.NewOpError(op, domain.ErrValidationFailed, "name is required")
	}
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		if err := ensureUniqueName(ctx, tx, op, "categories", name, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE categories SET name = ?, description = ? WHERE id = ?`,
			name, strings.TrimSpace(in.Description), id)
		if err != nil {
			return err
		}
		return requireAffected(res, op, "category %s", id)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return c.GetCategory(ctx, id)
}

// DeleteCategory removes a category that no medication references.
func (c *Catalog) DeleteCategory(ctx context.Context, id string) error {
	return c.deleteReferenced(ctx, "catalog.DeleteCategory", "categories", "category_id", id)
}

// Suppliers

type SupplierInput struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	TaxID   string `json:"tax_id"`
}

func (c *Catalog) CreateSupplier(ctx context.Context, in SupplierInput) (domain.Supplier, error) {
	const op = "catalog.CreateSupplier"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Supplier{}, domain.NewOpError(op, domain.ErrValidationFailed, "name is required")
	}
	sup := domain.Supplier{
		ID:        uuid.NewString(),
		Name:      name,
		Contact:   strings.TrimSpace(in.Contact),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		TaxID:     strings.TrimSpace(in.TaxID),
		CreatedAt: c.now().UTC(),
	}
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		if err := ensureUniqueName(ctx, tx, op, "suppliers", name, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO suppliers (id, name, contact, phone, email, tax_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sup.ID, sup.Name, sup.Contact, sup.Phone, sup.Email, sup.TaxID, sup.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return sup, nil
}

func (c *Catalog) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	var sup domain.Supplier
	err := c.db.GetContext(ctx, &sup, `SELECT id, name, contact, phone, email, tax_id, created_at FROM suppliers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return sup, domain.NewOpError("catalog.GetSupplier", domain.ErrNotFound, "supplier %s", id)
	}
	return sup, err
}

func (c *Catalog) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	sups := []domain.Supplier{}
	err := c.db.SelectContext(ctx, &sups, `SELECT id, name, contact, phone, email, tax_id, created_at FROM suppliers ORDER BY name`)
	return sups, err
}

func (c *Catalog) UpdateSupplier(ctx context.Context, id string, in SupplierInput) (domain.Supplier, error) {
	const op = "catalog.UpdateSupplier"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Supplier{}, domain.NewOpError(op, domain.ErrValidationFailed, "name is required")
	}
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		if err := ensureUniqueName(ctx, tx, op, "suppliers", name, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE suppliers SET name = ?, contact = ?, phone = ?, email = ?, tax_id = ? WHERE id = ?`,
			name, strings.TrimSpace(in.Contact), strings.TrimSpace(in.Phone),
			strings.ToLower(strings.TrimSpace(in.Email)), strings.TrimSpace(in.TaxID), id)
		if err != nil {
			return err
		}
		return requireAffected(res, op, "supplier %s", id)
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return c.GetSupplier(ctx, id)
}

// DeleteSupplier removes a supplier that no medication references.
func (c *Catalog) DeleteSupplier(ctx context.Context, id string) error {
	return c.deleteReferenced(ctx, "catalog.DeleteSupplier", "suppliers", "supplier_id", id)
}

func (c *Catalog) deleteReferenced(ctx context.Context, op, table, column, id string) error {
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		var refs int64
		if err := tx.GetContext(ctx, &refs, `SELECT COUNT(*) FROM medications WHERE `+column+` = ?`, id); err != nil {
			return err
		}
		if refs > 0 {
			return domain.NewOpError(op, domain.ErrInUse, "%d medications reference %s", refs, id)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, op, "%s", id)
	})
	if err == nil {
		c.log.Info().Str("table", table).Str("id", id).Msg("catalog record deleted")
	}
	return err
}

// Medications

// MedicationInput carries the descriptive fields of a medication. Quantity
// is only honoured on creation, as the initial stock.
type MedicationInput struct {
	Name             string          `json:"name"`
	ActiveIngredient string          `json:"active_ingredient"`
	Batch            string          `json:"batch"`
	CategoryID       string          `json:"category_id"`
	SupplierID       string          `json:"supplier_id"`
	Quantity         int64           `json:"quantity"`
	MinStock         int64           `json:"min_stock"`
	Price            decimal.Decimal `json:"price"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	Location         string          `json:"location"`
}

func (in MedicationInput) validate(op string) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return domain.NewOpError(op, domain.ErrValidationFailed, "name is required")
	case in.CategoryID == "" || in.SupplierID == "":
		return domain.NewOpError(op, domain.ErrValidationFailed, "category_id and supplier_id are required")
	case in.Quantity < 0:
		return domain.NewOpError(op, domain.ErrInvalidQuantity, "quantity must not be negative")
	case in.MinStock < 0:
		return domain.NewOpError(op, domain.ErrInvalidQuantity, "min_stock must not be negative")
	case in.Price.IsNegative():
		return domain.NewOpError(op, domain.ErrValidationFailed, "price must not be negative")
	}
	return nil
}

func (c *Catalog) ensureRefs(ctx context.Context, tx *sqlx.Tx, op string, in MedicationInput) error {
	var n int64
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM categories WHERE id = ?`, in.CategoryID); err != nil {
		return err
	}
	if n == 0 {
		return domain.NewOpError(op, domain.ErrNotFound, "category %s", in.CategoryID)
	}
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM suppliers WHERE id = ?`, in.SupplierID); err != nil {
		return err
	}
	if n == 0 {
		return domain.NewOpError(op, domain.ErrNotFound, "supplier %s", in.SupplierID)
	}
	return nil
}

// CreateMedication adds a medication with its initial stock.
func (c *Catalog) CreateMedication(ctx context.Context, in MedicationInput) (domain.Medication, error) {
	const op = "catalog.CreateMedication"
	if err := in.validate(op); err != nil {
		return domain.Medication{}, err
	}
	now := c.now().UTC()
	med := domain.Medication{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(in.Name),
		ActiveIngredient: strings.TrimSpace(in.ActiveIngredient),
		Batch:            strings.TrimSpace(in.Batch),
		CategoryID:       in.CategoryID,
		SupplierID:       in.SupplierID,
		Quantity:         in.Quantity,
		InitialQuantity:  in.Quantity,
		MinStock:         in.MinStock,
		Price:            in.Price,
		ExpiryDate:       normalizeDate(in.ExpiryDate),
		Location:         strings.TrimSpace(in.Location),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		if err := c.ensureRefs(ctx, tx, op, in); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO medications (`+medicationColumns+`)
                VALUES (:id, :name, :active_ingredient, :batch, :category_id, :supplier_id, :quantity, :initial_quantity,
                :min_stock, :price, :expiry_date, :location, :active, :created_at, :updated_at)`, med)
		return err
	})
	if err != nil {
		return domain.Medication{}, err
	}
	c.log.Info().Str("medication_id", med.ID).Str("name", med.Name).Int64("quantity", med.Quantity).Msg("medication created")
	return med, nil
}

func (c *Catalog) GetMedication(ctx context.Context, id string) (domain.Medication, error) {
	return FindMedication(ctx, c.db, id)
}

// FindMedication loads a medication through any query runner, including
// a transaction owned by another service.
func FindMedication(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Medication, error) {
	var med domain.Medication
	err := sqlx.GetContext(ctx, q, &med, `SELECT `+medicationColumns+` FROM medications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return med, domain.NewOpError("catalog.GetMedication", domain.ErrNotFound, "medication %s", id)
	}
	return med, err
}

// MedicationFilter narrows ListMedications.
type MedicationFilter struct {
	Query           string
	CategoryID      string
	SupplierID      string
	IncludeInactive bool
}

func (c *Catalog) ListMedications(ctx context.Context, f MedicationFilter) ([]domain.Medication, error) {
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeInactive {
		clauses = append(clauses, "active = 1")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		clauses = append(clauses, "(name LIKE ? OR active_ingredient LIKE ?)")
		args = append(args, like, like)
	}
	if f.CategoryID != "" {
		clauses = append(clauses, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.SupplierID != "" {
		clauses = append(clauses, "supplier_id = ?")
		args = append(args, f.SupplierID)
	}
	query := `SELECT ` + medicationColumns + ` FROM medications`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name"

	meds := []domain.Medication{}
	if err := c.db.SelectContext(ctx, &meds, query, args...); err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	return meds, nil
}

// UpdateMedication edits descriptive fields. Quantity in the input is
// ignored.
func (c *Catalog) UpdateMedication(ctx context.Context, id string, in MedicationInput) (domain.Medication, error) {
	const op = "catalog.UpdateMedication"
	in.Quantity = 0
	if err := in.validate(op); err != nil {
		return domain.Medication{}, err
	}
	err := database.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		if err := c.ensureRefs(ctx, tx, op, in); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE medications SET name = ?, active_ingredient = ?, batch = ?, category_id = ?,
                supplier_id = ?, min_stock = ?, price = ?, expiry_date = ?, location = ?, updated_at = ? WHERE id = ?`,
			strings.TrimSpace(in.Name), strings.TrimSpace(in.ActiveIngredient), strings.TrimSpace(in.Batch),
			in.CategoryID, in.SupplierID, in.MinStock, in.Price, normalizeDate(in.ExpiryDate),
			strings.TrimSpace(in.Location), c.now().UTC(), id)
		if err != nil {
			return err
		}
		return requireAffected(res, op, "medication %s", id)
	})
	if err != nil {
		return domain.Medication{}, err
	}
	return c.GetMedication(ctx, id)
}

// SetMedicationActive soft-disables or re-enables a medication. Inactive
// medications cannot be sold but keep their history.
func (c *Catalog) SetMedicationActive(ctx context.Context, id string, active bool) (domain.Medication, error) {
	res, err := c.db.ExecContext(ctx, `UPDATE medications SET active = ?, updated_at = ? WHERE id = ?`, active, c.now().UTC(), id)
	if err != nil {
		return domain.Medication{}, err
	}
	if err := requireAffected(res, "catalog.SetMedicationActive", "medication %s", id); err != nil {
		return domain.Medication{}, err
	}
	c.log.Info().Str("medication_id", id).Bool("active", active).Msg("medication status changed")
	return c.GetMedication(ctx, id)
}

// LowStock lists active medications at or below their minimum stock.
func (c *Catalog) LowStock(ctx context.Context) ([]domain.Medication, error) {
	meds := []domain.Medication{}
	err := c.db.SelectContext(ctx, &meds, `SELECT `+medicationColumns+` FROM medications
                WHERE active = 1 AND quantity <= min_stock ORDER BY quantity ASC, name`)
	return meds, err
}

// Expiring lists stocked medications whose expiry date falls within the
// given number of days from today, soonest first. Already expired items
// are included.
func (c *Catalog) Expiring(ctx context.Context, days int) ([]domain.Medication, error) {
	if days <= 0 {
		days = 30
	}
	limit := domain.StartOfDay(c.now()).AddDate(0, 0, days+1)
	var candidates []domain.Medication
	if err := c.db.SelectContext(ctx, &candidates, `SELECT `+medicationColumns+` FROM medications
                WHERE expiry_date IS NOT NULL AND quantity > 0`); err != nil {
		return nil, err
	}
	meds := []domain.Medication{}
	for _, m := range candidates {
		if m.ExpiryDate.Before(limit) {
			meds = append(meds, m)
		}
	}
	sortByExpiry(meds)
	return meds, nil
}

// Helpers

func ensureUniqueName(ctx context.Context, tx *sqlx.Tx, op, table, name, exceptID string) error {
	var n int64
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table+` WHERE name = ? COLLATE NOCASE AND id <> ?`, name, exceptID)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.NewOpError(op, domain.ErrConflict, "name %q", name)
	}
	return nil
}

func sortByExpiry(meds []domain.Medication) {
	slices.SortFunc(meds, func(a, b domain.Medication) int {
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func requireAffected(res sql.Result, op, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewOpError(op, domain.ErrNotFound, format, args...)
	}
	return nil
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	// The calendar day is read in the caller's zone, then stored as UTC midnight.
	y, m, dd := t.Date()
	d := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	return &d
}
