package pos

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
	"farmacia/m/internal/inventory"
	"farmacia/m/internal/logger"
	"farmacia/m/internal/migrations"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	db       *sqlx.DB
	clock    *testClock
	catalog  *inventory.Catalog
	ledger   *inventory.Ledger
	sales    *SaleProcessor
	drawer   *Drawer
	category domain.Category
	supplier domain.Supplier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := &testClock{t: baseTime}
	ledger := inventory.NewLedger(db, logger.Nop(), inventory.WithClock(clock.now))
	f := &fixture{
		db:      db,
		clock:   clock,
		catalog: inventory.NewCatalog(db, logger.Nop(), inventory.WithClock(clock.now)),
		ledger:  ledger,
		sales:   NewSaleProcessor(db, ledger, logger.Nop(), WithClock(clock.now)),
		drawer:  NewDrawer(db, logger.Nop(), WithClock(clock.now)),
	}

	ctx := context.Background()
	if f.category, err = f.catalog.CreateCategory(ctx, inventory.CategoryInput{Name: "General"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if f.supplier, err = f.catalog.CreateSupplier(ctx, inventory.SupplierInput{Name: "Droguería Central"}); err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return f
}

func (f *fixture) medication(t *testing.T, name string, qty int64, price string) domain.Medication {
	t.Helper()
	med, err := f.catalog.CreateMedication(context.Background(), inventory.MedicationInput{
		Name:       name,
		CategoryID: f.category.ID,
		SupplierID: f.supplier.ID,
		Quantity:   qty,
		MinStock:   1,
		Price:      decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("create medication %s: %v", name, err)
	}
	return med
}

func (f *fixture) quantity(t *testing.T, id string) int64 {
	t.Helper()
	med, err := f.catalog.GetMedication(context.Background(), id)
	if err != nil {
		t.Fatalf("get medication: %v", err)
	}
	return med.Quantity
}

func (f *fixture) sell(t *testing.T, method domain.PaymentMethod, lines ...CartLine) domain.Sale {
	t.Helper()
	sale, err := f.sales.Process(context.Background(), ProcessSale{Cart: lines, PaymentMethod: method, Cashier: "cajero"})
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	return sale
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
