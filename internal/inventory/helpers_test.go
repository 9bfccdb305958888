package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
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
	catalog  *Catalog
	ledger   *Ledger
	sweep    *ReturnSweep
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
	f := &fixture{
		db:      db,
		clock:   clock,
		catalog: NewCatalog(db, logger.Nop(), WithClock(clock.now)),
		ledger:  NewLedger(db, logger.Nop(), WithClock(clock.now)),
	}
	f.sweep = NewReturnSweep(db, f.ledger, logger.Nop())

	ctx := context.Background()
	if f.category, err = f.catalog.CreateCategory(ctx, CategoryInput{Name: "Analgésicos"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if f.supplier, err = f.catalog.CreateSupplier(ctx, SupplierInput{Name: "Droguería Central"}); err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return f
}

func (f *fixture) medication(t *testing.T, name string, qty, minStock int64, expiry *time.Time) domain.Medication {
	t.Helper()
	med, err := f.catalog.CreateMedication(context.Background(), MedicationInput{
		Name:       name,
		CategoryID: f.category.ID,
		SupplierID: f.supplier.ID,
		Quantity:   qty,
		MinStock:   minStock,
		Price:      decimal.RequireFromString("10.00"),
		ExpiryDate: expiry,
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

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
