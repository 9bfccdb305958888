package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farmacia/m/domain"
)

func TestCategoryNamesAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateCategory(ctx, CategoryInput{Name: "analgésicos"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	other, err := f.catalog.CreateCategory(ctx, CategoryInput{Name: "Antibióticos"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.catalog.UpdateCategory(ctx, other.ID, CategoryInput{Name: f.category.Name}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on rename, got %v", err)
	}
	renamed, err := f.catalog.UpdateCategory(ctx, other.ID, CategoryInput{Name: "Antibióticos", Description: "Uso con receta"})
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Description != "Uso con receta" {
		t.Errorf("description = %q", renamed.Description)
	}
}

func TestDeleteReferencedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.medication(t, "Paracetamol 500mg", 10, 2, nil)

	if err := f.catalog.DeleteCategory(ctx, f.category.ID); !errors.Is(err, domain.ErrInUse) {
		t.Fatalf("expected ErrInUse for category, got %v", err)
	}
	if err := f.catalog.DeleteSupplier(ctx, f.supplier.ID); !errors.Is(err, domain.ErrInUse) {
		t.Fatalf("expected ErrInUse for supplier, got %v", err)
	}

	unused, err := f.catalog.CreateSupplier(ctx, SupplierInput{Name: "Laboratorio Norte", Email: "Ventas@Norte.com"})
	if err != nil {
		t.Fatal(err)
	}
	if unused.Email != "ventas@norte.com" {
		t.Errorf("email not normalized: %q", unused.Email)
	}
	if err := f.catalog.DeleteSupplier(ctx, unused.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.catalog.GetSupplier(ctx, unused.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.catalog.DeleteSupplier(ctx, unused.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCreateMedicationValidation(t *testing.T) {
	f := newFixture(t)
	valid := MedicationInput{
		Name:       "Cetirizina 10mg",
		CategoryID: f.category.ID,
		SupplierID: f.supplier.ID,
		Quantity:   4,
		Price:      decimal.RequireFromString("3.25"),
	}

	tests := []struct {
		name    string
		mutate  func(*MedicationInput)
		wantErr error
	}{
		{"missing name", func(in *MedicationInput) { in.Name = " " }, domain.ErrValidationFailed},
		{"missing category", func(in *MedicationInput) { in.CategoryID = "" }, domain.ErrValidationFailed},
		{"unknown category", func(in *MedicationInput) { in.CategoryID = "nope" }, domain.ErrNotFound},
		{"unknown supplier", func(in *MedicationInput) { in.SupplierID = "nope" }, domain.ErrNotFound},
		{"negative quantity", func(in *MedicationInput) { in.Quantity = -1 }, domain.ErrInvalidQuantity},
		{"negative min stock", func(in *MedicationInput) { in.MinStock = -1 }, domain.ErrInvalidQuantity},
		{"negative price", func(in *MedicationInput) { in.Price = decimal.RequireFromString("-0.01") }, domain.ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if _, err := f.catalog.CreateMedication(context.Background(), in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	med, err := f.catalog.CreateMedication(context.Background(), valid)
	if err != nil {
		t.Fatal(err)
	}
	if med.InitialQuantity != 4 || med.Quantity != 4 || !med.Active {
		t.Errorf("unexpected medication: %+v", med)
	}
}

func TestUpdateMedicationKeepsQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	med := f.medication(t, "Aspirina 100mg", 10, 2, nil)

	updated, err := f.catalog.UpdateMedication(ctx, med.ID, MedicationInput{
		Name:       "Aspirina 100mg (caja)",
		CategoryID: f.category.ID,
		SupplierID: f.supplier.ID,
		Quantity:   999,
		MinStock:   4,
		Price:      decimal.RequireFromString("12.40"),
		Location:   "Estante B2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", updated.Quantity)
	}
	if !updated.Price.Equal(decimal.RequireFromString("12.40")) || updated.Location != "Estante B2" {
		t.Errorf("fields not updated: %+v", updated)
	}

	if _, err := f.catalog.UpdateMedication(ctx, "missing", MedicationInput{
		Name: "x", CategoryID: f.category.ID, SupplierID: f.supplier.ID,
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisabledMedicationsAreHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	med := f.medication(t, "Codeína jarabe", 6, 1, nil)
	f.medication(t, "Clorfenamina", 6, 1, nil)

	disabled, err := f.catalog.SetMedicationActive(ctx, med.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if disabled.Active {
		t.Fatal("medication still active")
	}

	visible, err := f.catalog.ListMedications(ctx, MedicationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 1 || visible[0].Name != "Clorfenamina" {
		t.Fatalf("unexpected active list: %+v", visible)
	}
	all, err := f.catalog.ListMedications(ctx, MedicationFilter{IncludeInactive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d medications including inactive, want 2", len(all))
	}
	search, err := f.catalog.ListMedications(ctx, MedicationFilter{Query: "clorfen"})
	if err != nil {
		t.Fatal(err)
	}
	if len(search) != 1 {
		t.Fatalf("search returned %d", len(search))
	}
}

func TestLowStockAndExpiring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	low := f.medication(t, "Enalapril 10mg", 3, 5, nil)
	atMin := f.medication(t, "Losartán 50mg", 5, 5, nil)
	f.medication(t, "Atorvastatina 20mg", 50, 5, nil)

	meds, err := f.catalog.LowStock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(meds) != 2 || meds[0].ID != low.ID || meds[1].ID != atMin.ID {
		t.Fatalf("unexpected low stock list: %+v", meds)
	}

	soon := f.medication(t, "Suero oral", 10, 1, day(2025, 3, 20))
	past := f.medication(t, "Pomada antibiótica", 2, 1, day(2025, 3, 1))
	f.medication(t, "Antiácido", 10, 1, day(2025, 6, 1))
	f.medication(t, "Gotas nasales", 0, 1, day(2025, 3, 12))

	expiring, err := f.catalog.Expiring(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(expiring) != 2 || expiring[0].ID != past.ID || expiring[1].ID != soon.ID {
		t.Fatalf("unexpected expiring list: %+v", expiring)
	}
}

func TestExpiryKeepsCallerCalendarDay(t *testing.T) {
	f := newFixture(t)
	lima := time.FixedZone("UTC-5", -5*60*60)
	late := time.Date(2025, 6, 30, 23, 0, 0, 0, lima)

	med := f.medication(t, "Vitamina C 1g", 5, 1, &late)
	stored, err := f.catalog.GetMedication(context.Background(), med.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	if stored.ExpiryDate == nil || !stored.ExpiryDate.Equal(want) {
		t.Fatalf("expiry = %v, want %v", stored.ExpiryDate, want)
	}
}
