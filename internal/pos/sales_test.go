package pos

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"farmacia/m/domain"
	"farmacia/m/internal/inventory"
)

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name  string
		lines []pricedLine
		want  domain.Totals
	}{
		{
			name:  "single line without discount",
			lines: []pricedLine{{med: domain.Medication{Price: dec("10.00")}, quantity: 3, lineDiscount: dec("0")}},
			want:  domain.Totals{Subtotal: dec("30"), Discount: dec("0"), Tax: dec("4.5"), Total: dec("34.5")},
		},
		{
			name:  "per-unit discount",
			lines: []pricedLine{{med: domain.Medication{Price: dec("9.99")}, quantity: 3, lineDiscount: dec("0.50")}},
			want:  domain.Totals{Subtotal: dec("29.97"), Discount: dec("1.5"), Tax: dec("4.27"), Total: dec("32.74")},
		},
		{
			name: "total is rounded and tax absorbs the rounding",
			lines: []pricedLine{
				{med: domain.Medication{Price: dec("0.33")}, quantity: 1, lineDiscount: dec("0")},
			},
			want: domain.Totals{Subtotal: dec("0.33"), Discount: dec("0"), Tax: dec("0.05"), Total: dec("0.38")},
		},
		{
			name: "several lines",
			lines: []pricedLine{
				{med: domain.Medication{Price: dec("2.50")}, quantity: 4, lineDiscount: dec("0.25")},
				{med: domain.Medication{Price: dec("15.00")}, quantity: 1, lineDiscount: dec("0")},
			},
			want: domain.Totals{Subtotal: dec("25"), Discount: dec("1"), Tax: dec("3.6"), Total: dec("27.6")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeTotals(tt.lines)
			if !got.Subtotal.Equal(tt.want.Subtotal) || !got.Discount.Equal(tt.want.Discount) ||
				!got.Tax.Equal(tt.want.Tax) || !got.Total.Equal(tt.want.Total) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if !got.Total.Equal(got.Subtotal.Sub(got.Discount).Add(got.Tax)) {
				t.Fatalf("total %s != subtotal - discount + tax", got.Total)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	m1 := f.medication(t, "Paracetamol 500mg", 10, "10.00")

	totals, err := f.sales.Quote(context.Background(), []CartLine{{MedicationID: m1.ID, Quantity: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if !totals.Subtotal.Equal(dec("30.00")) || !totals.Discount.IsZero() ||
		!totals.Tax.Equal(dec("4.50")) || !totals.Total.Equal(dec("34.50")) {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if got := f.quantity(t, m1.ID); got != 10 {
		t.Fatalf("quote changed stock to %d", got)
	}
}

func TestQuoteValidation(t *testing.T) {
	f := newFixture(t)
	m1 := f.medication(t, "Ibuprofeno 400mg", 4, "5.00")
	disabled := f.medication(t, "Codeína", 4, "5.00")
	if _, err := f.catalog.SetMedicationActive(context.Background(), disabled.ID, false); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cart    []CartLine
		wantErr error
	}{
		{"empty cart", nil, domain.ErrValidationFailed},
		{"zero quantity", []CartLine{{MedicationID: m1.ID, Quantity: 0}}, domain.ErrInvalidQuantity},
		{"unknown medication", []CartLine{{MedicationID: "nope", Quantity: 1}}, domain.ErrNotFound},
		{"disabled medication", []CartLine{{MedicationID: disabled.ID, Quantity: 1}}, domain.ErrNotFound},
		{"negative discount", []CartLine{{MedicationID: m1.ID, Quantity: 1, LineDiscount: dec("-1")}}, domain.ErrValidationFailed},
		{"discount above price", []CartLine{{MedicationID: m1.ID, Quantity: 1, LineDiscount: dec("5.01")}}, domain.ErrValidationFailed},
		{"over stock", []CartLine{{MedicationID: m1.ID, Quantity: 5}}, domain.ErrInsufficientStock},
		{
			"repeated lines are summed",
			[]CartLine{{MedicationID: m1.ID, Quantity: 3}, {MedicationID: m1.ID, Quantity: 2}},
			domain.ErrInsufficientStock,
		},
		{
			"repeated lines near the integer limit",
			[]CartLine{{MedicationID: m1.ID, Quantity: math.MaxInt64}, {MedicationID: m1.ID, Quantity: 2}},
			domain.ErrInsufficientStock,
		},
		{
			"second line overflows a valid first",
			[]CartLine{{MedicationID: m1.ID, Quantity: 2}, {MedicationID: m1.ID, Quantity: math.MaxInt64}},
			domain.ErrInsufficientStock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.sales.Quote(context.Background(), tt.cart); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProcessDeductsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.medication(t, "Amoxicilina 500mg", 10, "4.00")
	m2 := f.medication(t, "Loratadina 10mg", 5, "2.00")

	sale, err := f.sales.Process(ctx, ProcessSale{
		Cart: []CartLine{
			{MedicationID: m1.ID, Quantity: 2},
			{MedicationID: m2.ID, Quantity: 1, LineDiscount: dec("0.50")},
		},
		Customer:      domain.Customer{Name: " Ana Pérez ", Email: "ANA@MAIL.COM"},
		PaymentMethod: domain.PaymentCard,
		Cashier:       "cajero",
	})
	if err != nil {
		t.Fatal(err)
	}
	if sale.Status != domain.SaleCompleted || len(sale.Items) != 2 {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	if sale.CustomerName != "Ana Pérez" || sale.CustomerEmail != "ana@mail.com" {
		t.Errorf("customer not normalized: %q %q", sale.CustomerName, sale.CustomerEmail)
	}
	// 8.00 + 1.50 = 9.50 base, 10.925 -> 10.93
	if !sale.Total.Equal(dec("10.93")) {
		t.Errorf("total = %s", sale.Total)
	}
	if got := f.quantity(t, m1.ID); got != 8 {
		t.Errorf("m1 quantity = %d, want 8", got)
	}
	if got := f.quantity(t, m2.ID); got != 4 {
		t.Errorf("m2 quantity = %d, want 4", got)
	}

	history, err := f.ledger.HistoryFor(ctx, m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Kind != domain.KindSalida || history[0].Reference != sale.ID ||
		history[0].Reason != domain.ReasonSale || history[0].UserID != "cajero" {
		t.Fatalf("unexpected ledger entry: %+v", history)
	}

	stored, err := f.sales.Get(ctx, sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Total.Equal(sale.Total) || len(stored.Items) != 2 || stored.Items[1].Name != "Loratadina 10mg" {
		t.Fatalf("stored sale differs: %+v", stored)
	}
}

func TestProcessIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.medication(t, "Omeprazol 20mg", 2, "6.00")
	m2 := f.medication(t, "Diclofenaco 50mg", 5, "3.00")

	_, err := f.sales.Process(ctx, ProcessSale{
		Cart: []CartLine{
			{MedicationID: m2.ID, Quantity: 1},
			{MedicationID: m1.ID, Quantity: 3},
		},
		PaymentMethod: domain.PaymentCash,
		Cashier:       "cajero",
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *domain.StockError
	if !errors.As(err, &stockErr) || stockErr.MedicationID != m1.ID {
		t.Fatalf("stock error should name %s: %v", m1.ID, err)
	}

	if got := f.quantity(t, m1.ID); got != 2 {
		t.Errorf("m1 quantity = %d, want 2", got)
	}
	if got := f.quantity(t, m2.ID); got != 5 {
		t.Errorf("m2 quantity = %d, want 5", got)
	}
	sales, err := f.sales.List(ctx, SaleFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 0 {
		t.Fatalf("failed sale was recorded: %+v", sales)
	}
	entries, err := f.ledger.List(ctx, inventory.LedgerFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed sale left %d ledger entries", len(entries))
	}
}

func TestProcessRollsBackAfterItemsWritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.medication(t, "Atorvastatina 20mg", 8, "7.00")
	m2 := f.medication(t, "Salbutamol inhalador", 3, "12.00")

	// The first line is fully written before the second line's ledger
	// insert is refused.
	if _, err := f.db.Exec(`CREATE TRIGGER refuse_ledger BEFORE INSERT ON ledger_entries
		WHEN NEW.medication_id = '` + m2.ID + `'
		BEGIN SELECT RAISE(ABORT, 'ledger unavailable'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err := f.sales.Process(ctx, ProcessSale{
		Cart: []CartLine{
			{MedicationID: m1.ID, Quantity: 5},
			{MedicationID: m2.ID, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCard,
		Cashier:       "cajero",
	})
	if err == nil {
		t.Fatal("expected the sale to fail")
	}

	if got := f.quantity(t, m1.ID); got != 8 {
		t.Errorf("m1 quantity = %d, want 8", got)
	}
	if got := f.quantity(t, m2.ID); got != 3 {
		t.Errorf("m2 quantity = %d, want 3", got)
	}
	for _, table := range []string{"sales", "sale_items", "ledger_entries"} {
		var n int
		if err := f.db.Get(&n, `SELECT COUNT(*) FROM `+table); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after a failed sale", table, n)
		}
	}
}

func TestProcessValidation(t *testing.T) {
	f := newFixture(t)
	m1 := f.medication(t, "Cetirizina", 5, "3.00")
	cart := []CartLine{{MedicationID: m1.ID, Quantity: 1}}

	tests := []struct {
		name string
		cmd  ProcessSale
	}{
		{"unknown payment method", ProcessSale{Cart: cart, PaymentMethod: "cheque", Cashier: "cajero"}},
		{"missing cashier", ProcessSale{Cart: cart, PaymentMethod: domain.PaymentCash, Cashier: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.sales.Process(context.Background(), tt.cmd); !errors.Is(err, domain.ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.medication(t, "Metformina 850mg", 10, "1.20")
	m2 := f.medication(t, "Enalapril 10mg", 6, "0.80")

	sale := f.sell(t, domain.PaymentCash,
		CartLine{MedicationID: m1.ID, Quantity: 4},
		CartLine{MedicationID: m2.ID, Quantity: 6},
	)
	f.clock.advance(5 * time.Minute)

	cancelled, err := f.sales.Cancel(ctx, CancelSale{SaleID: sale.ID, UserID: "owner"})
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.SaleCancelled || cancelled.CancelledAt == nil || cancelled.CancelledBy != "owner" {
		t.Fatalf("unexpected cancelled sale: %+v", cancelled)
	}
	if got := f.quantity(t, m1.ID); got != 10 {
		t.Errorf("m1 quantity = %d, want 10", got)
	}
	if got := f.quantity(t, m2.ID); got != 6 {
		t.Errorf("m2 quantity = %d, want 6", got)
	}

	history, err := f.ledger.HistoryFor(ctx, m2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Kind != domain.KindDevolucionVenta || history[0].Reference != sale.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	_, err = f.sales.Cancel(ctx, CancelSale{SaleID: sale.ID, UserID: "owner"})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on second cancel, got %v", err)
	}
	if got := f.quantity(t, m1.ID); got != 10 {
		t.Errorf("second cancel changed stock to %d", got)
	}

	if _, err := f.sales.Cancel(ctx, CancelSale{SaleID: "missing", UserID: "owner"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.sales.Cancel(ctx, CancelSale{SaleID: sale.ID}); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed without user, got %v", err)
	}

	mismatched, err := f.ledger.ReconcileAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(mismatched) != 0 {
		t.Fatalf("ledger mismatch: %+v", mismatched)
	}
}

func TestSummaryAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.medication(t, "Vitamina C", 20, "10.00")

	first := f.sell(t, domain.PaymentCash, CartLine{MedicationID: m1.ID, Quantity: 1})
	f.clock.advance(time.Minute)
	f.sell(t, domain.PaymentTransfer, CartLine{MedicationID: m1.ID, Quantity: 2})
	f.clock.advance(time.Minute)
	if _, err := f.sales.Cancel(ctx, CancelSale{SaleID: first.ID, UserID: "owner"}); err != nil {
		t.Fatal(err)
	}

	summary, err := f.sales.Summary(ctx, baseTime, baseTime.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Count != 1 || !summary.Revenue.Equal(dec("23.00")) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	all, err := f.sales.List(ctx, SaleFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[1].ID != first.ID || len(all[0].Items) != 1 {
		t.Fatalf("unexpected sales list: %+v", all)
	}
	cancelled, err := f.sales.List(ctx, SaleFilter{Status: domain.SaleCancelled})
	if err != nil {
		t.Fatal(err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != first.ID {
		t.Fatalf("unexpected cancelled list: %+v", cancelled)
	}
}
