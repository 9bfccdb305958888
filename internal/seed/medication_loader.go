package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farmacia/m/internal/inventory"
)

// Column order of the catalog CSV. The first row is a header.
const (
	colName = iota
	colActiveIngredient
	colBatch
	colCategory
	colSupplier
	colQuantity
	colMinStock
	colPrice
	colExpiry
	colLocation
	columnCount
)

// Loader ingests a medication catalog through the Catalog so that every
// imported quantity becomes the medication's initial stock.
type Loader struct {
	catalog *inventory.Catalog
	log     zerolog.Logger
}

func NewLoader(catalog *inventory.Catalog, log zerolog.Logger) *Loader {
	return &Loader{catalog: catalog, log: log}
}

// LoadFile opens csvPath and loads it. A missing file is not an error.
func (l *Loader) LoadFile(ctx context.Context, csvPath string) (int, error) {
	file, err := os.Open(csvPath)
	if errors.Is(err, os.ErrNotExist) {
		l.log.Warn().Str("path", csvPath).Msg("medication catalog not found, skipping seed")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open medication catalog: %w", err)
	}
	defer file.Close()
	return l.Load(ctx, file)
}

// Load reads medication rows from r. Rows that cannot be parsed or whose
// name already exists are skipped and logged; categories and suppliers are
// created on first use.
func (l *Loader) Load(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read medication header: %w", err)
	}

	categories, err := l.categoryIndex(ctx)
	if err != nil {
		return 0, err
	}
	suppliers, err := l.supplierIndex(ctx)
	if err != nil {
		return 0, err
	}
	existing, err := l.medicationNames(ctx)
	if err != nil {
		return 0, err
	}

	rows := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.log.Warn().Err(err).Int("line", line).Msg("unable to read medication row")
			continue
		}
		if len(record) < columnCount {
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		name := record[colName]
		if name == "" || existing[strings.ToLower(name)] {
			continue
		}

		in, err := parseRow(record)
		if err != nil {
			l.log.Warn().Err(err).Int("line", line).Str("name", name).Msg("invalid medication row")
			continue
		}
		if in.CategoryID, err = l.resolve(ctx, categories, record[colCategory], l.createCategory); err != nil {
			return rows, err
		}
		if in.SupplierID, err = l.resolve(ctx, suppliers, record[colSupplier], l.createSupplier); err != nil {
			return rows, err
		}
		if _, err := l.catalog.CreateMedication(ctx, in); err != nil {
			l.log.Warn().Err(err).Int("line", line).Str("name", name).Msg("unable to insert medication")
			continue
		}
		existing[strings.ToLower(name)] = true
		rows++
	}

	l.log.Info().Int("rows", rows).Msg("seeded medication catalog")
	return rows, nil
}

func parseRow(record []string) (inventory.MedicationInput, error) {
	qty, err := strconv.ParseInt(record[colQuantity], 10, 64)
	if err != nil {
		return inventory.MedicationInput{}, fmt.Errorf("quantity: %w", err)
	}
	minStock, err := strconv.ParseInt(record[colMinStock], 10, 64)
	if err != nil {
		return inventory.MedicationInput{}, fmt.Errorf("min_stock: %w", err)
	}
	price, err := decimal.NewFromString(record[colPrice])
	if err != nil {
		return inventory.MedicationInput{}, fmt.Errorf("price: %w", err)
	}
	in := inventory.MedicationInput{
		Name:             record[colName],
		ActiveIngredient: record[colActiveIngredient],
		Batch:            record[colBatch],
		Quantity:         qty,
		MinStock:         minStock,
		Price:            price,
		Location:         record[colLocation],
	}
	if record[colExpiry] != "" {
		expiry, err := time.Parse("2006-01-02", record[colExpiry])
		if err != nil {
			return inventory.MedicationInput{}, fmt.Errorf("expiry_date must be YYYY-MM-DD: %w", err)
		}
		in.ExpiryDate = &expiry
	}
	return in, nil
}

func (l *Loader) resolve(ctx context.Context, index map[string]string, name string, create func(context.Context, string) (string, error)) (string, error) {
	if name == "" {
		name = "General"
	}
	key := strings.ToLower(name)
	if id, ok := index[key]; ok {
		return id, nil
	}
	id, err := create(ctx, name)
	if err != nil {
		return "", err
	}
	index[key] = id
	return id, nil
}

func (l *Loader) createCategory(ctx context.Context, name string) (string, error) {
	cat, err := l.catalog.CreateCategory(ctx, inventory.CategoryInput{Name: name})
	return cat.ID, err
}

func (l *Loader) createSupplier(ctx context.Context, name string) (string, error) {
	sup, err := l.catalog.CreateSupplier(ctx, inventory.SupplierInput{Name: name})
	return sup.ID, err
}

func (l *Loader) categoryIndex(ctx context.Context) (map[string]string, error) {
	cats, err := l.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(cats))
	for _, c := range cats {
		index[strings.ToLower(c.Name)] = c.ID
	}
	return index, nil
}

func (l *Loader) supplierIndex(ctx context.Context) (map[string]string, error) {
	sups, err := l.catalog.ListSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(sups))
	for _, s := range sups {
		index[strings.ToLower(s.Name)] = s.ID
	}
	return index, nil
}

func (l *Loader) medicationNames(ctx context.Context) (map[string]bool, error) {
	meds, err := l.catalog.ListMedications(ctx, inventory.MedicationFilter{IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(meds))
	for _, m := range meds {
		names[strings.ToLower(m.Name)] = true
	}
	return names, nil
}
