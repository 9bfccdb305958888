package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Money columns are TEXT so decimal values round-trip exactly.
var schema = []string{
	`PRAGMA foreign_keys = ON;`,
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS categories (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories(name COLLATE NOCASE);`,
	`CREATE TABLE IF NOT EXISTS suppliers (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            contact TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            tax_id TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_suppliers_name ON suppliers(name COLLATE NOCASE);`,
	`CREATE TABLE IF NOT EXISTS medications (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            active_ingredient TEXT NOT NULL DEFAULT '',
            batch TEXT NOT NULL DEFAULT '',
            category_id TEXT NOT NULL,
            supplier_id TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            initial_quantity INTEGER NOT NULL CHECK (initial_quantity >= 0),
            min_stock INTEGER NOT NULL DEFAULT 0,
            price TEXT NOT NULL,
            expiry_date DATE,
            location TEXT NOT NULL DEFAULT '',
            active INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            FOREIGN KEY(category_id) REFERENCES categories(id),
            FOREIGN KEY(supplier_id) REFERENCES suppliers(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_medications_category ON medications(category_id);`,
	`CREATE INDEX IF NOT EXISTS idx_medications_supplier ON medications(supplier_id);`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT NOT NULL UNIQUE,
            medication_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            signed_delta INTEGER NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            reference TEXT NOT NULL DEFAULT '',
            user_id TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            FOREIGN KEY(medication_id) REFERENCES medications(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_medication ON ledger_entries(medication_id, seq);`,
	`CREATE TABLE IF NOT EXISTS sales (
            id TEXT PRIMARY KEY,
            customer_name TEXT NOT NULL DEFAULT '',
            customer_document TEXT NOT NULL DEFAULT '',
            customer_email TEXT NOT NULL DEFAULT '',
            subtotal TEXT NOT NULL,
            discount TEXT NOT NULL,
            tax TEXT NOT NULL,
            total TEXT NOT NULL,
            payment_method TEXT NOT NULL,
            status TEXT NOT NULL,
            cashier TEXT NOT NULL,
            date DATETIME NOT NULL,
            cancelled_at DATETIME,
            cancelled_by TEXT NOT NULL DEFAULT ''
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(date);`,
	`CREATE TABLE IF NOT EXISTS sale_items (
            sale_id TEXT NOT NULL,
            line INTEGER NOT NULL,
            medication_id TEXT NOT NULL,
            name TEXT NOT NULL,
            unit_price TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            line_discount TEXT NOT NULL,
            PRIMARY KEY(sale_id, line),
            FOREIGN KEY(sale_id) REFERENCES sales(id),
            FOREIGN KEY(medication_id) REFERENCES medications(id)
        );`,
	`CREATE TABLE IF NOT EXISTS cash_drawer (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            is_open INTEGER NOT NULL DEFAULT 0,
            initial_amount TEXT NOT NULL DEFAULT '0',
            opened_at DATETIME,
            opened_by TEXT NOT NULL DEFAULT ''
        );`,
	`INSERT OR IGNORE INTO cash_drawer (id, is_open, initial_amount) VALUES (1, 0, '0');`,
	`CREATE TABLE IF NOT EXISTS drawer_sessions (
            id TEXT PRIMARY KEY,
            initial_amount TEXT NOT NULL,
            opened_at DATETIME NOT NULL,
            opened_by TEXT NOT NULL,
            closed_at DATETIME NOT NULL,
            closed_by TEXT NOT NULL,
            expected_cash TEXT NOT NULL,
            counted_amount TEXT NOT NULL,
            variance TEXT NOT NULL
        );`,
}

// Run creates the database schema required for the pharmacy backend.
func Run(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
