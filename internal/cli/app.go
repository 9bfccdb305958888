package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"farmacia/m/internal/api"
	"farmacia/m/internal/config"
	"farmacia/m/internal/database"
	"farmacia/m/internal/inventory"
	"farmacia/m/internal/logger"
	"farmacia/m/internal/migrations"
	"farmacia/m/internal/pos"
)

// app is the wired core shared by every subcommand.
type app struct {
	db  *sqlx.DB
	svc api.Services
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	ledger := inventory.NewLedger(db, logger.WithComponent("ledger"))
	return &app{
		db: db,
		svc: api.Services{
			Catalog: inventory.NewCatalog(db, logger.WithComponent("catalog")),
			Ledger:  ledger,
			Returns: inventory.NewReturnSweep(db, ledger, logger.WithComponent("returns")),
			Sales:   pos.NewSaleProcessor(db, ledger, logger.WithComponent("sales")),
			Drawer:  pos.NewDrawer(db, logger.WithComponent("drawer")),
		},
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
