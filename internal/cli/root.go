// Package cli holds the farmacia command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"farmacia/m/internal/config"
	"farmacia/m/internal/logger"
)

var version = "1.0.0"

// cfg is populated by Execute before any command runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "farmacia",
	Short: "Pharmacy inventory and point-of-sale backend",
	Long: `farmacia keeps a pharmacy's medication catalog, its append-only stock
ledger, point-of-sale transactions and the cash drawer in one SQLite
database.

Run "farmacia serve" to start the HTTP API. The other commands operate on
the same database directly.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree with the loaded configuration.
func Execute(c config.Config) {
	cfg = c
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database DSN (overrides DATABASE_DSN)")
}

// loadConfig applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) config.Config {
	c := cfg
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		c.DatabaseDSN = dsn
	}
	return c
}
