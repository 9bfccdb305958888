package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"farmacia/m/internal/logger"
	"farmacia/m/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a medication catalog CSV",
	Long: `Load medications from a CSV file. Each row's quantity becomes the
medication's initial stock. Rows whose name already exists are skipped, so
the command can be re-run safely.

Columns: name, active_ingredient, batch, category, supplier, quantity,
min_stock, price, expiry_date (YYYY-MM-DD), location`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("file", "", "CSV file to load (default: SEED_FILE)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	c := loadConfig(cmd)
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = c.SeedFile
	}

	a, err := openApp(cmd.Context(), c)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := seed.NewLoader(a.svc.Catalog, logger.WithComponent("seed")).LoadFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d medications from %s\n", n, path)
	return nil
}
