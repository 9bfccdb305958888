package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var returnsCmd = &cobra.Command{
	Use:   "returns",
	Short: "Return expired stock to suppliers",
	Long: `Zero the stock of every medication that expired before the given date,
recording one supplier-return ledger entry per medication. Running it twice
on the same day changes nothing the second time.`,
	Example: `  farmacia returns --user owner
  farmacia returns --date 2025-06-30 --user owner`,
	RunE: runReturns,
}

func init() {
	rootCmd.AddCommand(returnsCmd)

	returnsCmd.Flags().String("date", "", "Reference date (format: YYYY-MM-DD, default: today)")
	returnsCmd.Flags().String("user", "system", "User recorded on the ledger entries")
}

func runReturns(cmd *cobra.Command, args []string) error {
	dateStr, _ := cmd.Flags().GetString("date")
	user, _ := cmd.Flags().GetString("user")

	today := time.Now()
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid date format. Use YYYY-MM-DD: %w", err)
		}
		today = parsed
	}

	a, err := openApp(cmd.Context(), loadConfig(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.svc.Returns.RunReturns(cmd.Context(), today, user)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%d\t%s\n", e.MedicationID, e.Quantity, e.Reference)
	}
	fmt.Fprintf(out, "returned %d medications\n", len(entries))
	return nil
}
