package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every medication's stock against its ledger",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), loadConfig(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	mismatched, err := a.svc.Ledger.ReconcileAll(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, rec := range mismatched {
		fmt.Fprintf(out, "%s (%s): quantity %d, ledger says %d\n", rec.Name, rec.MedicationID, rec.Quantity, rec.Expected())
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("%d medications disagree with the ledger", len(mismatched))
	}
	fmt.Fprintln(out, "stock is consistent with the ledger")
	return nil
}
