package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jsonOutput bool

// reconcileCmd compares every account's balance with its statement sum
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Verify balances against statement history",
	Long: `Take a consistent snapshot of every account and compare the stored balance
with the signed sum of its statements. Exits non-zero when any account diverges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd.Context())
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := buildApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.core.Reconcile(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("accounts: %d  statements: %d  divergences: %d\n",
			report.Accounts, report.Statements, len(report.Divergences))
		if !report.OK() {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tBALANCE\tSTATEMENT SUM")
			for _, d := range report.Divergences {
				fmt.Fprintf(w, "%s\t%d\t%d\n", d.AccountID, d.Cached, d.LedgerSum)
			}
			w.Flush()
		}
	}

	if !report.OK() {
		return fmt.Errorf("%d account(s) diverged", len(report.Divergences))
	}
	return nil
}
