package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var resetErrorsRoot int64

var resetErrorsCmd = &cobra.Command{
	Use:   "reset-errors",
	Short: "Clear errors so failed items are indexed again",
	Long: `Reset-errors clears the error text of failed queue items, which makes
them pending again for the next worker run.

Example:
  goindexq reset-errors --root 1`,
	RunE: runResetErrors,
}

func init() {
	resetErrorsCmd.Flags().Int64Var(&resetErrorsRoot, "root", 0, "Site root page (0 = whole queue)")
	rootCmd.AddCommand(resetErrorsCmd)
}

func runResetErrors(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.ResetErrors(ctx, resetErrorsRoot)
	if err != nil {
		return err
	}
	cmd.Printf("Reset %d failed item(s)\n", n)
	return nil
}
