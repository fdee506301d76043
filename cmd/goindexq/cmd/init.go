package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the index queue table",
	Long: `Init creates the index queue table if it does not exist.
It is safe to run on every deployment.

Example:
  goindexq init --config goindexq.yaml`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.InitializeTables(ctx); err != nil {
		return err
	}
	cmd.Println("Index queue table is ready")
	return nil
}
