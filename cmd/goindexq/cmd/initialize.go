package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/initializer"
	"github.com/dbsmedya/goindexq/internal/lock"
)

var (
	initializeRoot   int64
	initializeTables []string
	initializeWait   bool
)

var initializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Rebuild the queue of a site from the record tables",
	Long: `Initialize deletes a site's queue items of the given tables and enqueues
every live record indexed below the site root page again. A MySQL advisory
lock per site keeps two initializers from running on one site. With --wait
the command queues behind a running initializer for up to a minute instead
of failing at once.

Without --table the monitored tables are initialized.

Example:
  goindexq initialize --root 1 --table pages --table tt_content`,
	RunE: runInitialize,
}

func init() {
	initializeCmd.Flags().Int64Var(&initializeRoot, "root", 0, "Site root page (required)")
	initializeCmd.Flags().StringSliceVarP(&initializeTables, "table", "t", nil, "Record table (repeatable)")
	initializeCmd.Flags().BoolVar(&initializeWait, "wait", false, "Wait for a running initializer of the site to finish")
	_ = initializeCmd.MarkFlagRequired("root")
	rootCmd.AddCommand(initializeCmd)
}

func runInitialize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	tables := initializeTables
	if len(tables) == 0 {
		tables = a.policy.Tables()
	}
	if len(tables) == 0 {
		return fmt.Errorf("all tables are monitored; name the tables to initialize with --table")
	}

	in, err := initializer.New(a.db.DB, a.cfg, a.store, a.resolver, a.policy, a.log)
	if err != nil {
		return err
	}
	in.LockTimeout = lockTimeout(initializeWait)
	results, err := in.Initialize(ctx, initializeRoot, tables)
	if errors.Is(err, lock.ErrLockTimeout) {
		return fmt.Errorf("site %d is being initialized by another process", initializeRoot)
	}
	if err != nil {
		return err
	}

	t := newTable("TABLE", "DELETED", "ENQUEUED", "SKIPPED")
	for _, r := range results {
		t.addRow(r.Table, strconv.FormatInt(r.Deleted, 10), strconv.Itoa(r.Enqueued), strconv.Itoa(r.Skipped))
	}
	t.render(cmd.OutOrStdout())
	return nil
}

func lockTimeout(wait bool) int {
	if wait {
		return lock.TimeoutLong
	}
	return lock.TimeoutShort
}
