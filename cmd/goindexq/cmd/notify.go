package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/events"
	"github.com/dbsmedya/goindexq/internal/handler"
	"github.com/dbsmedya/goindexq/internal/listener"
)

var (
	notifyTable string
	notifyUID   int64
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Report a record change to the index queue",
	Long: `Notify feeds a record change into the queue the same way the CMS
persistence layer does.

  updated        record was inserted or updated (also runs the garbage check)
  deleted        record was removed
  garbage-check  re-check whether a record is still indexable

Example:
  goindexq notify updated --table tt_content --uid 42`,
}

var notifyUpdatedCmd = &cobra.Command{
	Use:   "updated",
	Short: "Report an inserted or updated record",
	Long: `Updated enqueues the record for every site root page it is indexed
under, then drops items of sites that no longer contain it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotify(cmd, func(ctx context.Context, a *app, rec listener.Record) error {
			return a.listener.OnPersisted(ctx, rec)
		})
	},
}

var notifyDeletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "Report a removed record",
	Long:  `Deleted removes every queue item of the record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotify(cmd, func(ctx context.Context, a *app, rec listener.Record) error {
			return a.listener.OnRemoved(ctx, rec)
		})
	},
}

var notifyGarbageCheckCmd = &cobra.Command{
	Use:   "garbage-check",
	Short: "Drop queue items of a record that is no longer indexable",
	Long: `Garbage-check resolves the record's site root pages again and removes
queue items of sites that no longer index it. Records that are hidden,
deleted or outside any site lose all their items.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotify(cmd, func(ctx context.Context, a *app, rec listener.Record) error {
			ev, err := events.NewRecordGarbageCheckRequested(rec.Table, rec.ID)
			if err != nil {
				return err
			}
			return a.bus.Dispatch(ctx, ev)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{notifyUpdatedCmd, notifyDeletedCmd, notifyGarbageCheckCmd} {
		c.Flags().StringVarP(&notifyTable, "table", "t", "", "Record table (required)")
		c.Flags().Int64VarP(&notifyUID, "uid", "u", 0, "Record uid (required)")
		_ = c.MarkFlagRequired("table")
		_ = c.MarkFlagRequired("uid")
		notifyCmd.AddCommand(c)
	}
	rootCmd.AddCommand(notifyCmd)
}

func runNotify(cmd *cobra.Command, fn func(ctx context.Context, a *app, rec listener.Record) error) error {
	rec := listener.Record{Table: notifyTable, ID: notifyUID}
	if _, err := events.NewRecordRef(rec.Table, rec.ID); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a, rec); err != nil {
		var resErr *handler.ResolutionError
		if errors.As(err, &resErr) {
			return fmt.Errorf("record %s:%d left unchanged, retry once the page tree is fixed: %w", resErr.Table, resErr.UID, err)
		}
		return err
	}

	items, err := a.store.FindItems(ctx, rec.Table, rec.ID)
	if err != nil {
		return err
	}
	cmd.Printf("%s:%d now has %d queue item(s)\n", rec.Table, rec.ID, len(items))
	return nil
}
