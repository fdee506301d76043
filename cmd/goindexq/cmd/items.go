package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/queue"
)

var (
	itemsTable  string
	itemsUID    int64
	itemsFailed bool
	itemsRoot   int64
	itemsLimit  int
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Show queue items of a record or failed items",
	Long: `Items lists the queue items of one record, or with --failed the most
recently changed failed items together with their error text.

Examples:
  goindexq items --table tt_content --uid 42
  goindexq items --failed --root 1 --limit 20`,
	RunE: runItems,
}

func init() {
	itemsCmd.Flags().StringVarP(&itemsTable, "table", "t", "", "Record table")
	itemsCmd.Flags().Int64VarP(&itemsUID, "uid", "u", 0, "Record uid")
	itemsCmd.Flags().BoolVar(&itemsFailed, "failed", false, "List failed items instead of one record")
	itemsCmd.Flags().Int64Var(&itemsRoot, "root", 0, "Restrict failed items to a site root page")
	itemsCmd.Flags().IntVar(&itemsLimit, "limit", 50, "Maximum number of failed items")
	rootCmd.AddCommand(itemsCmd)
}

func runItems(cmd *cobra.Command, args []string) error {
	if !itemsFailed && (itemsTable == "" || itemsUID <= 0) {
		return fmt.Errorf("either --table and --uid or --failed is required")
	}

	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var items []queue.Item
	if itemsFailed {
		items, err = a.store.FailedItems(ctx, itemsRoot, itemsLimit)
	} else {
		items, err = a.store.FindItems(ctx, itemsTable, itemsUID)
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		cmd.Println("No queue items")
		return nil
	}
	renderItems(cmd.OutOrStdout(), items)
	return nil
}

func renderItems(w io.Writer, items []queue.Item) {
	t := newTable("ITEM", "ROOT", "RECORD", "STATE", "CHANGED", "INDEXED", "ERROR")
	for _, item := range items {
		indexed := "-"
		if !item.Indexed.IsZero() {
			indexed = item.Indexed.Format(time.DateTime)
		}
		t.addRow(
			strconv.FormatInt(item.UID, 10),
			strconv.FormatInt(item.RootPageID, 10),
			fmt.Sprintf("%s:%d", item.TableName, item.TableUID),
			colorState(item.State()),
			item.Changed.Format(time.DateTime),
			indexed,
			truncate(item.Errors, 60),
		)
	}
	t.render(w)
}
