package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/lock"
	"github.com/dbsmedya/goindexq/internal/queue"
)

var statsRoot int64

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index queue statistics",
	Long: `Stats counts pending, indexed and failed queue items and their share
of the queue. Counts are recomputed on every call.

Without --root, every configured site and the whole queue are shown. Sites
being re-initialized are marked, their counts are still moving.

Example:
  goindexq stats --root 1`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Int64Var(&statsRoot, "root", 0, "Site root page (0 = whole queue)")
	rootCmd.AddCommand(statsCmd)
}

type statRow struct {
	label string
	stat  queue.Statistic
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var rows []statRow
	if statsRoot > 0 {
		stat, err := a.store.Statistics(ctx, statsRoot)
		if err != nil {
			return err
		}
		rows = append(rows, statRow{siteLabel(ctx, a, statsRoot), stat})
	} else {
		for _, site := range a.cfg.Sites {
			stat, err := a.store.Statistics(ctx, site.RootPageID)
			if err != nil {
				return err
			}
			rows = append(rows, statRow{siteLabel(ctx, a, site.RootPageID), stat})
		}
		stat, err := a.store.Statistics(ctx, 0)
		if err != nil {
			return err
		}
		rows = append(rows, statRow{"all sites", stat})
	}

	renderStats(cmd.OutOrStdout(), rows)
	return nil
}

func siteLabel(ctx context.Context, a *app, root int64) string {
	label := strconv.FormatInt(root, 10)
	if site, ok := a.cfg.GetSite(root); ok && site.Name != "" {
		label = fmt.Sprintf("%s (%d)", site.Name, root)
	}
	if locked, err := lock.IsSiteLocked(ctx, a.db.DB, root); err == nil && locked {
		label += " [initializing]"
	}
	return label
}

func renderStats(w io.Writer, rows []statRow) {
	t := newTable("SITE", "TOTAL", "PENDING", "INDEXED", "FAILED")
	for _, r := range rows {
		t.addRow(
			r.label,
			strconv.Itoa(r.stat.Total()),
			fmt.Sprintf("%d (%s)", r.stat.PendingCount, formatPercentage(r.stat.PendingPercentage())),
			fmt.Sprintf("%d (%s)", r.stat.SuccessCount, formatPercentage(r.stat.SuccessPercentage())),
			fmt.Sprintf("%d (%s)", r.stat.FailedCount, formatPercentage(r.stat.FailedPercentage())),
		)
	}
	t.render(w)
}
