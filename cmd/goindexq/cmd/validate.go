package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/queue"
	"github.com/dbsmedya/goindexq/internal/rootline"
	"github.com/dbsmedya/goindexq/internal/sqlutil"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and database access",
	Long: `Validate checks the configuration file and the database the queue runs on.

Checks performed:
  - Configuration syntax and required fields
  - Database connectivity
  - Index queue table exists (run init otherwise)
  - Page tree table and monitored tables are readable

Example:
  goindexq validate --config goindexq.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.Printf("\n=== Configuration Validation ===\n")
	cmd.Printf("Config file: %s\n", GetConfigFile())
	cmd.Printf("Sites: %d\n\n", len(a.cfg.Sites))

	tables := append([]string{queue.ItemTable, rootline.PagesTable}, a.policy.Tables()...)
	hasErrors := false
	for _, table := range tables {
		if err := checkTable(ctx, a.db.DB, table); err != nil {
			cmd.Printf("❌ %s: %v\n", table, err)
			hasErrors = true
			continue
		}
		cmd.Printf("✅ %s\n", table)
	}

	if hasErrors {
		return fmt.Errorf("validation failed for one or more tables")
	}

	cmd.Println("\n=== Validation Complete ===")
	return nil
}

// checkTable verifies the table exists and is readable. An empty table passes.
func checkTable(ctx context.Context, db *sql.DB, table string) error {
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return err
	}
	var one int
	err = db.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", quoted)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
