package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/config"
	"github.com/dbsmedya/goindexq/internal/monitoring"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List configured sites and monitored tables",
	Long: `Sites displays the site root pages and monitored tables defined in the
configuration file.

Example:
  goindexq sites --config goindexq.yaml`,
	RunE: runSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	policy := monitoring.NewPolicy(cfg.MonitoredTables())
	if policy.MonitorsAll() {
		cmd.Println("Monitored tables: all")
	} else {
		cmd.Printf("Monitored tables: %s\n", strings.Join(policy.Tables(), ", "))
	}
	cmd.Println()

	if len(cfg.Sites) == 0 {
		cmd.Printf("No sites defined in %s; every page flagged as site root is indexed\n", configFile)
		return nil
	}

	t := newTable("ROOT", "NAME", "ADDITIONAL PAGES")
	for _, site := range cfg.Sites {
		additional := "-"
		if len(site.AdditionalPageIDs) > 0 {
			ids := make([]string, len(site.AdditionalPageIDs))
			for i, id := range site.AdditionalPageIDs {
				ids[i] = fmt.Sprint(id)
			}
			additional = strings.Join(ids, ", ")
		}
		t.addRow(fmt.Sprint(site.RootPageID), site.Name, additional)
	}
	t.render(cmd.OutOrStdout())

	cmd.Printf("\nTotal: %d site(s)\n", len(cfg.Sites))
	return nil
}
