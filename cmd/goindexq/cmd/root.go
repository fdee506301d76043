package cmd

import (
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile   string
	logLevel  string
	logFormat string
	workers   int
	batchSize int
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "goindexq",
	Short: "Change-driven search index queue for CMS records",
	Long: `goindexq keeps a search index queue in step with CMS record changes.

Record changes are turned into change events, dispatched to the queue
handlers and stored as one queue item per record and site root page.
Workers drain pending items into search documents.

Features:
  - Monitored table allow-list (empty list monitors every table)
  - Root page resolution through the page tree
  - Atomic upserts, no duplicate items per record and site
  - Concurrent workers that never index an item twice
  - Queue statistics and Prometheus metrics`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Disable()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "goindexq.yaml",
		"Path to configuration file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0,
		"Override number of concurrent queue workers")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override number of items a worker claims at once")

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel  string
	LogFormat string
	Workers   int
	BatchSize int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		Workers:   workers,
		BatchSize: batchSize,
	}
}
