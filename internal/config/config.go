// Package config provides configuration structures and loading for goindexq.
package config

import "strings"

// Config represents the complete application configuration.
type Config struct {
	Database   DatabaseConfig         `yaml:"database" mapstructure:"database"`
	Monitoring MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
	Tables     map[string]TableConfig `yaml:"tables" mapstructure:"tables"`
	Sites      []SiteConfig           `yaml:"sites" mapstructure:"sites"`
	Worker     WorkerConfig           `yaml:"worker" mapstructure:"worker"`
	Metrics    MetricsConfig          `yaml:"metrics" mapstructure:"metrics"`
	Logging    LoggingConfig          `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents the MySQL connection holding both CMS records and the index queue.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// MonitoringConfig lists the record tables whose changes are tracked.
// An empty list means every table is monitored.
type MonitoringConfig struct {
	Tables []string `yaml:"tables" mapstructure:"tables"`
}

// TableConfig describes the columns used to place a record in the page tree.
// Empty HiddenColumn or DeletedColumn means the table has no such column.
type TableConfig struct {
	PidColumn     string `yaml:"pid_column" mapstructure:"pid_column"`
	HiddenColumn  string `yaml:"hidden_column" mapstructure:"hidden_column"`
	DeletedColumn string `yaml:"deleted_column" mapstructure:"deleted_column"`
}

// SiteConfig represents one site root page that is indexed.
type SiteConfig struct {
	Name              string  `yaml:"name" mapstructure:"name"`
	RootPageID        int64   `yaml:"root_page_id" mapstructure:"root_page_id"`
	AdditionalPageIDs []int64 `yaml:"additional_page_ids" mapstructure:"additional_page_ids"`
}

// WorkerConfig represents queue drain settings.
type WorkerConfig struct {
	Workers           int    `yaml:"workers" mapstructure:"workers"`
	BatchSize         int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxItems          int    `yaml:"max_items" mapstructure:"max_items"` // 0 = until the queue is drained
	Schedule          string `yaml:"schedule" mapstructure:"schedule"`   // 5-field cron expression
	StaleClaimSeconds int    `yaml:"stale_claim_seconds" mapstructure:"stale_claim_seconds"`
	Output            string `yaml:"output" mapstructure:"output"` // stdout or file path for documents
}

// MetricsConfig represents the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // empty disables the endpoint
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stderr (default), stdout, or file path
}

// Default column names used by CMS record tables.
const (
	DefaultPidColumn     = "pid"
	DefaultHiddenColumn  = "hidden"
	DefaultDeletedColumn = "deleted"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Worker: WorkerConfig{
			Workers:           2,
			BatchSize:         50,
			Schedule:          "*/5 * * * *",
			StaleClaimSeconds: 900,
			Output:            "stdout",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// GetTable returns the column configuration for a record table, falling back to defaults.
// A table listed with an explicitly empty hidden or deleted column keeps it empty.
func (c *Config) GetTable(name string) TableConfig {
	tc, ok := c.Tables[name]
	if !ok {
		return TableConfig{
			PidColumn:     DefaultPidColumn,
			HiddenColumn:  DefaultHiddenColumn,
			DeletedColumn: DefaultDeletedColumn,
		}
	}
	if tc.PidColumn == "" {
		tc.PidColumn = DefaultPidColumn
	}
	return tc
}

// GetSite retrieves a site by its root page id.
func (c *Config) GetSite(rootPageID int64) (*SiteConfig, bool) {
	for i := range c.Sites {
		if c.Sites[i].RootPageID == rootPageID {
			return &c.Sites[i], true
		}
	}
	return nil, false
}

// MonitoredTables returns the trimmed, non-empty monitored table names.
func (c *Config) MonitoredTables() []string {
	tables := make([]string, 0, len(c.Monitoring.Tables))
	for _, t := range c.Monitoring.Tables {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}
	return tables
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, workers, batchSize int) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if workers > 0 {
		c.Worker.Workers = workers
	}
	if batchSize > 0 {
		c.Worker.BatchSize = batchSize
	}
}
