package config

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.Port != 3306 {
		t.Errorf("expected database port 3306, got %d", cfg.Database.Port)
	}
	if cfg.Database.TLS != "preferred" {
		t.Errorf("expected database TLS 'preferred', got %s", cfg.Database.TLS)
	}
	if cfg.Database.MaxConnections != 10 {
		t.Errorf("expected max_connections 10, got %d", cfg.Database.MaxConnections)
	}

	if len(cfg.Monitoring.Tables) != 0 {
		t.Errorf("expected no monitored tables by default, got %v", cfg.Monitoring.Tables)
	}

	if cfg.Worker.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Worker.Workers)
	}
	if cfg.Worker.BatchSize != 50 {
		t.Errorf("expected batch_size 50, got %d", cfg.Worker.BatchSize)
	}
	if cfg.Worker.Schedule != "*/5 * * * *" {
		t.Errorf("expected default schedule, got %q", cfg.Worker.Schedule)
	}
	if cfg.Worker.Output != "stdout" {
		t.Errorf("expected worker output stdout, got %s", cfg.Worker.Output)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected logging format 'json', got %s", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("expected logging output stderr, got %s", cfg.Logging.Output)
	}
}

func TestGetTable(t *testing.T) {
	cfg := &Config{
		Tables: map[string]TableConfig{
			"tx_news_domain_model_news": {HiddenColumn: "hidden", DeletedColumn: "deleted"},
			"sys_category":              {PidColumn: "storage_pid"},
		},
	}

	unknown := cfg.GetTable("tt_content")
	if unknown.PidColumn != "pid" || unknown.HiddenColumn != "hidden" || unknown.DeletedColumn != "deleted" {
		t.Errorf("expected default columns for unlisted table, got %+v", unknown)
	}

	news := cfg.GetTable("tx_news_domain_model_news")
	if news.PidColumn != "pid" {
		t.Errorf("expected pid column to default to 'pid', got %q", news.PidColumn)
	}

	category := cfg.GetTable("sys_category")
	if category.PidColumn != "storage_pid" {
		t.Errorf("expected custom pid column, got %q", category.PidColumn)
	}
	if category.HiddenColumn != "" || category.DeletedColumn != "" {
		t.Errorf("expected listed table without enable columns to keep them empty, got %+v", category)
	}
}

func TestGetSite(t *testing.T) {
	cfg := &Config{Sites: []SiteConfig{{Name: "main", RootPageID: 1}, {Name: "shop", RootPageID: 42}}}

	site, ok := cfg.GetSite(42)
	if !ok || site.Name != "shop" {
		t.Errorf("expected site 'shop', got %+v (ok=%v)", site, ok)
	}

	if _, ok := cfg.GetSite(7); ok {
		t.Error("expected unknown root page to be reported missing")
	}
}

func TestMonitoredTables(t *testing.T) {
	cfg := &Config{Monitoring: MonitoringConfig{Tables: []string{" pages ", "", "tt_content", "   "}}}

	tables := cfg.MonitoredTables()
	if len(tables) != 2 || tables[0] != "pages" || tables[1] != "tt_content" {
		t.Errorf("expected [pages tt_content], got %v", tables)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ApplyOverrides("debug", "text", 8, 200)
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("expected logging overrides applied, got %+v", cfg.Logging)
	}
	if cfg.Worker.Workers != 8 || cfg.Worker.BatchSize != 200 {
		t.Errorf("expected worker overrides applied, got %+v", cfg.Worker)
	}

	cfg.ApplyOverrides("", "", 0, 0)
	if cfg.Logging.Level != "debug" || cfg.Worker.Workers != 8 {
		t.Error("expected zero values to leave configuration unchanged")
	}
}
