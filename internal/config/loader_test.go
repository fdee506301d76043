package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
database:
  host: localhost
  port: 3306
  user: typo3
  password: secret
  database: cms
  tls: disable
  max_connections: 5

monitoring:
  tables:
    - pages
    - tx_news_domain_model_news

tables:
  tx_news_domain_model_news:
    hidden_column: hidden
    deleted_column: deleted

sites:
  - name: main
    root_page_id: 1
    additional_page_ids: [120, 121]

worker:
  workers: 4
  batch_size: 20
  schedule: "*/1 * * * *"
  output: /tmp/documents.jsonl

metrics:
  addr: ":9108"

logging:
  level: debug
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("expected database host 'localhost', got %s", cfg.Database.Host)
	}
	if cfg.Database.MaxConnections != 5 {
		t.Errorf("expected max_connections 5, got %d", cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConnections != 5 {
		t.Errorf("expected default max_idle_connections 5, got %d", cfg.Database.MaxIdleConnections)
	}

	if len(cfg.Monitoring.Tables) != 2 {
		t.Errorf("expected 2 monitored tables, got %v", cfg.Monitoring.Tables)
	}
	if tc := cfg.GetTable("tx_news_domain_model_news"); tc.HiddenColumn != "hidden" {
		t.Errorf("expected news hidden column, got %+v", tc)
	}

	if len(cfg.Sites) != 1 {
		t.Fatalf("expected 1 site, got %d", len(cfg.Sites))
	}
	if cfg.Sites[0].RootPageID != 1 || len(cfg.Sites[0].AdditionalPageIDs) != 2 {
		t.Errorf("unexpected site config: %+v", cfg.Sites[0])
	}

	if cfg.Worker.Workers != 4 || cfg.Worker.BatchSize != 20 {
		t.Errorf("unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Worker.StaleClaimSeconds != 900 {
		t.Errorf("expected default stale_claim_seconds 900, got %d", cfg.Worker.StaleClaimSeconds)
	}
	if cfg.Metrics.Addr != ":9108" {
		t.Errorf("expected metrics addr ':9108', got %q", cfg.Metrics.Addr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected logging level 'debug', got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "env-host")
	t.Setenv("TEST_DB_USER", "env-user")
	t.Setenv("TEST_DB_PASS", "env-pass")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-env.yaml")

	configContent := `
database:
  host: ${TEST_DB_HOST}
  port: 3306
  user: ${TEST_DB_USER}
  password: ${TEST_DB_PASS}
  database: cms
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Host != "env-host" {
		t.Errorf("expected host 'env-host', got %s", cfg.Database.Host)
	}
	if cfg.Database.User != "env-user" {
		t.Errorf("expected user 'env-user', got %s", cfg.Database.User)
	}
	if cfg.Database.Password != "env-pass" {
		t.Errorf("expected password 'env-pass', got %s", cfg.Database.Password)
	}
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	v.Set("monitoring.tables", []string{"pages"})
	v.Set("worker.workers", 3)

	cfg, err := LoadFromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Monitoring.Tables) != 1 || cfg.Monitoring.Tables[0] != "pages" {
		t.Errorf("expected monitored tables [pages], got %v", cfg.Monitoring.Tables)
	}
	if cfg.Worker.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Worker.Workers)
	}
	if cfg.Worker.BatchSize != 50 {
		t.Errorf("expected default batch size to survive, got %d", cfg.Worker.BatchSize)
	}
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "test-value"},
		{"$TEST_VAR", "test-value"},
		{"prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"${NONEXISTENT_GOINDEXQ}", "${NONEXISTENT_GOINDEXQ}"},
		{"no-vars-here", "no-vars-here"},
	}

	for _, tt := range tests {
		result := expandEnvVar(tt.input)
		if result != tt.expected {
			t.Errorf("expandEnvVar(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}
