package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/dbsmedya/goindexq/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// ScheduleParser parses the 5-field cron expressions accepted by worker.schedule.
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the configuration for required fields and valid values.
//
// The monitored table list is deliberately not an error source: an unusable
// list degrades to monitoring every table.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateTables()...)
	errors = append(errors, c.validateSites()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors
	db := &c.Database

	if db.Host == "" {
		errors = append(errors, ValidationError{Field: "database.host", Message: "host is required"})
	}
	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{Field: "database.port", Message: "port must be between 1 and 65535"})
	}
	if db.User == "" {
		errors = append(errors, ValidationError{Field: "database.user", Message: "user is required"})
	}
	if db.Database == "" {
		errors = append(errors, ValidationError{Field: "database.database", Message: "database name is required"})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   "database.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}
	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{Field: "database.max_connections", Message: "max_connections cannot be negative"})
	}
	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{Field: "database.max_idle_connections", Message: "max_idle_connections cannot be negative"})
	}

	return errors
}

func (c *Config) validateTables() ValidationErrors {
	var errors ValidationErrors

	for name, tc := range c.Tables {
		prefix := "tables." + name
		if !sqlutil.IsValidIdentifier(name) {
			errors = append(errors, ValidationError{Field: prefix, Message: "table name must contain only alphanumeric characters and underscores"})
		}
		for column, value := range map[string]string{
			"pid_column":     tc.PidColumn,
			"hidden_column":  tc.HiddenColumn,
			"deleted_column": tc.DeletedColumn,
		} {
			if value != "" && !sqlutil.IsValidIdentifier(value) {
				errors = append(errors, ValidationError{Field: prefix + "." + column, Message: "invalid column name " + value})
			}
		}
	}

	return errors
}

func (c *Config) validateSites() ValidationErrors {
	var errors ValidationErrors
	seen := make(map[int64]bool)

	for i, site := range c.Sites {
		prefix := fmt.Sprintf("sites[%d]", i)
		if site.RootPageID <= 0 {
			errors = append(errors, ValidationError{Field: prefix + ".root_page_id", Message: "root_page_id must be positive"})
			continue
		}
		if seen[site.RootPageID] {
			errors = append(errors, ValidationError{Field: prefix + ".root_page_id", Message: fmt.Sprintf("duplicate root page %d", site.RootPageID)})
		}
		seen[site.RootPageID] = true
		for j, pid := range site.AdditionalPageIDs {
			if pid <= 0 {
				errors = append(errors, ValidationError{Field: fmt.Sprintf("%s.additional_page_ids[%d]", prefix, j), Message: "page id must be positive"})
			}
		}
	}

	return errors
}

func (c *Config) validateWorker() ValidationErrors {
	var errors ValidationErrors

	if c.Worker.Workers <= 0 {
		errors = append(errors, ValidationError{Field: "worker.workers", Message: "workers must be positive"})
	}
	if c.Worker.BatchSize <= 0 {
		errors = append(errors, ValidationError{Field: "worker.batch_size", Message: "batch_size must be positive"})
	}
	if c.Worker.MaxItems < 0 {
		errors = append(errors, ValidationError{Field: "worker.max_items", Message: "max_items cannot be negative"})
	}
	if c.Worker.StaleClaimSeconds < 0 {
		errors = append(errors, ValidationError{Field: "worker.stale_claim_seconds", Message: "stale_claim_seconds cannot be negative"})
	}
	if c.Worker.Schedule != "" {
		if _, err := ScheduleParser.Parse(c.Worker.Schedule); err != nil {
			errors = append(errors, ValidationError{Field: "worker.schedule", Message: err.Error()})
		}
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	// Documents are handed off as JSON lines; log records must not interleave with them.
	if outputTarget(c.Logging.Output, "stderr") == outputTarget(c.Worker.Output, "stdout") {
		errors = append(errors, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("must differ from worker.output (%q)", outputTarget(c.Worker.Output, "stdout")),
		})
	}

	return errors
}

// outputTarget resolves an output setting, with empty meaning def.
func outputTarget(output, def string) string {
	if output = strings.TrimSpace(output); output == "" {
		return def
	}
	return output
}
