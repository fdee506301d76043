// Package monitoring decides which record tables have their changes tracked.
package monitoring

import (
	"sort"
	"strings"
)

// Policy is an immutable allow-list of monitored tables, built once at startup
// and injected. An empty allow-list monitors every table.
type Policy struct {
	tables map[string]struct{}
}

// NewPolicy builds a policy from configured table names.
// Names are trimmed and blank entries dropped, so a list of blanks monitors everything.
func NewPolicy(tables []string) *Policy {
	p := &Policy{tables: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			p.tables[t] = struct{}{}
		}
	}
	return p
}

// ShouldSkip reports whether changes to tableName are ignored.
// A nil policy skips nothing.
func (p *Policy) ShouldSkip(tableName string) bool {
	if p == nil || len(p.tables) == 0 {
		return false
	}
	_, monitored := p.tables[tableName]
	return !monitored
}

// MonitorsAll reports whether the allow-list is empty.
func (p *Policy) MonitorsAll() bool {
	return p == nil || len(p.tables) == 0
}

// Tables returns the allow-list sorted by name.
func (p *Policy) Tables() []string {
	if p == nil {
		return nil
	}
	tables := make([]string, 0, len(p.tables))
	for t := range p.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
