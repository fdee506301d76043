// Package document builds search documents from queued records.
package document

import (
	"fmt"
	"sort"
)

// Reserved field names set on every document.
const (
	FieldID      = "id"
	FieldType    = "type"
	FieldUID     = "uid"
	FieldSite    = "site"
	FieldChanged = "changed"
)

// Document is an explicit field-name to value mapping.
type Document struct {
	fields map[string]any
}

// New creates an empty document.
func New() *Document {
	return &Document{fields: make(map[string]any)}
}

// Get returns the value of field and whether it is set.
func (d *Document) Get(field string) (any, bool) {
	v, ok := d.fields[field]
	return v, ok
}

// Set assigns a field value.
func (d *Document) Set(field string, value any) {
	d.fields[field] = value
}

// Fields returns the set field names sorted.
func (d *Document) Fields() []string {
	names := make([]string, 0, len(d.fields))
	for name := range d.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the fields.
func (d *Document) Map() map[string]any {
	m := make(map[string]any, len(d.fields))
	for k, v := range d.fields {
		m[k] = v
	}
	return m
}

// ID returns the document id of a record below a site root page.
func ID(rootPageID int64, table string, uid int64) string {
	return fmt.Sprintf("%d/%s/%d", rootPageID, table, uid)
}
