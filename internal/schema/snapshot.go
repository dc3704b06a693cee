// Package schema holds immutable point-in-time views of database schema metadata.
package schema

import "sort"

// Table is one relation known to a Snapshot.
type Table struct {
	Schema  string
	Name    string
	Comment *string
	Columns []Column
}

// Column is a column of a Table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Comment  *string
}

// QualifiedName returns "schema.name", or just the name when the schema is empty.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

type tableKey struct {
	schema string
	name   string
}

// Snapshot is immutable once built. Share it by pointer; replace it, never mutate it.
type Snapshot struct {
	tables map[tableKey]*Table
	byName map[string][]*Table
	sorted []*Table
}

var empty = NewSnapshot(nil)

// Empty returns the shared snapshot with no tables.
func Empty() *Snapshot {
	return empty
}

// NewSnapshot builds a snapshot from tables. The tables are copied, so the
// caller may reuse the slice. A later table with the same (schema, name)
// replaces an earlier one.
func NewSnapshot(tables []Table) *Snapshot {
	s := &Snapshot{
		tables: make(map[tableKey]*Table, len(tables)),
		byName: make(map[string][]*Table, len(tables)),
	}
	for i := range tables {
		t := copyTable(tables[i])
		key := tableKey{schema: t.Schema, name: t.Name}
		s.tables[key] = t
	}
	for _, t := range s.tables {
		s.byName[t.Name] = append(s.byName[t.Name], t)
		s.sorted = append(s.sorted, t)
	}
	sort.Slice(s.sorted, func(i, j int) bool {
		if s.sorted[i].Schema != s.sorted[j].Schema {
			return s.sorted[i].Schema < s.sorted[j].Schema
		}
		return s.sorted[i].Name < s.sorted[j].Name
	})
	return s
}

func copyTable(t Table) *Table {
	out := t
	if t.Comment != nil {
		comment := *t.Comment
		out.Comment = &comment
	}
	out.Columns = make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		out.Columns[i] = c
		if c.Comment != nil {
			comment := *c.Comment
			out.Columns[i].Comment = &comment
		}
	}
	return &out
}

// Len returns the number of tables.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sorted)
}

// Tables returns the tables ordered by schema and name. The returned tables
// must be treated as read-only.
func (s *Snapshot) Tables() []*Table {
	if s == nil {
		return nil
	}
	return append([]*Table(nil), s.sorted...)
}

// FindTable resolves a relation reference. See Lookup for the rules; it
// returns nil unless exactly one table matches.
func (s *Snapshot) FindTable(name, schemaName string) *Table {
	table, _ := s.Lookup(name, schemaName)
	return table
}

// Lookup resolves name, optionally qualified by schemaName, and reports how
// many tables matched. Names compare exactly, so callers pass unquoted
// identifiers folded to lower case and quoted ones as written. An unqualified
// name only resolves when it is unique across all schemas.
func (s *Snapshot) Lookup(name, schemaName string) (*Table, int) {
	if s == nil || name == "" {
		return nil, 0
	}
	var matches []*Table
	for _, t := range s.byName[name] {
		if schemaName == "" || t.Schema == schemaName {
			matches = append(matches, t)
		}
	}
	if len(matches) != 1 {
		return nil, len(matches)
	}
	return matches[0], 1
}
