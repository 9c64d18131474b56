package schema

import "github.com/meteorhacks/dialog/dialogerr"

// Builder builds a Schema additively, column by column, rejecting
// duplicate names up front. A table's schema is immutable once Build
// succeeds.
type Builder struct {
	columns []Column
	seen    map[string]bool
}

func NewBuilder() *Builder {
	return &Builder{
		seen: make(map[string]bool),
	}
}

// AddColumn appends a column. width is only meaningful (and required) for
// String columns; fixed-width types use ColumnType.Width().
func (b *Builder) AddColumn(t ColumnType, name string, width int) error {
	if b.seen[name] {
		return dialogerr.DuplicateColumn(name)
	}

	w := t.Width()
	if t == String {
		w = width
	}

	b.columns = append(b.columns, Column{Name: name, Type: t, Width: w})
	b.seen[name] = true

	return nil
}

// Build finalizes the schema: prepends the implicit TIMESTAMP (LONG)
// column at offset 0, assigns offsets to every column in declared order,
// and computes the fixed record size.
func (b *Builder) Build() (*Schema, error) {
	cols := make([]Column, 0, len(b.columns)+1)
	cols = append(cols, Column{Name: TimestampColumn, Type: Long, Width: Long.Width()})
	cols = append(cols, b.columns...)

	offset := 0
	for i := range cols {
		cols[i].Offset = offset
		offset += cols[i].Width
	}

	return &Schema{columns: cols, recordSize: offset, byName: indexByName(cols)}, nil
}

func indexByName(cols []Column) map[string]int {
	m := make(map[string]int, len(cols))
	for i, c := range cols {
		m[c.Name] = i
	}
	return m
}

// Schema is the immutable, ordered column layout of a table.
type Schema struct {
	columns    []Column
	recordSize int
	byName     map[string]int
}

func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

func (s *Schema) RecordSize() int {
	return s.recordSize
}

func (s *Schema) ColumnByName(name string) (Column, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}
