// Package rowcodec packs typed rows into byte strings preserving
// null-awareness and variable-length fields. A row is laid out as a
// fixed-size section, a directory of variable-size column offsets, a null
// bitmap for fixed-size columns, and the variable payloads themselves.
package rowcodec

import (
	"fmt"

	"sqlkv/internal/value"
)

// ColumnEntry is one column's position within a row layout. Offset is the
// byte offset into the fixed section for fixed-size columns, or the byte
// offset of this column's 2-byte directory slot (relative to the start of
// the directory) for variable-size columns. NullBit is only meaningful for
// fixed-size columns.
type ColumnEntry struct {
	Type    value.Type
	Offset  int
	NullBit int
}

func (e ColumnEntry) bitmaskIndex() (byteIdx, bit int) {
	return e.NullBit / 8, e.NullBit % 8
}

// Columns is an ordered, named schema: the layout a row is encoded against.
// Column order is insertion order and is observable (SELECT *).
type Columns struct {
	names   []string
	entries []ColumnEntry

	sizedLen    int
	sizedCount  int
	unsizedCount int
}

// NewColumns returns an empty schema.
func NewColumns() *Columns {
	return &Columns{}
}

// Len reports the number of columns.
func (c *Columns) Len() int { return len(c.names) }

// SizedLen is the total byte length of the fixed-size section.
func (c *Columns) SizedLen() int { return c.sizedLen }

// SizedCount is the number of fixed-size columns.
func (c *Columns) SizedCount() int { return c.sizedCount }

// UnsizedCount is the number of variable-size columns.
func (c *Columns) UnsizedCount() int { return c.unsizedCount }

// Names returns the column names in schema order.
func (c *Columns) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// IndexOf returns a column's index by name, or -1 if it is not present.
// Names are case-sensitive and unique within a schema.
func (c *Columns) IndexOf(name string) int {
	for i, n := range c.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Entry returns the ColumnEntry at index i.
func (c *Columns) Entry(i int) ColumnEntry { return c.entries[i] }

// Type returns the declared Type at index i.
func (c *Columns) Type(i int) value.Type { return c.entries[i].Type }

func (c *Columns) bitmaskSize() int {
	return (c.sizedCount + 7) / 8
}

// bitmaskStart is the byte offset where the null bitmap begins: after the
// fixed section and the variable-column directory.
func (c *Columns) bitmaskStart() int {
	return c.sizedLen + c.unsizedCount*2
}

// AddColumn appends a new named column of the given type to the schema.
// It returns the new column's index, or an error if the name is already
// used.
func (c *Columns) AddColumn(name string, t value.Type) (int, error) {
	if c.IndexOf(name) >= 0 {
		return -1, fmt.Errorf("rowcodec: duplicate column name %q", name)
	}
	idx := len(c.names)
	if size, fixed := t.Size(); fixed {
		c.entries = append(c.entries, ColumnEntry{Type: t, Offset: c.sizedLen, NullBit: c.sizedCount})
		c.sizedLen += size
		c.sizedCount++
	} else {
		c.entries = append(c.entries, ColumnEntry{Type: t, Offset: c.unsizedCount * 2})
		c.unsizedCount++
	}
	c.names = append(c.names, name)
	return idx, nil
}
