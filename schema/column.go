// Package schema implements the typed column layout and fixed-width
// record codec: an ordered list of columns (name, type, width, offset)
// with a TIMESTAMP column implicitly prepended, and byte <-> typed-value
// conversion using little-endian encoding and zero-padded strings.
package schema

// ColumnType is the closed set of column types a schema may declare.
type ColumnType uint8

const (
	Bool ColumnType = iota
	Char         // INT8
	Short        // INT16
	Int          // INT32
	Long         // INT64
	Float        // 4 bytes
	Double       // 8 bytes
	String       // N bytes, compile-time-known width
)

// Width returns the byte width of fixed-width types; String columns carry
// their own width and are not covered here.
func (t ColumnType) Width() int {
	switch t {
	case Bool, Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		return 0
	}
}

func (t ColumnType) String() string {
	switch t {
	case Bool:
		return "BOOL"
	case Char:
		return "CHAR"
	case Short:
		return "SHORT"
	case Int:
		return "INT"
	case Long:
		return "LONG"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case String:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// Column is one field in a Schema: name, type, byte width, and byte
// offset within a record.
type Column struct {
	Name   string
	Type   ColumnType
	Width  int
	Offset int
}

// TimestampColumn is the implicit column every table prepends at offset 0.
const TimestampColumn = "__timestamp__"
