package schema

import (
	"encoding/binary"
	"math"

	"github.com/meteorhacks/dialog/dialogerr"
)

// Value is a typed column value. Only the field matching Type is
// meaningful.
type Value struct {
	Type ColumnType
	I    int64
	F32  float32
	F64  float64
	B    bool
	S    string
}

func BoolValue(v bool) Value    { return Value{Type: Bool, B: v} }
func CharValue(v int8) Value    { return Value{Type: Char, I: int64(v)} }
func ShortValue(v int16) Value  { return Value{Type: Short, I: int64(v)} }
func IntValue(v int32) Value    { return Value{Type: Int, I: int64(v)} }
func LongValue(v int64) Value   { return Value{Type: Long, I: v} }
func FloatValue(v float32) Value  { return Value{Type: Float, F32: v} }
func DoubleValue(v float64) Value { return Value{Type: Double, F64: v} }
func StringValue(v string) Value  { return Value{Type: String, S: v} }

// AsFloat64 widens any numeric value to float64, for use by aggregates
// and numeric comparisons regardless of the underlying column type.
func (v Value) AsFloat64() float64 {
	switch v.Type {
	case Bool:
		if v.B {
			return 1
		}
		return 0
	case Char, Short, Int, Long:
		return float64(v.I)
	case Float:
		return float64(v.F32)
	case Double:
		return v.F64
	default:
		return 0
	}
}

// ValidateSize checks a candidate record against the schema's fixed
// record size.
func ValidateSize(s *Schema, data []byte) error {
	if len(data) != s.recordSize {
		return dialogerr.BadSize(s.recordSize, len(data))
	}
	return nil
}

// Encode writes v into dst at col's offset/width, little-endian for
// numeric types, zero-padded for strings.
func Encode(col Column, v Value, dst []byte) {
	buf := dst[col.Offset : col.Offset+col.Width]

	switch col.Type {
	case Bool:
		if v.B {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
	case Char:
		buf[0] = byte(v.I)
	case Short:
		binary.LittleEndian.PutUint16(buf, uint16(v.I))
	case Int:
		binary.LittleEndian.PutUint32(buf, uint32(v.I))
	case Long:
		binary.LittleEndian.PutUint64(buf, uint64(v.I))
	case Float:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v.F32))
	case Double:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.F64))
	case String:
		n := copy(buf, v.S)
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
}

// Decode reads col's slice out of src and returns the typed Value.
func Decode(col Column, src []byte) Value {
	buf := src[col.Offset : col.Offset+col.Width]

	switch col.Type {
	case Bool:
		return Value{Type: Bool, B: buf[0] != 0}
	case Char:
		return Value{Type: Char, I: int64(int8(buf[0]))}
	case Short:
		return Value{Type: Short, I: int64(int16(binary.LittleEndian.Uint16(buf)))}
	case Int:
		return Value{Type: Int, I: int64(int32(binary.LittleEndian.Uint32(buf)))}
	case Long:
		return Value{Type: Long, I: int64(binary.LittleEndian.Uint64(buf))}
	case Float:
		return Value{Type: Float, F32: math.Float32frombits(binary.LittleEndian.Uint32(buf))}
	case Double:
		return Value{Type: Double, F64: math.Float64frombits(binary.LittleEndian.Uint64(buf))}
	case String:
		end := len(buf)
		for end > 0 && buf[end-1] == 0 {
			end--
		}
		return Value{Type: String, S: string(buf[:end])}
	default:
		return Value{}
	}
}

// Timestamp reads the implicit leading TIMESTAMP column from a record.
func Timestamp(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data[0:8]))
}

// SetTimestamp writes ts into the implicit leading TIMESTAMP column.
func SetTimestamp(data []byte, ts int64) {
	binary.LittleEndian.PutUint64(data[0:8], uint64(ts))
}
