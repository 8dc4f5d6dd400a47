package rowcodec

import (
	"encoding/binary"
	"fmt"

	"sqlkv/internal/value"
)

// MaxRowBytes is the largest row this codec can produce: variable-column
// payload offsets are stored as big-endian u16, so 65,535 bytes is a hard
// ceiling.
const MaxRowBytes = 65535

// Encode packs row (one Value per column, in schema order) into a byte
// string. len(row) must equal c.Len().
func (c *Columns) Encode(row []value.Value) ([]byte, error) {
	if len(row) != c.Len() {
		return nil, fmt.Errorf("rowcodec: wrong number of columns: expected %d, got %d", c.Len(), len(row))
	}

	bitmaskStart := c.bitmaskStart()
	out := make([]byte, bitmaskStart+c.bitmaskSize())

	for i, v := range row {
		entry := c.entries[i]
		if size, fixed := entry.Type.Size(); fixed {
			if v.IsNull() {
				continue
			}
			byteIdx, bit := entry.bitmaskIndex()
			out[bitmaskStart+byteIdx] |= 1 << uint(bit)
			encoded, err := encodeFixed(entry.Type, v)
			if err != nil {
				return nil, err
			}
			if len(encoded) != size {
				return nil, fmt.Errorf("rowcodec: internal: encoded size mismatch for column %d", i)
			}
			copy(out[entry.Offset:entry.Offset+size], encoded)
		} else {
			if v.IsNull() {
				continue
			}
			payload, err := encodeVariable(entry.Type, v)
			if err != nil {
				return nil, err
			}
			dictPos := c.sizedLen + entry.Offset
			dataPos := len(out)
			if dataPos > 0xFFFF {
				return nil, fmt.Errorf("rowcodec: row exceeds maximum size of %d bytes", MaxRowBytes)
			}
			binary.BigEndian.PutUint16(out[dictPos:dictPos+2], uint16(dataPos))
			out = append(out, payload...)
		}
	}

	if len(out) > MaxRowBytes {
		return nil, fmt.Errorf("rowcodec: row exceeds maximum size of %d bytes (got %d)", MaxRowBytes, len(out))
	}
	return out, nil
}

// Decode unpacks a byte string produced by Encode back into a Value per
// column, the exact inverse of Encode for every in-schema row.
func (c *Columns) Decode(row []byte) ([]value.Value, error) {
	out := make([]value.Value, c.Len())
	for i := range c.entries {
		v, err := c.DecodeColumn(i, row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DecodeColumn decodes a single column's value out of an encoded row,
// without materializing the rest of the row.
func (c *Columns) DecodeColumn(i int, row []byte) (value.Value, error) {
	if i < 0 || i >= len(c.entries) {
		return value.Null, fmt.Errorf("rowcodec: internal: no column for index %d", i)
	}
	entry := c.entries[i]

	if size, fixed := entry.Type.Size(); fixed {
		byteIdx, bit := entry.bitmaskIndex()
		bitmaskStart := c.bitmaskStart()
		if bitmaskStart+byteIdx >= len(row) {
			return value.Null, fmt.Errorf("rowcodec: row too short for null bitmap")
		}
		if row[bitmaskStart+byteIdx]&(1<<uint(bit)) == 0 {
			return value.Null, nil
		}
		if entry.Offset+size > len(row) {
			return value.Null, fmt.Errorf("rowcodec: row too short for column %d", i)
		}
		return decodeFixed(entry.Type, row[entry.Offset:entry.Offset+size])
	}

	dictPos := c.sizedLen + entry.Offset
	if dictPos+2 > len(row) {
		return value.Null, fmt.Errorf("rowcodec: row too short for directory slot %d", i)
	}
	dataPos := int(binary.BigEndian.Uint16(row[dictPos : dictPos+2]))
	if dataPos == 0 {
		return value.Null, nil
	}

	end := c.variableEnd(dictPos, row)
	if dataPos > len(row) || end > len(row) || end < dataPos {
		return value.Null, fmt.Errorf("rowcodec: corrupt directory slot for column %d", i)
	}
	return decodeVariable(entry.Type, row[dataPos:end])
}

// variableEnd finds the end offset of the variable payload whose directory
// slot starts at dictPos: the next nonzero directory slot found scanning
// forward, or end-of-row if there is none.
func (c *Columns) variableEnd(dictPos int, row []byte) int {
	lastDictPos := c.sizedLen + (c.unsizedCount-1)*2
	next := dictPos
	for {
		next += 2
		if next > lastDictPos {
			return len(row)
		}
		if next+2 > len(row) {
			return len(row)
		}
		end := int(binary.BigEndian.Uint16(row[next : next+2]))
		if end > 0 {
			return end
		}
	}
}

func encodeFixed(t value.Type, v value.Value) ([]byte, error) {
	switch t {
	case value.TypeInteger:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.Int()))
		return buf, nil
	default:
		return nil, fmt.Errorf("rowcodec: internal: %s is not a fixed-size type", t)
	}
}

func decodeFixed(t value.Type, b []byte) (value.Value, error) {
	switch t {
	case value.TypeInteger:
		return value.Integer(int64(binary.BigEndian.Uint64(b))), nil
	default:
		return value.Null, fmt.Errorf("rowcodec: internal: %s is not a fixed-size type", t)
	}
}

func encodeVariable(t value.Type, v value.Value) ([]byte, error) {
	switch t {
	case value.TypeString:
		return []byte(v.Str()), nil
	default:
		return nil, fmt.Errorf("rowcodec: internal: %s is not a variable-size type", t)
	}
}

func decodeVariable(t value.Type, b []byte) (value.Value, error) {
	switch t {
	case value.TypeString:
		return value.String(string(b)), nil
	default:
		return value.Null, fmt.Errorf("rowcodec: internal: %s is not a variable-size type", t)
	}
}
