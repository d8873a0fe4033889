package mindb

import (
	"encoding/binary"
	"math"
	"time"
)

// EncodeTuple serializes values against schema into the on-page tuple
// format: a leading null-bitmap (one bit per column), then each non-null
// value as a fixed- or length-prefixed field depending on its base type.
// Grounded on teacher's tuple.go header+bitmap framing idiom, generalized
// from the teacher's JSON-bodied row to typed binary fields.
func EncodeTuple(schema *Schema, values []Value) ([]byte, error) {
	if len(values) != len(schema.Columns) {
		return nil, NewError(KindDataFormat, "value count %d does not match schema column count %d", len(values), len(schema.Columns))
	}
	bitmapLen := (len(values) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	var body []byte
	for i, col := range schema.Columns {
		v := values[i]
		if v == nil {
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		enc, err := encodeValue(v, col.Type)
		if err != nil {
			return nil, err
		}
		body = append(body, enc...)
	}
	out := make([]byte, 0, bitmapLen+len(body))
	out = append(out, bitmap...)
	out = append(out, body...)
	return out, nil
}

// DecodeTuple is EncodeTuple's inverse.
func DecodeTuple(schema *Schema, data []byte) ([]Value, error) {
	bitmapLen := (len(schema.Columns) + 7) / 8
	if len(data) < bitmapLen {
		return nil, NewError(KindDataFormat, "tuple data shorter than null bitmap")
	}
	bitmap := data[:bitmapLen]
	rest := data[bitmapLen:]
	values := make([]Value, len(schema.Columns))
	for i, col := range schema.Columns {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			values[i] = nil
			continue
		}
		v, n, err := decodeValue(rest, col.Type)
		if err != nil {
			return nil, err
		}
		values[i] = v
		rest = rest[n:]
	}
	return values, nil
}

func encodeValue(v Value, ct ColumnType) ([]byte, error) {
	switch ct.Base {
	case TINYINT, SMALLINT, INTEGER, BIGINT:
		n, ok := v.(int64)
		if !ok {
			return nil, NewError(KindDataFormat, "expected int64 for %s, got %T", ct, v)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case FLOAT, DOUBLE, NUMERIC:
		f, ok := v.(float64)
		if !ok {
			return nil, NewError(KindDataFormat, "expected float64 for %s, got %T", ct, v)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case BOOLEAN:
		b, ok := v.(bool)
		if !ok {
			return nil, NewError(KindDataFormat, "expected bool, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case CHAR, VARCHAR:
		s, ok := v.(string)
		if !ok {
			return nil, NewError(KindDataFormat, "expected string, got %T", v)
		}
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
		return append(lenBuf, []byte(s)...), nil
	case DATE, TIME, DATETIME, TIMESTAMP:
		t, ok := v.(time.Time)
		if !ok {
			return nil, NewError(KindDataFormat, "expected time.Time, got %T", v)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(t.UnixNano()))
		return buf, nil
	case INTERVAL:
		iv, ok := v.(Interval)
		if !ok {
			return nil, NewError(KindDataFormat, "expected Interval, got %T", v)
		}
		buf := make([]byte, 24)
		fields := []int{iv.Years, iv.Months, iv.Days, iv.Hours, iv.Minutes, iv.Seconds}
		for i, f := range fields {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(f)))
		}
		return buf, nil
	case FILE_POINTER:
		fp, ok := v.(FilePointer)
		if !ok {
			return nil, NewError(KindDataFormat, "expected FilePointer, got %T", v)
		}
		buf := make([]byte, 6)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(fp.PageNo))
		binary.LittleEndian.PutUint16(buf[4:6], fp.Slot)
		return buf, nil
	}
	return nil, NewError(KindDataFormat, "unsupported column base type %v", ct.Base)
}

func decodeValue(data []byte, ct ColumnType) (Value, int, error) {
	switch ct.Base {
	case TINYINT, SMALLINT, INTEGER, BIGINT:
		if len(data) < 8 {
			return nil, 0, NewError(KindDataFormat, "truncated integer field")
		}
		return int64(binary.LittleEndian.Uint64(data[:8])), 8, nil
	case FLOAT, DOUBLE, NUMERIC:
		if len(data) < 8 {
			return nil, 0, NewError(KindDataFormat, "truncated float field")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data[:8])), 8, nil
	case BOOLEAN:
		if len(data) < 1 {
			return nil, 0, NewError(KindDataFormat, "truncated boolean field")
		}
		return data[0] != 0, 1, nil
	case CHAR, VARCHAR:
		if len(data) < 4 {
			return nil, 0, NewError(KindDataFormat, "truncated string length prefix")
		}
		n := int(binary.LittleEndian.Uint32(data[:4]))
		if len(data) < 4+n {
			return nil, 0, NewError(KindDataFormat, "truncated string field")
		}
		return string(data[4 : 4+n]), 4 + n, nil
	case DATE, TIME, DATETIME, TIMESTAMP:
		if len(data) < 8 {
			return nil, 0, NewError(KindDataFormat, "truncated temporal field")
		}
		ns := int64(binary.LittleEndian.Uint64(data[:8]))
		return time.Unix(0, ns).UTC(), 8, nil
	case INTERVAL:
		if len(data) < 24 {
			return nil, 0, NewError(KindDataFormat, "truncated interval field")
		}
		get := func(i int) int { return int(int32(binary.LittleEndian.Uint32(data[i*4:]))) }
		return Interval{Years: get(0), Months: get(1), Days: get(2), Hours: get(3), Minutes: get(4), Seconds: get(5)}, 24, nil
	case FILE_POINTER:
		if len(data) < 6 {
			return nil, 0, NewError(KindDataFormat, "truncated file pointer field")
		}
		return FilePointer{PageNo: PageID(binary.LittleEndian.Uint32(data[0:4])), Slot: binary.LittleEndian.Uint16(data[4:6])}, 6, nil
	}
	return nil, 0, NewError(KindDataFormat, "unsupported column base type %v", ct.Base)
}
