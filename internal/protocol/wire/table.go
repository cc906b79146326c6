package wire

import (
	"errors"
	"sort"

	"github.com/danmuck/protokit/internal/protocol"
)

// FieldInfo is one field occurrence inside a parsed span. Offsets are relative
// to the start of the span handed to Parse.
type FieldInfo struct {
	Number      Number
	Type        Type
	KeyOffset   int
	ValueOffset int
	Length      int

	// Varint, Fixed32 and Fixed64 hold the value for their wire type.
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64

	// DataOffset and DataLen locate the payload of a length-delimited value.
	DataOffset int
	DataLen    int
}

// Table maps field numbers to their occurrences in encounter order.
type Table struct {
	buf    []byte
	fields []FieldInfo
	byNum  map[Number][]int
}

// Parse tokenizes b into a Table without interpreting field semantics.
// Truncated keys or values and group wire types are decode errors.
func Parse(b []byte) (*Table, error) {
	t := &Table{buf: b, byNum: make(map[Number][]int)}
	off := 0
	for off < len(b) {
		info, err := consumeField(b, off)
		if err != nil {
			return nil, err
		}
		t.byNum[info.Number] = append(t.byNum[info.Number], len(t.fields))
		t.fields = append(t.fields, info)
		off += info.Length
	}
	return t, nil
}

func consumeField(b []byte, off int) (FieldInfo, error) {
	num, typ, kn, err := ConsumeKey(b[off:])
	if err != nil {
		return FieldInfo{}, atOffset(err, off)
	}
	info := FieldInfo{Number: num, Type: typ, KeyOffset: off, ValueOffset: off + kn}
	rest := b[info.ValueOffset:]
	var vn int
	switch typ {
	case Varint:
		info.Varint, vn, err = ConsumeVarint(rest)
	case Fixed32:
		info.Fixed32, vn, err = ConsumeFixed32(rest)
	case Fixed64:
		info.Fixed64, vn, err = ConsumeFixed64(rest)
	case Bytes:
		var data []byte
		data, vn, err = ConsumeBytes(rest)
		if err == nil {
			info.DataLen = len(data)
			info.DataOffset = info.ValueOffset + vn - len(data)
		}
	default:
		err = &protocol.DecodeError{Reason: protocol.UnsupportedWireType, Found: uint8(typ)}
	}
	if err != nil {
		return FieldInfo{}, atOffset(withField(err, num), info.ValueOffset)
	}
	info.Length = kn + vn
	return info, nil
}

func atOffset(err error, off int) error {
	var de *protocol.DecodeError
	if errors.As(err, &de) && de.Offset == 0 {
		de.Offset = off
	}
	return err
}

func withField(err error, n Number) error {
	var de *protocol.DecodeError
	if errors.As(err, &de) && de.Field == 0 {
		de.Field = int32(n)
	}
	return err
}

// Len is the number of occurrences in the table.
func (t *Table) Len() int { return len(t.fields) }

// Fields returns every occurrence in encounter order.
func (t *Table) Fields() []FieldInfo { return t.fields }

// Has reports whether n occurred at least once.
func (t *Table) Has(n Number) bool { return len(t.byNum[n]) > 0 }

// All returns the occurrences of n in encounter order.
func (t *Table) All(n Number) []FieldInfo {
	idx := t.byNum[n]
	if len(idx) == 0 {
		return nil
	}
	out := make([]FieldInfo, len(idx))
	for i, j := range idx {
		out[i] = t.fields[j]
	}
	return out
}

// Last returns the final occurrence of n, which is the one a singular field uses.
func (t *Table) Last(n Number) (FieldInfo, bool) {
	idx := t.byNum[n]
	if len(idx) == 0 {
		return FieldInfo{}, false
	}
	return t.fields[idx[len(idx)-1]], true
}

// Numbers returns the distinct field numbers present, ascending.
func (t *Table) Numbers() []Number {
	out := make([]Number, 0, len(t.byNum))
	for n := range t.byNum {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Data returns the payload of a length-delimited occurrence. It aliases the
// parsed buffer.
func (t *Table) Data(f FieldInfo) []byte {
	if f.Type != Bytes {
		return nil
	}
	return t.buf[f.DataOffset : f.DataOffset+f.DataLen]
}

// Raw returns the complete encoded occurrence, key included.
func (t *Table) Raw(f FieldInfo) []byte {
	return t.buf[f.KeyOffset : f.KeyOffset+f.Length]
}
