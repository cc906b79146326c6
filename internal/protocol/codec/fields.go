package codec

import (
	"fmt"
	"sort"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

// fieldOps are the typed accessors a field constructor closes over. m is
// always a pointer to the declaring Go type.
type fieldOps struct {
	encode func(e *encoder, b []byte, m any) ([]byte, error)
	decode func(d *decoder, tab *wire.Table, occ []wire.FieldInfo, m any) error
	reset  func(m any)
}

// FieldDecl is one entry of a Describe[T] table.
type FieldDecl[T any] struct{ f *Field }

// CaseDecl is one case of a oneof variant V.
type CaseDecl[V any] struct{ f *Field }

// FieldOption adjusts a declared field.
type FieldOption func(*Field)

// Number pins the field number instead of the declaration position.
func Number(n int32) FieldOption {
	return func(f *Field) {
		f.Number = wire.Number(n)
		f.explicit = true
	}
}

// Unpacked writes a repeated scalar field as one key per element.
func Unpacked() FieldOption {
	return func(f *Field) { f.Packed = false }
}

func newField(name string, ref TypeRef, label Label, opts []FieldOption) *Field {
	f := &Field{Name: name, Ref: ref, Label: label}
	if label == LabelRepeated && ref.Kind.Packable() {
		f.Packed = true
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Singular declares a plain field. Under proto3 a zero value is not written;
// under proto2 it always is, and a nil message is an encode error.
func Singular[T, V any](name string, typ Type[V], get func(*T) *V, opts ...FieldOption) FieldDecl[T] {
	f := newField(name, typ.ref, LabelSingular, opts)
	f.ops = fieldOps{
		encode: func(e *encoder, b []byte, m any) ([]byte, error) {
			v := *get(m.(*T))
			if typ.isZero(v) {
				if typ.nilable {
					if f.proto2() {
						return b, encodeErr(f, "required field not set")
					}
					return b, nil
				}
				if !f.proto2() {
					return b, nil
				}
			}
			b = wire.AppendKey(b, f.Number, typ.ref.Kind.WireType())
			return typ.appendValue(e, f, b, v)
		},
		decode: func(d *decoder, tab *wire.Table, occ []wire.FieldInfo, m any) error {
			v, err := typ.consume(d, f, tab, occ[len(occ)-1])
			if err != nil {
				return err
			}
			*get(m.(*T)) = v
			return nil
		},
		reset: func(m any) {
			var zero V
			*get(m.(*T)) = zero
		},
	}
	return FieldDecl[T]{f: f}
}

// Optional declares a field with explicit presence: a non-nil pointer is
// always written, even when it points at a zero value.
func Optional[T, V any](name string, typ Type[V], get func(*T) **V, opts ...FieldOption) FieldDecl[T] {
	f := newField(name, typ.ref, LabelOptional, opts)
	f.ops = fieldOps{
		encode: func(e *encoder, b []byte, m any) ([]byte, error) {
			p := *get(m.(*T))
			if p == nil {
				return b, nil
			}
			b = wire.AppendKey(b, f.Number, typ.ref.Kind.WireType())
			return typ.appendValue(e, f, b, *p)
		},
		decode: func(d *decoder, tab *wire.Table, occ []wire.FieldInfo, m any) error {
			v, err := typ.consume(d, f, tab, occ[len(occ)-1])
			if err != nil {
				return err
			}
			*get(m.(*T)) = &v
			return nil
		},
		reset: func(m any) { *get(m.(*T)) = nil },
	}
	return FieldDecl[T]{f: f}
}

// Repeated declares a list field. Varint and fixed element kinds are packed
// unless Unpacked is given; strings, bytes and messages never are.
func Repeated[T, V any](name string, typ Type[V], get func(*T) *[]V, opts ...FieldOption) FieldDecl[T] {
	f := newField(name, typ.ref, LabelRepeated, opts)
	f.ops = fieldOps{
		encode: func(e *encoder, b []byte, m any) ([]byte, error) {
			list := *get(m.(*T))
			if len(list) == 0 {
				return b, nil
			}
			if f.Packed {
				return appendPacked(e, f, typ, b, list)
			}
			wt := typ.ref.Kind.WireType()
			for _, v := range list {
				if typ.nilable && typ.isZero(v) {
					return b, encodeErr(f, "nil element in repeated field")
				}
				b = wire.AppendKey(b, f.Number, wt)
				var err error
				if b, err = typ.appendValue(e, f, b, v); err != nil {
					return b, err
				}
			}
			return b, nil
		},
		decode: func(d *decoder, tab *wire.Table, occ []wire.FieldInfo, m any) error {
			list := *get(m.(*T))
			for _, info := range occ {
				if info.Type == wire.Bytes && typ.ref.Kind.Packable() {
					var err error
					if list, err = unpack(f, typ, tab.Data(info), list); err != nil {
						return err
					}
					continue
				}
				v, err := typ.consume(d, f, tab, info)
				if err != nil {
					return err
				}
				list = append(list, v)
			}
			*get(m.(*T)) = list
			return nil
		},
		reset: func(m any) { *get(m.(*T)) = nil },
	}
	return FieldDecl[T]{f: f}
}

func appendPacked[V any](e *encoder, f *Field, typ Type[V], b []byte, list []V) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	span := (*buf)[:0]
	for _, v := range list {
		var err error
		if span, err = typ.appendValue(e, f, span, v); err != nil {
			return b, err
		}
	}
	*buf = span
	b = wire.AppendKey(b, f.Number, wire.Bytes)
	return wire.AppendBytes(b, span), nil
}

// unpack splits one packed span into elements of the field's kind.
func unpack[V any](f *Field, typ Type[V], data []byte, out []V) ([]V, error) {
	size := 0
	switch typ.ref.Kind.WireType() {
	case wire.Fixed32:
		size = 4
	case wire.Fixed64:
		size = 8
	}
	if size > 0 && len(data)%size != 0 {
		return out, &protocol.DecodeError{
			Reason:  protocol.Truncated,
			Message: ownerName(f),
			Field:   int32(f.Number),
			Err:     fmt.Errorf("packed span of %d bytes is not a multiple of %d", len(data), size),
		}
	}
	for len(data) > 0 {
		var val value
		switch size {
		case 4:
			x, _, _ := wire.ConsumeFixed32(data)
			val.u = uint64(x)
			data = data[4:]
		case 8:
			x, _, _ := wire.ConsumeFixed64(data)
			val.u = x
			data = data[8:]
		default:
			x, n, err := wire.ConsumeVarint(data)
			if err != nil {
				return out, withField(err, f)
			}
			val.u = x
			data = data[n:]
		}
		v, err := typ.convert(f, val)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Map declares a map field, written as repeated entry messages with the key
// at number 1 and the value at number 2. Entries are written in key order.
func Map[T any, K comparable, V any](name string, key Type[K], val Type[V], get func(*T) *map[K]V, opts ...FieldOption) FieldDecl[T] {
	keyRef, valRef := key.ref, val.ref
	ref := TypeRef{Kind: MapKind, key: &keyRef, elem: &valRef, goName: fmt.Sprintf("map[%s]%s", keyRef.GoName(), valRef.GoName())}
	f := newField(name, ref, LabelRepeated, opts)
	f.ops = fieldOps{
		encode: func(e *encoder, b []byte, m any) ([]byte, error) {
			mp := *get(m.(*T))
			if len(mp) == 0 {
				return b, nil
			}
			if key.toValue == nil {
				return b, encodeErr(f, "map key is not a scalar")
			}
			keys := make([]K, 0, len(mp))
			for k := range mp {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				return lessValue(keyRef.Kind, key.toValue(keys[i]), key.toValue(keys[j]))
			})
			buf := getBuffer()
			defer putBuffer(buf)
			for _, k := range keys {
				entry := (*buf)[:0]
				entry = wire.AppendKey(entry, 1, keyRef.Kind.WireType())
				var err error
				if entry, err = key.appendValue(e, f, entry, k); err != nil {
					return b, err
				}
				v := mp[k]
				if !(val.nilable && val.isZero(v)) {
					entry = wire.AppendKey(entry, 2, valRef.Kind.WireType())
					if entry, err = val.appendValue(e, f, entry, v); err != nil {
						return b, err
					}
				}
				*buf = entry
				b = wire.AppendKey(b, f.Number, wire.Bytes)
				b = wire.AppendBytes(b, entry)
			}
			return b, nil
		},
		decode: func(d *decoder, tab *wire.Table, occ []wire.FieldInfo, m any) error {
			mp := *get(m.(*T))
			if mp == nil {
				mp = make(map[K]V, len(occ))
			}
			for _, info := range occ {
				if info.Type != wire.Bytes {
					return mismatch(f, wire.Bytes, info)
				}
				entry, err := wire.Parse(tab.Data(info))
				if err != nil {
					return withField(err, f)
				}
				var k K
				var v V
				if last, ok := entry.Last(1); ok {
					if k, err = key.consume(d, f, entry, last); err != nil {
						return err
					}
				}
				if last, ok := entry.Last(2); ok {
					if v, err = val.consume(d, f, entry, last); err != nil {
						return err
					}
				}
				mp[k] = v
			}
			*get(m.(*T)) = mp
			return nil
		},
		reset: func(m any) { *get(m.(*T)) = nil },
	}
	return FieldDecl[T]{f: f}
}

func lessValue(k Kind, a, b value) bool {
	switch k {
	case StringKind:
		return a.s < b.s
	case Int32Kind, Int64Kind:
		return int64(a.u) < int64(b.u)
	default:
		return a.u < b.u
	}
}

// Variant is implemented by oneof variant structs, normally by embedding
// Selector. Which returns the field number of the active case, 0 for none.
type Variant interface {
	Which() wire.Number
	Select(n wire.Number)
}

// Selector records the active case of a oneof variant.
type Selector struct {
	which wire.Number
}

func (s Selector) Which() wire.Number { return s.which }

func (s *Selector) Select(n wire.Number) { s.which = n }

// Oneof declares a group of mutually exclusive cases stored in the variant
// struct V. Only the selected case is written, even when its payload is zero.
// When several cases occur in the input the one encountered last wins.
func Oneof[T, V any, PV interface {
	*V
	Variant
}](name string, get func(*T) *V, cases ...CaseDecl[V]) FieldDecl[T] {
	info := &OneofInfo{Name: name}
	for i, c := range cases {
		if !c.f.explicit {
			c.f.Number = wire.Number(i + 1)
		}
		c.f.oneof = info
		info.Cases = append(info.Cases, c.f)
	}
	f := &Field{Name: name, Ref: TypeRef{Kind: OneofKind}, Oneof: info}
	f.ops = fieldOps{
		encode: func(e *encoder, b []byte, m any) ([]byte, error) {
			pv := PV(get(m.(*T)))
			n := pv.Which()
			if n == 0 {
				return b, nil
			}
			c, ok := info.Case(n)
			if !ok {
				return b, encodeErr(f, fmt.Sprintf("oneof %s selects undeclared case %d", name, n))
			}
			return c.ops.encode(e, b, (*V)(pv))
		},
		decode: func(d *decoder, tab *wire.Table, _ []wire.FieldInfo, m any) error {
			var (
				winner *Field
				last   wire.FieldInfo
			)
			for _, c := range info.Cases {
				occ, ok := tab.Last(c.Number)
				if ok && (winner == nil || occ.KeyOffset > last.KeyOffset) {
					winner, last = c, occ
				}
			}
			if winner == nil {
				return nil
			}
			v := get(m.(*T))
			if err := winner.ops.decode(d, tab, []wire.FieldInfo{last}, v); err != nil {
				return err
			}
			PV(v).Select(winner.Number)
			return nil
		},
		reset: func(m any) {
			var zero V
			*get(m.(*T)) = zero
		},
	}
	return FieldDecl[T]{f: f}
}

// Case declares one case of a oneof variant. Numbers follow case position
// unless pinned with Number.
func Case[V, C any](name string, typ Type[C], get func(*V) *C, opts ...FieldOption) CaseDecl[V] {
	f := newField(name, typ.ref, LabelSingular, opts)
	f.ops = fieldOps{
		encode: func(e *encoder, b []byte, m any) ([]byte, error) {
			b = wire.AppendKey(b, f.Number, typ.ref.Kind.WireType())
			return typ.appendValue(e, f, b, *get(m.(*V)))
		},
		decode: func(d *decoder, tab *wire.Table, occ []wire.FieldInfo, m any) error {
			v, err := typ.consume(d, f, tab, occ[len(occ)-1])
			if err != nil {
				return err
			}
			*get(m.(*V)) = v
			return nil
		},
		reset: func(m any) {
			var zero C
			*get(m.(*V)) = zero
		},
	}
	return CaseDecl[V]{f: f}
}

func encodeErr(f *Field, detail string) error {
	return &protocol.EncodeError{
		Reason:  protocol.UnrepresentableType,
		Message: ownerName(f),
		Field:   int32(f.Number),
		Detail:  detail,
	}
}

func withField(err error, f *Field) error {
	if de, ok := err.(*protocol.DecodeError); ok {
		if de.Field == 0 {
			de.Field = int32(f.Number)
		}
		if de.Message == "" {
			de.Message = ownerName(f)
		}
	}
	return err
}
