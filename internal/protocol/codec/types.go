package codec

import (
	"fmt"
	"math"
	"net/url"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

// value is the wire-level form of one scalar: integers, bools, enums and float
// bit patterns live in u, strings in s and bytes in b.
type value struct {
	u uint64
	s string
	b []byte
}

// Type maps the Go type V onto the wire. Scalar types convert through value;
// message-shaped types append and consume their length-delimited payload.
type Type[V any] struct {
	ref       TypeRef
	isZero    func(V) bool
	toValue   func(V) value
	fromValue func(value) (V, error)

	// nilable types treat the zero value as absence rather than a value.
	nilable    bool
	appendMsg  func(e *encoder, b []byte, v V) ([]byte, error)
	consumeMsg func(d *decoder, data []byte) (V, error)
}

// Ref is the schema-level description of V.
func (t Type[V]) Ref() TypeRef { return t.ref }

func (t Type[V]) message() bool { return t.consumeMsg != nil }

// appendValue writes v without a key.
func (t Type[V]) appendValue(e *encoder, f *Field, b []byte, v V) ([]byte, error) {
	if t.message() {
		return t.appendMsg(e, b, v)
	}
	val := t.toValue(v)
	if t.ref.Kind == StringKind && !f.proto2() && !utf8.ValidString(val.s) {
		return b, &protocol.EncodeError{
			Reason:  protocol.UnrepresentableType,
			Message: ownerName(f),
			Field:   int32(f.Number),
			Detail:  "string is not valid UTF-8",
		}
	}
	return appendScalar(b, t.ref.Kind, val), nil
}

// consume reads one occurrence.
func (t Type[V]) consume(d *decoder, f *Field, tab *wire.Table, info wire.FieldInfo) (V, error) {
	var zero V
	if t.message() {
		if info.Type != wire.Bytes {
			return zero, mismatch(f, wire.Bytes, info)
		}
		return t.consumeMsg(d, tab.Data(info))
	}
	val, err := readScalar(f, t.ref.Kind, tab, info)
	if err != nil {
		return zero, err
	}
	return t.convert(f, val)
}

func (t Type[V]) convert(f *Field, val value) (V, error) {
	if t.ref.Kind == StringKind && !f.proto2() && !utf8.ValidString(val.s) {
		var zero V
		return zero, &protocol.DecodeError{
			Reason:  protocol.InvalidValue,
			Message: ownerName(f),
			Field:   int32(f.Number),
			Err:     fmt.Errorf("string is not valid UTF-8"),
		}
	}
	v, err := t.fromValue(val)
	if err != nil {
		return v, &protocol.DecodeError{Reason: protocol.InvalidValue, Message: ownerName(f), Field: int32(f.Number), Err: err}
	}
	return v, nil
}

func appendScalar(b []byte, k Kind, v value) []byte {
	switch k {
	case FloatKind:
		return wire.AppendFixed32(b, uint32(v.u))
	case DoubleKind:
		return wire.AppendFixed64(b, v.u)
	case StringKind:
		return wire.AppendString(b, v.s)
	case BytesKind:
		return wire.AppendBytes(b, v.b)
	default:
		return wire.AppendVarint(b, v.u)
	}
}

func readScalar(f *Field, k Kind, tab *wire.Table, info wire.FieldInfo) (value, error) {
	want := k.WireType()
	if info.Type != want {
		return value{}, mismatch(f, want, info)
	}
	switch want {
	case wire.Varint:
		return value{u: info.Varint}, nil
	case wire.Fixed32:
		return value{u: uint64(info.Fixed32)}, nil
	case wire.Fixed64:
		return value{u: info.Fixed64}, nil
	}
	data := tab.Data(info)
	if k == StringKind {
		return value{s: string(data)}, nil
	}
	return value{b: append([]byte{}, data...)}, nil
}

func mismatch(f *Field, want wire.Type, info wire.FieldInfo) error {
	return &protocol.DecodeError{
		Reason:   protocol.TypeMismatch,
		Message:  ownerName(f),
		Field:    int32(info.Number),
		Offset:   info.KeyOffset,
		Expected: uint8(want),
		Found:    uint8(info.Type),
	}
}

func ownerName(f *Field) string {
	if f == nil || f.owner == nil {
		return ""
	}
	return f.owner.name
}

func scalar[V comparable](k Kind, to func(V) value, from func(value) V) Type[V] {
	var zero V
	return Type[V]{
		ref:       TypeRef{Kind: k, goName: reflect.TypeFor[V]().String()},
		isZero:    func(v V) bool { return v == zero },
		toValue:   to,
		fromValue: func(val value) (V, error) { return from(val), nil },
	}
}

var (
	Bool = scalar(BoolKind,
		func(v bool) value {
			if v {
				return value{u: 1}
			}
			return value{}
		},
		func(val value) bool { return val.u != 0 })

	Int32 = scalar(Int32Kind,
		func(v int32) value { return value{u: uint64(int64(v))} },
		func(val value) int32 { return int32(val.u) })

	Int64 = scalar(Int64Kind,
		func(v int64) value { return value{u: uint64(v)} },
		func(val value) int64 { return int64(val.u) })

	// Int carries Go's int as int64.
	Int = scalar(Int64Kind,
		func(v int) value { return value{u: uint64(int64(v))} },
		func(val value) int { return int(int64(val.u)) })

	Uint32 = scalar(Uint32Kind,
		func(v uint32) value { return value{u: uint64(v)} },
		func(val value) uint32 { return uint32(val.u) })

	Uint64 = scalar(Uint64Kind,
		func(v uint64) value { return value{u: v} },
		func(val value) uint64 { return val.u })

	// Uint carries Go's uint as uint64.
	Uint = scalar(Uint64Kind,
		func(v uint) value { return value{u: uint64(v)} },
		func(val value) uint { return uint(val.u) })

	Float = scalar(FloatKind,
		func(v float32) value { return value{u: uint64(math.Float32bits(v))} },
		func(val value) float32 { return math.Float32frombits(uint32(val.u)) })

	Double = scalar(DoubleKind,
		func(v float64) value { return value{u: math.Float64bits(v)} },
		func(val value) float64 { return math.Float64frombits(val.u) })

	String = scalar(StringKind,
		func(v string) value { return value{s: v} },
		func(val value) string { return val.s })

	Bytes = Type[[]byte]{
		ref:       TypeRef{Kind: BytesKind, goName: "[]byte"},
		isZero:    func(v []byte) bool { return len(v) == 0 },
		toValue:   func(v []byte) value { return value{b: v} },
		fromValue: func(val value) ([]byte, error) { return val.b, nil },
	}

	// UUID travels as its canonical string form.
	UUID = Type[uuid.UUID]{
		ref:     TypeRef{Kind: StringKind, goName: "uuid.UUID"},
		isZero:  func(v uuid.UUID) bool { return v == uuid.Nil },
		toValue: func(v uuid.UUID) value { return value{s: v.String()} },
		fromValue: func(val value) (uuid.UUID, error) {
			if val.s == "" {
				return uuid.Nil, nil
			}
			return uuid.Parse(val.s)
		},
	}

	// URL travels as its string form. A nil URL is the zero value.
	URL = Type[*url.URL]{
		ref:    TypeRef{Kind: StringKind, goName: "*url.URL"},
		isZero: func(v *url.URL) bool { return v == nil },
		toValue: func(v *url.URL) value {
			if v == nil {
				return value{}
			}
			return value{s: v.String()}
		},
		fromValue: func(val value) (*url.URL, error) {
			if val.s == "" {
				return nil, nil
			}
			return url.Parse(val.s)
		},
	}
)

// EnumOf maps the declared enum E. Its cases come from DescribeEnum[E].
func EnumOf[E ~int32]() Type[E] {
	t := scalar(EnumKind,
		func(v E) value { return value{u: uint64(int64(v))} },
		func(val value) E { return E(int32(val.u)) })
	t.ref.enum = EnumInfoOf[E]
	return t
}

// MessageOf maps a pointer to the declared message M. A nil pointer is the
// zero value and is never written.
func MessageOf[M any]() Type[*M] {
	return Type[*M]{
		ref: TypeRef{
			Kind:    MessageKind,
			message: InfoOf[M],
			goName:  "*" + reflect.TypeFor[M]().String(),
		},
		isZero:  func(v *M) bool { return v == nil },
		nilable: true,
		appendMsg: func(e *encoder, b []byte, v *M) ([]byte, error) {
			info := InfoOf[M]()
			if info == nil {
				return b, unrepresentable(reflect.TypeFor[M]().String())
			}
			if v == nil {
				v = new(M)
			}
			return e.appendNested(b, info, v)
		},
		consumeMsg: func(d *decoder, data []byte) (*M, error) {
			info := InfoOf[M]()
			if info == nil {
				return nil, &protocol.DecodeError{
					Reason: protocol.InvalidValue,
					Err:    fmt.Errorf("no declared field table for %s", reflect.TypeFor[M]()),
				}
			}
			v := new(M)
			if err := d.decodeNested(info, v, data); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Time maps time.Time onto google.protobuf.Timestamp. The zero time is the
// zero value.
var Time = Type[time.Time]{
	ref:    TypeRef{Kind: MessageKind, message: func() *MessageInfo { return timestampInfo }, goName: "time.Time"},
	isZero: func(v time.Time) bool { return v.IsZero() },
	appendMsg: func(e *encoder, b []byte, v time.Time) ([]byte, error) {
		ts := timestamp{Seconds: v.Unix(), Nanos: int32(v.Nanosecond())}
		return e.appendNested(b, timestampInfo, &ts)
	},
	consumeMsg: func(d *decoder, data []byte) (time.Time, error) {
		var ts timestamp
		if err := d.decodeNested(timestampInfo, &ts, data); err != nil {
			return time.Time{}, err
		}
		return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC(), nil
	},
}

// EmptyRef is the bare ref of the Empty marker.
func EmptyRef() TypeRef { return MessageOf[Empty]().Ref() }

func unrepresentable(goName string) error {
	return &protocol.EncodeError{Reason: protocol.UnrepresentableType, Detail: "no declared field table for " + goName}
}
