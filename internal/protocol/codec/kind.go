package codec

import (
	"fmt"

	"github.com/danmuck/protokit/internal/protocol/wire"
)

// Kind is the proto-level type of a field value.
type Kind uint8

const (
	InvalidKind Kind = iota
	BoolKind
	Int32Kind
	Int64Kind
	Uint32Kind
	Uint64Kind
	FloatKind
	DoubleKind
	StringKind
	BytesKind
	EnumKind
	MessageKind
	MapKind
	OneofKind
)

func (k Kind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case Int32Kind:
		return "int32"
	case Int64Kind:
		return "int64"
	case Uint32Kind:
		return "uint32"
	case Uint64Kind:
		return "uint64"
	case FloatKind:
		return "float"
	case DoubleKind:
		return "double"
	case StringKind:
		return "string"
	case BytesKind:
		return "bytes"
	case EnumKind:
		return "enum"
	case MessageKind:
		return "message"
	case MapKind:
		return "map"
	case OneofKind:
		return "oneof"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// WireType is the wire type a single value of this kind is written with.
func (k Kind) WireType() wire.Type {
	switch k {
	case FloatKind:
		return wire.Fixed32
	case DoubleKind:
		return wire.Fixed64
	case StringKind, BytesKind, MessageKind, MapKind:
		return wire.Bytes
	default:
		return wire.Varint
	}
}

// Scalar reports whether values of this kind carry no nested structure.
func (k Kind) Scalar() bool {
	return k >= BoolKind && k <= EnumKind
}

// Packable reports whether repeated values of this kind use packed encoding.
func (k Kind) Packable() bool {
	return k.Scalar() && k.WireType() != wire.Bytes
}

// MapKey reports whether the kind may key a map.
func (k Kind) MapKey() bool {
	switch k {
	case BoolKind, Int32Kind, Int64Kind, Uint32Kind, Uint64Kind, StringKind:
		return true
	default:
		return false
	}
}

// Syntax selects proto2 or proto3 field presence rules.
type Syntax uint8

const (
	Proto3 Syntax = iota
	Proto2
)

func (s Syntax) String() string {
	if s == Proto2 {
		return "proto2"
	}
	return "proto3"
}

// Label is the cardinality of a declared field.
type Label uint8

const (
	LabelSingular Label = iota
	LabelOptional
	LabelRepeated
)

func (l Label) String() string {
	switch l {
	case LabelOptional:
		return "optional"
	case LabelRepeated:
		return "repeated"
	default:
		return "singular"
	}
}
