package schema

import (
	"fmt"

	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

// ProtoKind discriminates the ProtoType union.
type ProtoKind uint8

const (
	PrimitiveType ProtoKind = iota + 1
	EmptyType
	MessageType
	EnumType
	ReferenceType
)

func (k ProtoKind) String() string {
	switch k {
	case PrimitiveType:
		return "primitive"
	case EmptyType:
		return "empty"
	case MessageType:
		return "message"
	case EnumType:
		return "enum"
	case ReferenceType:
		return "reference"
	default:
		return fmt.Sprintf("proto_kind(%d)", uint8(k))
	}
}

// ProtoType is the schema-level shape of a native type. Which fields are set
// depends on Kind:
//
//	PrimitiveType  Primitive
//	EmptyType      Name (google.protobuf.Empty)
//	MessageType    Name, Message (nil when synthetic), Fields, Oneofs, Syntax
//	EnumType       Name, Enum, Cases, Syntax
//	ReferenceType  Name of a message still under construction
type ProtoType struct {
	Kind      ProtoKind
	Primitive codec.Kind
	Name      Typename

	Message *codec.MessageInfo
	Enum    *codec.EnumInfo
	Syntax  codec.Syntax

	// Fields lists every field in declaration order, oneof members included.
	Fields []*MessageField
	Oneofs []*OneofType
	Cases  []codec.EnumCase

	Reserved      []codec.ReservedRange
	ReservedNames []string

	// MapEntry marks the synthetic entry message of a map field.
	MapEntry bool
	// WellKnown marks types shipped in google/protobuf/*.proto.
	WellKnown bool
}

// MessageField is one field of a MessageType.
type MessageField struct {
	Name     string
	Number   wire.Number
	Type     *ProtoType
	Repeated bool
	Optional bool
	Packed   bool
	// Oneof names the containing oneof, empty for plain fields.
	Oneof string
}

// OneofType groups the cases of one declared oneof.
type OneofType struct {
	Name   string
	Info   *codec.OneofInfo
	Fields []*MessageField
}

// Named reports whether the type is referred to by name in descriptors.
func (t *ProtoType) Named() bool {
	return t.Kind != PrimitiveType
}

// TopLevel reports whether the type may stand alone as an rpc input or
// output, i.e. it is a message.
func (t *ProtoType) TopLevel() bool {
	switch t.Kind {
	case EmptyType, MessageType, ReferenceType:
		return true
	default:
		return false
	}
}

// FieldByName returns the field called name, oneof members included.
func (t *ProtoType) FieldByName(name string) (*MessageField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (t *ProtoType) String() string {
	switch t.Kind {
	case PrimitiveType:
		return t.Primitive.String()
	case ReferenceType:
		return "ref " + t.Name.FullName()
	default:
		return t.Kind.String() + " " + t.Name.FullName()
	}
}

// identity is what two collected types must share to claim the same name.
func (t *ProtoType) identity() any {
	switch {
	case t.Message != nil:
		return t.Message
	case t.Enum != nil:
		return t.Enum
	default:
		return t
	}
}

func primitive(k codec.Kind) *ProtoType {
	return &ProtoType{Kind: PrimitiveType, Primitive: k}
}

func reference(name Typename) *ProtoType {
	return &ProtoType{Kind: ReferenceType, Name: name}
}
