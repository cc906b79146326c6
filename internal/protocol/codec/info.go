package codec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

// TypeRef identifies a native type without binding it to a field. Message and
// enum infos are resolved lazily so declarations may refer to each other in
// any order.
type TypeRef struct {
	Kind Kind
	// List marks a bare repeated body, e.g. an endpoint returning []string.
	List bool
	// Optional marks a bare optional body.
	Optional bool

	message func() *MessageInfo
	enum    func() *EnumInfo
	key     *TypeRef
	elem    *TypeRef
	goName  string
}

// MessageInfo resolves the declared table of a message-kinded ref.
func (r TypeRef) MessageInfo() *MessageInfo {
	if r.message == nil {
		return nil
	}
	return r.message()
}

// EnumInfo resolves the declared cases of an enum-kinded ref.
func (r TypeRef) EnumInfo() *EnumInfo {
	if r.enum == nil {
		return nil
	}
	return r.enum()
}

// MapKey and MapValue describe the entry of a MapKind ref.
func (r TypeRef) MapKey() *TypeRef   { return r.key }
func (r TypeRef) MapValue() *TypeRef { return r.elem }

// GoName is the Go spelling of the referenced type, used in diagnostics.
func (r TypeRef) GoName() string {
	if r.goName != "" {
		return r.goName
	}
	return r.Kind.String()
}

// Elem strips the bare List/Optional wrappers.
func (r TypeRef) Elem() TypeRef {
	r.List = false
	r.Optional = false
	return r
}

// ListOf wraps ref as a bare repeated body.
func ListOf(ref TypeRef) TypeRef {
	ref.List = true
	return ref
}

// OptionalOf wraps ref as a bare optional body.
func OptionalOf(ref TypeRef) TypeRef {
	ref.Optional = true
	return ref
}

// Field is one declared field of a message. Oneof groups are declared as a
// single Field with Kind OneofKind whose cases carry the numbers.
type Field struct {
	Name   string
	Number wire.Number
	Ref    TypeRef
	Label  Label
	Packed bool
	Oneof  *OneofInfo

	explicit bool
	owner    *MessageInfo
	oneof    *OneofInfo
	ops      fieldOps
}

// ContainingOneof is the oneof a case field belongs to, nil for plain fields.
func (f *Field) ContainingOneof() *OneofInfo { return f.oneof }

// Explicit reports whether the number was declared rather than positional.
func (f *Field) Explicit() bool { return f.explicit }

// Owner is the message that declares the field.
func (f *Field) Owner() *MessageInfo { return f.owner }

func (f *Field) proto2() bool {
	return f.owner != nil && f.owner.syntax == Proto2
}

// OneofInfo groups mutually exclusive cases.
type OneofInfo struct {
	Name  string
	Cases []*Field
}

// Case returns the case declared with number n.
func (o *OneofInfo) Case(n wire.Number) (*Field, bool) {
	for _, c := range o.Cases {
		if c.Number == n {
			return c, true
		}
	}
	return nil, false
}

// ReservedRange is an inclusive range of reserved field numbers.
type ReservedRange struct {
	Start, End wire.Number
}

// MessageInfo is the statically declared field table of one Go type.
type MessageInfo struct {
	name          string
	goType        reflect.Type
	pkg           string
	syntax        Syntax
	fields        []*Field
	reserved      []ReservedRange
	reservedNames []string
	wellKnown     bool
}

// Name is the native nesting path, e.g. "Person.Address" or "Pair[int64,string]".
func (m *MessageInfo) Name() string { return m.name }

// GoName is the Go type name captured at declaration.
func (m *MessageInfo) GoName() string {
	if m.goType == nil {
		return m.name
	}
	return m.goType.String()
}

// Package is the declared proto package, empty when the schema default applies.
func (m *MessageInfo) Package() string { return m.pkg }

func (m *MessageInfo) Syntax() Syntax { return m.syntax }

// WellKnown marks the google.protobuf types shipped with this package.
func (m *MessageInfo) WellKnown() bool { return m.wellKnown }

func (m *MessageInfo) Fields() []*Field { return m.fields }

// Ref is the bare ref of the declared message, used for bodies and
// registration.
func (m *MessageInfo) Ref() TypeRef {
	return TypeRef{Kind: MessageKind, message: func() *MessageInfo { return m }, goName: m.GoName()}
}

func (m *MessageInfo) Reserved() []ReservedRange { return m.reserved }

func (m *MessageInfo) ReservedNames() []string { return m.reservedNames }

// FieldByName looks a field up by its declared name.
func (m *MessageInfo) FieldByName(name string) (*Field, bool) {
	for _, f := range m.fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldByNumber looks a field up by number, searching oneof cases too.
func (m *MessageInfo) FieldByNumber(n wire.Number) (*Field, bool) {
	for _, f := range m.fields {
		if f.Oneof != nil {
			if c, ok := f.Oneof.Case(n); ok {
				return c, true
			}
			continue
		}
		if f.Number == n {
			return f, true
		}
	}
	return nil, false
}

// InPackage sets the proto package of the message.
func (m *MessageInfo) InPackage(pkg string) *MessageInfo {
	m.pkg = pkg
	return m
}

// Proto2 switches the message to proto2 presence rules.
func (m *MessageInfo) Proto2() *MessageInfo {
	m.syntax = Proto2
	return m
}

// Reserve declares reserved field numbers. A zero End reserves Start only.
func (m *MessageInfo) Reserve(ranges ...ReservedRange) *MessageInfo {
	for _, r := range ranges {
		if r.End == 0 {
			r.End = r.Start
		}
		m.reserved = append(m.reserved, r)
	}
	return m
}

// ReserveNames declares reserved field names.
func (m *MessageInfo) ReserveNames(names ...string) *MessageInfo {
	m.reservedNames = append(m.reservedNames, names...)
	return m
}

func (m *MessageInfo) isReserved(n wire.Number) bool {
	for _, r := range m.reserved {
		if n >= r.Start && n <= r.End {
			return true
		}
	}
	return false
}

// Validate checks the declared table for problems that make it unmappable.
func (m *MessageInfo) Validate() error {
	seen := make(map[wire.Number]string)
	names := make(map[string]bool)
	check := func(f *Field) error {
		if names[f.Name] {
			return m.schemaErr(protocol.UnmappableType, f.Name, "duplicate field name")
		}
		names[f.Name] = true
		if !f.Number.Valid() || f.Number.Reserved() {
			return m.schemaErr(protocol.InvalidFieldNumberInSchema, f.Name, fmt.Sprintf("number %d", f.Number))
		}
		if m.isReserved(f.Number) {
			return m.schemaErr(protocol.InvalidFieldNumberInSchema, f.Name, fmt.Sprintf("number %d is reserved", f.Number))
		}
		if prev, dup := seen[f.Number]; dup {
			return m.schemaErr(protocol.DuplicateFieldNumber, f.Name, fmt.Sprintf("number %d already used by %s", f.Number, prev))
		}
		seen[f.Number] = f.Name
		return validateRef(m, f.Name, f.Ref)
	}
	for _, f := range m.fields {
		if f.Oneof != nil {
			if len(f.Oneof.Cases) == 0 {
				return m.schemaErr(protocol.UnmappableType, f.Name, "oneof without cases")
			}
			for _, c := range f.Oneof.Cases {
				if err := check(c); err != nil {
					return err
				}
			}
			continue
		}
		if err := check(f); err != nil {
			return err
		}
	}
	for _, name := range m.reservedNames {
		if names[name] {
			return m.schemaErr(protocol.InvalidFieldNumberInSchema, name, "field name is reserved")
		}
	}
	return nil
}

func validateRef(m *MessageInfo, field string, ref TypeRef) error {
	switch ref.Kind {
	case MessageKind:
		if ref.MessageInfo() == nil {
			return m.schemaErr(protocol.UnmappableType, field, "no declared field table for "+ref.GoName())
		}
	case EnumKind:
		if ref.EnumInfo() == nil {
			return m.schemaErr(protocol.UnmappableType, field, "no declared cases for "+ref.GoName())
		}
	case MapKind:
		if ref.key == nil || ref.elem == nil {
			return m.schemaErr(protocol.UnmappableType, field, "map without key or value type")
		}
		if !ref.key.Kind.MapKey() {
			return m.schemaErr(protocol.UnmappableType, field, "map key kind "+ref.key.Kind.String())
		}
		if ref.elem.Kind == MapKind {
			return m.schemaErr(protocol.UnmappableType, field, "map value cannot be a map")
		}
		return validateRef(m, field, *ref.elem)
	case InvalidKind, OneofKind:
		return m.schemaErr(protocol.UnmappableType, field, "kind "+ref.Kind.String())
	}
	return nil
}

func (m *MessageInfo) schemaErr(reason protocol.SchemaReason, field, detail string) error {
	return &protocol.SchemaError{Reason: reason, Type: m.name, Field: field, Detail: detail}
}

// EnumCase is one declared enum value.
type EnumCase struct {
	Name   string
	Number int32
}

// EnumInfo is the declared case table of an int32-backed Go enum type.
type EnumInfo struct {
	name   string
	goType reflect.Type
	pkg    string
	syntax Syntax
	cases  []EnumCase
}

func (e *EnumInfo) Name() string { return e.name }

func (e *EnumInfo) GoName() string {
	if e.goType == nil {
		return e.name
	}
	return e.goType.String()
}

func (e *EnumInfo) Package() string { return e.pkg }

func (e *EnumInfo) Syntax() Syntax { return e.syntax }

func (e *EnumInfo) Cases() []EnumCase { return e.cases }

func (e *EnumInfo) Ref() TypeRef {
	return TypeRef{Kind: EnumKind, enum: func() *EnumInfo { return e }, goName: e.GoName()}
}

func (e *EnumInfo) InPackage(pkg string) *EnumInfo {
	e.pkg = pkg
	return e
}

func (e *EnumInfo) Proto2() *EnumInfo {
	e.syntax = Proto2
	return e
}

// CaseName returns the declared name of n.
func (e *EnumInfo) CaseName(n int32) (string, bool) {
	for _, c := range e.cases {
		if c.Number == n {
			return c.Name, true
		}
	}
	return "", false
}

// Validate enforces that proto3 enums open with a zero value and that case
// names and numbers are unique.
func (e *EnumInfo) Validate() error {
	if len(e.cases) == 0 {
		return &protocol.SchemaError{Reason: protocol.UnmappableType, Type: e.name, Detail: "enum without cases"}
	}
	if e.syntax == Proto3 && e.cases[0].Number != 0 {
		return &protocol.SchemaError{
			Reason: protocol.EnumMissingZeroValueInProto3,
			Type:   e.name,
			Field:  e.cases[0].Name,
			Detail: fmt.Sprintf("first value is %d", e.cases[0].Number),
		}
	}
	names := make(map[string]bool, len(e.cases))
	nums := make(map[int32]string, len(e.cases))
	for _, c := range e.cases {
		if names[c.Name] {
			return &protocol.SchemaError{Reason: protocol.UnmappableType, Type: e.name, Field: c.Name, Detail: "duplicate enum value name"}
		}
		names[c.Name] = true
		if prev, dup := nums[c.Number]; dup {
			return &protocol.SchemaError{
				Reason: protocol.DuplicateFieldNumber,
				Type:   e.name,
				Field:  c.Name,
				Detail: fmt.Sprintf("value %d already used by %s", c.Number, prev),
			}
		}
		nums[c.Number] = c.Name
	}
	return nil
}

// Describe builds the field table of T. Fields without an explicit Number
// option are numbered by declaration position starting at 1. The table is
// registered so MessageOf[T] and Marshal can find it.
func Describe[T any](name string, decls ...FieldDecl[T]) *MessageInfo {
	info := &MessageInfo{name: name, goType: reflect.TypeFor[T]()}
	for i, d := range decls {
		f := d.f
		if !f.explicit {
			f.Number = wire.Number(i + 1)
		}
		f.owner = info
		if f.Oneof != nil {
			for _, c := range f.Oneof.Cases {
				c.owner = info
			}
		}
		info.fields = append(info.fields, f)
	}
	registerMessage(info)
	return info
}

// DescribeEnum declares the cases of the int32-backed enum type E.
func DescribeEnum[E ~int32](name string, cases ...EnumCase) *EnumInfo {
	info := &EnumInfo{name: name, goType: reflect.TypeFor[E](), cases: cases}
	registerEnum(info)
	return info
}

// ValidName reports whether a native name can be mapped to a proto name:
// dotted identifier segments, each optionally carrying bracketed type args.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	depth := 0
	for _, r := range name {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
			if depth < 0 {
				return false
			}
		case r == '.' || r == '_' || r == ',' || r == '*':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return depth == 0
}
