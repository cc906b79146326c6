package schema

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/protokit/internal/observability"
	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

const (
	inputSuffix    = "Input"
	responseSuffix = "Response"
	anonPrefix     = "_AnonMesgTy"
)

// wrapContext names the synthetic message a non-message body is wrapped in.
type wrapContext struct {
	param   string
	wrapper Typename
}

type refKey struct {
	kind   codec.Kind
	list   bool
	msg    *codec.MessageInfo
	enum   *codec.EnumInfo
	goName string
}

type cacheKey struct {
	ref      refKey
	topLevel bool
	ctx      wrapContext
}

func keyOf(ref codec.TypeRef, topLevel bool, ctx *wrapContext) cacheKey {
	k := cacheKey{ref: refKey{kind: ref.Kind, list: ref.List}, topLevel: topLevel}
	if ctx != nil {
		k.ctx = *ctx
	}
	switch ref.Kind {
	case codec.MessageKind:
		k.ref.msg = ref.MessageInfo()
		if !ref.List {
			// messages are never wrapped, so one instance serves every context
			k.topLevel = false
			k.ctx = wrapContext{}
		}
	case codec.EnumKind:
		k.ref.enum = ref.EnumInfo()
	case codec.MapKind:
		k.ref.goName = ref.GoName()
	}
	return k
}

// Register derives the message described by info and collects it, together
// with every type it reaches, for Finalize.
func (s *Schema) Register(info *codec.MessageInfo) (*ProtoType, error) {
	if info == nil {
		return nil, unmappable("", "nil message info")
	}
	return s.register("message", info.Name(), info.Ref(), false)
}

// RegisterEnum collects a standalone enum.
func (s *Schema) RegisterEnum(info *codec.EnumInfo) (*ProtoType, error) {
	if info == nil {
		return nil, unmappable("", "nil enum info")
	}
	return s.register("enum", info.Name(), info.Ref(), false)
}

// RegisterType derives a body type. Anything that is not a message is wrapped
// in a single-field synthetic message named _AnonMesgTy<N>.
func (s *Schema) RegisterType(ref codec.TypeRef) (*ProtoType, error) {
	return s.register("type", ref.GoName(), ref, true)
}

func (s *Schema) register(kind, name string, ref codec.TypeRef, topLevel bool) (_ *ProtoType, err error) {
	defer func() { observability.RecordSchemaRegistration(kind, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(name); err != nil {
		return nil, err
	}
	pt, err := s.protoType(ref, topLevel, nil)
	if err != nil {
		log.Debug().Err(err).Str("type", name).Msg("schema.Register failed")
		return nil, err
	}
	if err := s.collect(pt); err != nil {
		return nil, err
	}
	log.Debug().Str("type", name).Str("proto", pt.String()).Int("collected", len(s.types)).Msg("schema.Register")
	return pt, nil
}

// RegisterEndpoint derives the rpc messages of a handler. No params map to
// Empty, a single message param is used as is, anything else is wrapped in
// <handler>Input with one field per param. A non-message output is wrapped in
// <handler>Response with the field "value". Repeated calls with the same
// handler name return the first result.
func (s *Schema) RegisterEndpoint(handler string, params []Param, out codec.TypeRef) (_ EndpointTypes, err error) {
	defer func() { observability.RecordSchemaRegistration("endpoint", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(handler); err != nil {
		return EndpointTypes{}, err
	}
	if et, ok := s.endpoints[handler]; ok {
		return et, nil
	}
	base := MangleGeneric(handler)
	if !validIdent(base) || strings.Contains(base, ".") {
		return EndpointTypes{}, unmappable(handler, "handler name is not a proto identifier")
	}
	in, err := s.endpointInput(base, params)
	if err != nil {
		return EndpointTypes{}, errors.Wrapf(err, "endpoint %s input", handler)
	}
	output, err := s.protoType(out, true, &wrapContext{
		param:   "value",
		wrapper: Typename{Package: s.opts.DefaultPackage, Name: base + responseSuffix},
	})
	if err != nil {
		return EndpointTypes{}, errors.Wrapf(err, "endpoint %s output", handler)
	}
	if err := s.collect(in); err != nil {
		return EndpointTypes{}, err
	}
	if err := s.collect(output); err != nil {
		return EndpointTypes{}, err
	}
	et := EndpointTypes{Input: in, Output: output}
	s.endpoints[handler] = et
	log.Debug().
		Str("endpoint", handler).
		Str("input", in.String()).
		Str("output", output.String()).
		Msg("schema.RegisterEndpoint")
	return et, nil
}

func (s *Schema) endpointInput(base string, params []Param) (*ProtoType, error) {
	name := Typename{Package: s.opts.DefaultPackage, Name: base + inputSuffix}
	switch len(params) {
	case 0:
		return s.emptyType(), nil
	case 1:
		p := params[0]
		if !validIdent(p.Name) {
			return nil, unmappable(name.FullName(), fmt.Sprintf("param name %q", p.Name))
		}
		pt, err := s.protoType(p.Ref, true, &wrapContext{param: p.Name, wrapper: name})
		if err != nil {
			return nil, err
		}
		if p.Unpacked && pt.Name == name && len(pt.Fields) == 1 {
			pt.Fields[0].Packed = false
		}
		return pt, nil
	}
	pt := &ProtoType{Kind: MessageType, Name: name, Syntax: s.opts.Syntax}
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if !validIdent(p.Name) || seen[p.Name] {
			return nil, unmappable(name.FullName(), fmt.Sprintf("param name %q", p.Name))
		}
		seen[p.Name] = true
		mf, err := s.bodyField(pt, p.Name, wire.Number(i+1), p.Ref)
		if err != nil {
			return nil, err
		}
		if p.Unpacked {
			mf.Packed = false
		}
		pt.Fields = append(pt.Fields, mf)
	}
	return pt, nil
}

// protoType maps ref. topLevel asks for a type that can stand alone as an rpc
// body; ctx names the wrapper used when ref has to be wrapped.
func (s *Schema) protoType(ref codec.TypeRef, topLevel bool, ctx *wrapContext) (*ProtoType, error) {
	if ref.Optional {
		if ref.List {
			return nil, unmappable(ref.GoName(), "optional list")
		}
		ref.Optional = false
		return s.protoType(ref, topLevel, ctx)
	}
	key := keyOf(ref, topLevel, ctx)
	for _, k := range s.stack {
		if k != key {
			continue
		}
		if info := ref.MessageInfo(); info != nil && !ref.List {
			return reference(s.messageName(info)), nil
		}
		return nil, unmappable(ref.GoName(), "recursive non-message type")
	}
	if pt, ok := s.cache[key]; ok {
		return pt, nil
	}
	s.stack = append(s.stack, key)
	defer func() { s.stack = s.stack[:len(s.stack)-1] }()

	pt, err := s.classify(ref, topLevel, ctx)
	if err != nil {
		return nil, err
	}
	s.cache[key] = pt
	return pt, nil
}

func (s *Schema) classify(ref codec.TypeRef, topLevel bool, ctx *wrapContext) (*ProtoType, error) {
	switch {
	case ref.List:
		if !topLevel {
			return nil, unmappable(ref.GoName(), "list outside a message field")
		}
		return s.wrap(ref, ctx)
	case ref.Kind == codec.MessageKind:
		return s.message(ref)
	case ref.Kind == codec.EnumKind:
		if topLevel {
			return s.wrap(ref, ctx)
		}
		return s.enum(ref)
	case ref.Kind.Scalar():
		if topLevel {
			return s.wrap(ref, ctx)
		}
		return primitive(ref.Kind), nil
	case ref.Kind == codec.MapKind:
		if !topLevel {
			return nil, unmappable(ref.GoName(), "map outside a message field")
		}
		return s.wrap(ref, ctx)
	default:
		return nil, unmappable(ref.GoName(), "kind "+ref.Kind.String())
	}
}

func (s *Schema) emptyType() *ProtoType {
	if s.empty == nil {
		s.empty = &ProtoType{
			Kind:      EmptyType,
			Name:      Typename{Package: codec.WellKnownPackage, Name: "Empty"},
			Message:   codec.EmptyInfo(),
			WellKnown: true,
		}
	}
	return s.empty
}

func (s *Schema) packageOf(declared string) string {
	if declared != "" {
		return declared
	}
	return s.opts.DefaultPackage
}

func (s *Schema) messageName(info *codec.MessageInfo) Typename {
	return Typename{Package: s.packageOf(info.Package()), Name: MangleGeneric(info.Name())}
}

func (s *Schema) enumName(info *codec.EnumInfo) Typename {
	return Typename{Package: s.packageOf(info.Package()), Name: MangleGeneric(info.Name())}
}

func (s *Schema) message(ref codec.TypeRef) (*ProtoType, error) {
	info := ref.MessageInfo()
	if info == nil {
		return nil, unmappable(ref.GoName(), "no declared field table")
	}
	if info == codec.EmptyInfo() || len(info.Fields()) == 0 {
		return s.emptyType(), nil
	}
	name := s.messageName(info)
	if !codec.ValidName(info.Name()) || !validIdent(name.Name) {
		return nil, unmappable(info.Name(), "name cannot be mapped to a proto identifier")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	pt := &ProtoType{
		Kind:          MessageType,
		Name:          name,
		Message:       info,
		Syntax:        info.Syntax(),
		Reserved:      info.Reserved(),
		ReservedNames: info.ReservedNames(),
		WellKnown:     info.WellKnown(),
	}
	for _, f := range info.Fields() {
		if f.Oneof == nil {
			mf, err := s.field(pt, f)
			if err != nil {
				return nil, err
			}
			pt.Fields = append(pt.Fields, mf)
			continue
		}
		o := &OneofType{Name: f.Name, Info: f.Oneof}
		for _, c := range f.Oneof.Cases {
			if c.Label != codec.LabelSingular || c.Ref.List || c.Ref.Optional || c.Ref.Kind == codec.MapKind {
				return nil, &protocol.SchemaError{
					Reason: protocol.UnmappableType,
					Type:   name.FullName(),
					Field:  c.Name,
					Detail: "oneof cases must be singular",
				}
			}
			mf, err := s.field(pt, c)
			if err != nil {
				return nil, err
			}
			mf.Oneof = o.Name
			o.Fields = append(o.Fields, mf)
			pt.Fields = append(pt.Fields, mf)
		}
		pt.Oneofs = append(pt.Oneofs, o)
	}
	return pt, nil
}

func (s *Schema) enum(ref codec.TypeRef) (*ProtoType, error) {
	info := ref.EnumInfo()
	if info == nil {
		return nil, unmappable(ref.GoName(), "no declared enum cases")
	}
	name := s.enumName(info)
	if !codec.ValidName(info.Name()) || !validIdent(name.Name) {
		return nil, unmappable(info.Name(), "name cannot be mapped to a proto identifier")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &ProtoType{
		Kind:   EnumType,
		Name:   name,
		Enum:   info,
		Syntax: info.Syntax(),
		Cases:  info.Cases(),
	}, nil
}

// field maps one declared field of parent.
func (s *Schema) field(parent *ProtoType, f *codec.Field) (*MessageField, error) {
	ref := f.Ref
	switch {
	case ref.Kind == codec.MapKind:
	case f.Label == codec.LabelRepeated:
		ref = codec.ListOf(ref)
	case f.Label == codec.LabelOptional:
		ref = codec.OptionalOf(ref)
	}
	mf, err := s.bodyField(parent, f.Name, f.Number, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "%s.%s", parent.Name.Name, f.Name)
	}
	if mf.Repeated && ref.Kind != codec.MapKind {
		mf.Packed = f.Packed
	}
	return mf, nil
}

// bodyField builds a field from a bare ref, turning its List and Optional
// wrappers into field labels.
func (s *Schema) bodyField(parent *ProtoType, name string, number wire.Number, ref codec.TypeRef) (*MessageField, error) {
	mf := &MessageField{Name: name, Number: number}
	if ref.Kind == codec.MapKind {
		if ref.List || ref.Optional {
			return nil, unmappable(ref.GoName(), "list or optional of map")
		}
		entry, err := s.mapEntry(parent, name, ref)
		if err != nil {
			return nil, err
		}
		mf.Type = entry
		mf.Repeated = true
		return mf, nil
	}
	if ref.Optional {
		if ref.List {
			return nil, unmappable(ref.GoName(), "optional list")
		}
		mf.Optional = true
		ref.Optional = false
	}
	if ref.List {
		mf.Repeated = true
		mf.Packed = ref.Kind.Packable()
		ref = ref.Elem()
	}
	t, err := s.protoType(ref, false, nil)
	if err != nil {
		return nil, err
	}
	if err := checkEnumSyntax(parent, name, t); err != nil {
		return nil, err
	}
	mf.Type = t
	return mf, nil
}

// checkEnumSyntax rejects closed proto2 enums inside proto3 messages.
func checkEnumSyntax(parent *ProtoType, field string, t *ProtoType) error {
	if t.Kind == EnumType && parent.Syntax == codec.Proto3 && t.Syntax == codec.Proto2 {
		return &protocol.SchemaError{
			Reason: protocol.SyntaxMismatch,
			Type:   parent.Name.FullName(),
			Field:  field,
			Detail: "proto3 message uses proto2 enum " + t.Name.FullName(),
		}
	}
	return nil
}

func (s *Schema) mapEntry(parent *ProtoType, field string, ref codec.TypeRef) (*ProtoType, error) {
	key, val := ref.MapKey(), ref.MapValue()
	if key == nil || val == nil {
		return nil, unmappable(ref.GoName(), "map without key or value type")
	}
	if !key.Kind.MapKey() || key.List || key.Optional {
		return nil, unmappable(ref.GoName(), "map key kind "+key.Kind.String())
	}
	if val.Kind == codec.MapKind || val.List {
		return nil, unmappable(ref.GoName(), "map value cannot be a map or list")
	}
	kt, err := s.protoType(*key, false, nil)
	if err != nil {
		return nil, err
	}
	vt, err := s.protoType(*val, false, nil)
	if err != nil {
		return nil, err
	}
	if err := checkEnumSyntax(parent, field, vt); err != nil {
		return nil, err
	}
	return &ProtoType{
		Kind:     MessageType,
		Name:     Typename{Package: parent.Name.Package, Name: parent.Name.Name + "." + mapEntryName(field)},
		Syntax:   parent.Syntax,
		MapEntry: true,
		Fields: []*MessageField{
			{Name: "key", Number: 1, Type: kt},
			{Name: "value", Number: 2, Type: vt},
		},
	}, nil
}

// wrap builds the single-field synthetic message around a body that is not
// a message itself.
func (s *Schema) wrap(ref codec.TypeRef, ctx *wrapContext) (*ProtoType, error) {
	name := Typename{Package: s.opts.DefaultPackage}
	field := "value"
	if ctx != nil {
		name, field = ctx.wrapper, ctx.param
	} else {
		name.Name = fmt.Sprintf("%s%d", anonPrefix, s.anon)
		s.anon++
	}
	pt := &ProtoType{Kind: MessageType, Name: name, Syntax: s.opts.Syntax}
	mf, err := s.bodyField(pt, field, 1, ref)
	if err != nil {
		return nil, err
	}
	pt.Fields = []*MessageField{mf}
	return pt, nil
}

// collect records pt and everything reachable from it under their mangled
// names. Two distinct native types claiming one name is an error.
func (s *Schema) collect(pt *ProtoType) error {
	switch pt.Kind {
	case MessageType:
		if pt.WellKnown {
			return nil
		}
		added, err := s.claim(pt)
		if err != nil || !added {
			return err
		}
		for _, f := range pt.Fields {
			if err := s.collect(f.Type); err != nil {
				return err
			}
		}
	case EnumType:
		_, err := s.claim(pt)
		return err
	}
	return nil
}

func (s *Schema) claim(pt *ProtoType) (bool, error) {
	key := pt.Name.Mangled()
	prev, ok := s.types[key]
	if !ok {
		s.types[key] = pt
		return true, nil
	}
	if prev == pt || prev.identity() == pt.identity() {
		return false, nil
	}
	return false, &protocol.SchemaError{
		Reason: protocol.ConflictingTypeNames,
		Type:   pt.Name.FullName(),
		Detail: fmt.Sprintf("claimed by %s and %s", nativeName(prev), nativeName(pt)),
	}
}

func nativeName(pt *ProtoType) string {
	switch {
	case pt.Message != nil:
		return pt.Message.GoName()
	case pt.Enum != nil:
		return pt.Enum.GoName()
	default:
		return "synthetic " + pt.Kind.String()
	}
}
