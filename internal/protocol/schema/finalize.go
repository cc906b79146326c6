package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/danmuck/protokit/internal/observability"
	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
)

// entry is one collected type on its way into a file. Types start out flat
// under their full dotted name and are then moved into their parents.
type entry struct {
	name   Typename
	syntax codec.Syntax
	msg    *descriptorpb.DescriptorProto
	enum   *descriptorpb.EnumDescriptorProto
	refs   map[Typename]bool
	native string
	nested bool
}

// Finalize seals the schema and resolves everything registered so far into
// file descriptors. Later calls return the first result; later registrations
// fail with SealedSchemaMutation.
func (s *Schema) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed.Load() {
		return s.finalErr
	}
	start := time.Now()
	s.final, s.finalErr = s.build()
	s.sealed.Store(true)
	observability.RecordSchemaFinalize(time.Since(start))
	if s.finalErr != nil {
		log.Error().Err(s.finalErr).Msg("schema.Finalize failed")
		return s.finalErr
	}
	log.Debug().
		Int("types", len(s.types)).
		Strs("packages", s.final.packages).
		Msg("schema.Finalize")
	return nil
}

func (s *Schema) build() (*finalized, error) {
	keys := make([]string, 0, len(s.types))
	for k := range s.types {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make(map[string]*entry, len(keys))
	for _, k := range keys {
		pt := s.types[k]
		e := &entry{name: pt.Name, syntax: pt.Syntax, refs: make(map[Typename]bool)}
		switch pt.Kind {
		case EnumType:
			e.enum = s.enumDescriptor(pt)
			e.native = pt.Enum.GoName()
		case MessageType:
			e.msg = s.messageDescriptor(pt, e.refs)
			if pt.Message != nil {
				e.native = pt.Message.GoName()
			}
		default:
			continue
		}
		entries[k] = e
	}

	if err := nest(entries); err != nil {
		return nil, err
	}

	byPkg := make(map[string][]*entry)
	for _, k := range keys {
		e, ok := entries[k]
		if !ok || e.nested {
			continue
		}
		if e.name.Depth() > 0 {
			return nil, unmappable(e.name.FullName(), "nested type has no collected parent")
		}
		byPkg[e.name.Package] = append(byPkg[e.name.Package], e)
	}

	f := &finalized{
		byName:  make(map[string]*descriptorpb.FileDescriptorProto),
		natives: make(map[string]string),
	}
	for _, e := range entries {
		if e.native != "" {
			f.natives[e.name.FullName()] = e.native
		}
	}
	for pkg := range byPkg {
		f.packages = append(f.packages, pkg)
	}
	sort.Strings(f.packages)

	for _, pkg := range f.packages {
		fd, err := fileDescriptor(pkg, byPkg[pkg])
		if err != nil {
			return nil, err
		}
		f.files = append(f.files, fd)
		f.byName[fd.GetName()] = fd
	}
	if err := f.link(); err != nil {
		return nil, err
	}
	return f, nil
}

// nest moves every type whose parent was collected into that parent,
// deepest first so grandchildren travel with their parents.
func nest(entries map[string]*entry) error {
	order := make([]*entry, 0, len(entries))
	for _, e := range entries {
		order = append(order, e)
	}
	sort.Slice(order, func(i, j int) bool {
		di, dj := order[i].name.Depth(), order[j].name.Depth()
		if di != dj {
			return di > dj
		}
		return order[i].name.Mangled() < order[j].name.Mangled()
	})
	for _, e := range order {
		pn, ok := e.name.Parent()
		if !ok {
			continue
		}
		parent, ok := entries[pn.Mangled()]
		if !ok {
			continue
		}
		if parent.msg == nil {
			return unmappable(e.name.FullName(), "parent "+pn.FullName()+" is not a message")
		}
		if parent.syntax != e.syntax {
			return &protocol.SchemaError{
				Reason: protocol.SyntaxMismatch,
				Type:   e.name.FullName(),
				Detail: fmt.Sprintf("%s type nested in %s parent %s", e.syntax, parent.syntax, pn.FullName()),
			}
		}
		if e.msg != nil {
			parent.msg.NestedType = append(parent.msg.NestedType, e.msg)
		} else {
			parent.msg.EnumType = append(parent.msg.EnumType, e.enum)
		}
		for r := range e.refs {
			parent.refs[r] = true
		}
		e.nested = true
	}
	for _, e := range entries {
		if e.msg != nil && !e.nested {
			sortNested(e.msg)
		}
	}
	return nil
}

func sortNested(d *descriptorpb.DescriptorProto) {
	sort.Slice(d.NestedType, func(i, j int) bool { return d.NestedType[i].GetName() < d.NestedType[j].GetName() })
	sort.Slice(d.EnumType, func(i, j int) bool { return d.EnumType[i].GetName() < d.EnumType[j].GetName() })
	for _, n := range d.NestedType {
		sortNested(n)
	}
}

func fileDescriptor(pkg string, entries []*entry) (*descriptorpb.FileDescriptorProto, error) {
	syntax := entries[0].syntax
	local := make(map[Typename]bool)
	for _, e := range entries {
		if e.syntax != syntax {
			return nil, &protocol.SchemaError{
				Reason: protocol.SyntaxMismatch,
				Type:   e.name.FullName(),
				Detail: fmt.Sprintf("package %q mixes %s and %s", pkg, syntax, e.syntax),
			}
		}
		local[e.name] = true
	}

	fd := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(FileName(pkg)),
		Syntax: proto.String(syntax.String()),
	}
	if pkg != "" {
		fd.Package = proto.String(pkg)
	}
	deps := make(map[string]bool)
	for _, e := range entries {
		if e.msg != nil {
			fd.MessageType = append(fd.MessageType, e.msg)
		} else {
			fd.EnumType = append(fd.EnumType, e.enum)
		}
		for r := range e.refs {
			if r.Package == pkg {
				continue
			}
			deps[importPath(r)] = true
		}
	}
	for d := range deps {
		fd.Dependency = append(fd.Dependency, d)
	}
	sort.Strings(fd.Dependency)
	sort.Slice(fd.MessageType, func(i, j int) bool { return fd.MessageType[i].GetName() < fd.MessageType[j].GetName() })
	sort.Slice(fd.EnumType, func(i, j int) bool { return fd.EnumType[i].GetName() < fd.EnumType[j].GetName() })
	return fd, nil
}

// FileName is the .proto path a package is written to.
func FileName(pkg string) string {
	if pkg == "" {
		return "default.proto"
	}
	return strings.ReplaceAll(pkg, ".", "/") + ".proto"
}

func importPath(t Typename) string {
	if t.Package == codec.WellKnownPackage {
		return "google/protobuf/" + strings.ToLower(t.Name) + ".proto"
	}
	return FileName(t.Package)
}

func (s *Schema) enumDescriptor(pt *ProtoType) *descriptorpb.EnumDescriptorProto {
	d := &descriptorpb.EnumDescriptorProto{Name: proto.String(pt.Name.Short())}
	for _, c := range pt.Cases {
		d.Value = append(d.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(c.Name),
			Number: proto.Int32(c.Number),
		})
	}
	return d
}

func (s *Schema) messageDescriptor(pt *ProtoType, refs map[Typename]bool) *descriptorpb.DescriptorProto {
	d := &descriptorpb.DescriptorProto{Name: proto.String(pt.Name.Short())}
	oneofs := make(map[string]int32, len(pt.Oneofs))
	for i, o := range pt.Oneofs {
		d.OneofDecl = append(d.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(o.Name)})
		oneofs[o.Name] = int32(i)
	}
	var optionals []*descriptorpb.FieldDescriptorProto
	for _, f := range pt.Fields {
		fd := fieldDescriptor(pt, f, refs)
		if f.Oneof != "" {
			fd.OneofIndex = proto.Int32(oneofs[f.Oneof])
		} else if f.Optional && pt.Syntax == codec.Proto3 {
			fd.Proto3Optional = proto.Bool(true)
			optionals = append(optionals, fd)
		}
		d.Field = append(d.Field, fd)
	}
	// proto3 optional fields each sit alone in a synthetic oneof declared
	// after the real ones.
	for _, fd := range optionals {
		fd.OneofIndex = proto.Int32(int32(len(d.OneofDecl)))
		d.OneofDecl = append(d.OneofDecl, &descriptorpb.OneofDescriptorProto{
			Name: proto.String(syntheticOneofName(d, fd.GetName())),
		})
	}
	if pt.MapEntry {
		d.Options = &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)}
	}
	if s.opts.EmitReserved {
		for _, r := range pt.Reserved {
			d.ReservedRange = append(d.ReservedRange, &descriptorpb.DescriptorProto_ReservedRange{
				Start: proto.Int32(int32(r.Start)),
				End:   proto.Int32(int32(r.End) + 1),
			})
		}
		d.ReservedName = append(d.ReservedName, pt.ReservedNames...)
	}
	return d
}

func syntheticOneofName(d *descriptorpb.DescriptorProto, field string) string {
	taken := make(map[string]bool)
	for _, f := range d.Field {
		taken[f.GetName()] = true
	}
	for _, o := range d.OneofDecl {
		taken[o.GetName()] = true
	}
	name := "_" + field
	for taken[name] {
		name = "X" + name
	}
	return name
}

func fieldDescriptor(parent *ProtoType, f *MessageField, refs map[Typename]bool) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(f.Name),
		Number: proto.Int32(int32(f.Number)),
		Label:  label(parent, f).Enum(),
	}
	t := f.Type
	switch t.Kind {
	case PrimitiveType:
		fd.Type = primitiveType(t.Primitive).Enum()
	case EnumType:
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
		fd.TypeName = proto.String(t.Name.FullyQualified())
		refs[t.Name] = true
	default:
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		fd.TypeName = proto.String(t.Name.FullyQualified())
		refs[t.Name] = true
	}
	if f.Repeated && (t.Kind == EnumType || (t.Kind == PrimitiveType && t.Primitive.Packable())) {
		switch {
		case parent.Syntax == codec.Proto3 && !f.Packed:
			fd.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(false)}
		case parent.Syntax == codec.Proto2 && f.Packed:
			fd.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(true)}
		}
	}
	return fd
}

func label(parent *ProtoType, f *MessageField) descriptorpb.FieldDescriptorProto_Label {
	switch {
	case f.Repeated:
		return descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	case parent.Syntax == codec.Proto2 && !parent.MapEntry && f.Oneof == "" && !f.Optional:
		return descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
	default:
		return descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	}
}

func primitiveType(k codec.Kind) descriptorpb.FieldDescriptorProto_Type {
	switch k {
	case codec.BoolKind:
		return descriptorpb.FieldDescriptorProto_TYPE_BOOL
	case codec.Int32Kind:
		return descriptorpb.FieldDescriptorProto_TYPE_INT32
	case codec.Int64Kind:
		return descriptorpb.FieldDescriptorProto_TYPE_INT64
	case codec.Uint32Kind:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT32
	case codec.Uint64Kind:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT64
	case codec.FloatKind:
		return descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	case codec.DoubleKind:
		return descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	case codec.StringKind:
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	case codec.BytesKind:
		return descriptorpb.FieldDescriptorProto_TYPE_BYTES
	default:
		panic(errors.Errorf("schema: no descriptor type for kind %s", k))
	}
}
