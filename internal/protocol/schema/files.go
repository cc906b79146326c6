package schema

import (
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/danmuck/protokit/internal/protocol"
)

// finalized is the sealed output of Finalize. Nothing in it changes after
// construction.
type finalized struct {
	packages []string
	files    []*descriptorpb.FileDescriptorProto
	byName   map[string]*descriptorpb.FileDescriptorProto
	natives  map[string]string
	registry *protoregistry.Files
	// order lists file names with dependencies first.
	order []string
}

// wellKnownFiles are the imports a generated file may reference.
var wellKnownFiles = []protoreflect.FileDescriptor{
	emptypb.File_google_protobuf_empty_proto,
	timestamppb.File_google_protobuf_timestamp_proto,
}

// link validates every file with protodesc in dependency order and registers
// it next to the well-known imports.
func (f *finalized) link() error {
	f.registry = new(protoregistry.Files)
	for _, fd := range wellKnownFiles {
		if err := f.registry.RegisterFile(fd); err != nil {
			return errors.Wrap(err, "schema: register well-known file")
		}
	}
	state := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		fdp, ok := f.byName[name]
		if !ok {
			return nil
		}
		switch state[name] {
		case 1:
			return unmappable(fdp.GetPackage(), "import cycle through "+name)
		case 2:
			return nil
		}
		state[name] = 1
		for _, dep := range fdp.Dependency {
			if err := visit(dep); err != nil {
				return err
			}
		}
		fd, err := protodesc.NewFile(fdp, f.registry)
		if err != nil {
			return &protocol.SchemaError{
				Reason: protocol.UnmappableType,
				Type:   fdp.GetPackage(),
				Detail: errors.Wrapf(err, "validate %s", name).Error(),
			}
		}
		if err := f.registry.RegisterFile(fd); err != nil {
			return errors.Wrapf(err, "schema: register %s", name)
		}
		state[name] = 2
		f.order = append(f.order, name)
		return nil
	}
	for _, fdp := range f.files {
		if err := visit(fdp.GetName()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) sealedOutput() (*finalized, error) {
	if !s.sealed.Load() {
		return nil, ErrNotFinalized
	}
	if s.finalErr != nil {
		return nil, s.finalErr
	}
	return s.final, nil
}

// Packages lists the proto packages that received at least one type.
func (s *Schema) Packages() ([]string, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), f.packages...), nil
}

// FileDescriptors returns one file per package, ordered by package name. The
// protos are copies.
func (s *Schema) FileDescriptors() ([]*descriptorpb.FileDescriptorProto, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	out := make([]*descriptorpb.FileDescriptorProto, len(f.files))
	for i, fd := range f.files {
		out[i] = proto.Clone(fd).(*descriptorpb.FileDescriptorProto)
	}
	return out, nil
}

// FileDescriptor returns the file of one package.
func (s *Schema) FileDescriptor(pkg string) (*descriptorpb.FileDescriptorProto, bool) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, false
	}
	fd, ok := f.byName[FileName(pkg)]
	if !ok {
		return nil, false
	}
	return proto.Clone(fd).(*descriptorpb.FileDescriptorProto), true
}

// FileDescriptorSet is a self-contained set: the well-known files that are
// imported come first, then every generated file after its dependencies.
func (s *Schema) FileDescriptorSet() (*descriptorpb.FileDescriptorSet, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	set := &descriptorpb.FileDescriptorSet{}
	used := make(map[string]bool)
	for _, fd := range f.files {
		for _, dep := range fd.Dependency {
			used[dep] = true
		}
	}
	for _, wk := range wellKnownFiles {
		if used[wk.Path()] {
			set.File = append(set.File, protodesc.ToFileDescriptorProto(wk))
		}
	}
	for _, name := range f.order {
		set.File = append(set.File, proto.Clone(f.byName[name]).(*descriptorpb.FileDescriptorProto))
	}
	return set, nil
}

// Files is the validated registry of generated and well-known files.
func (s *Schema) Files() (*protoregistry.Files, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	return f.registry, nil
}

// LookupMessage resolves a message by full name, e.g. "shop.Order.Line".
func (s *Schema) LookupMessage(fullName string) (protoreflect.MessageDescriptor, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	d, err := f.registry.FindDescriptorByName(protoreflect.FullName(fullName))
	if err != nil {
		return nil, errors.Wrapf(err, "schema: lookup %s", fullName)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, errors.Errorf("schema: %s is not a message", fullName)
	}
	return md, nil
}

// NativeTypeNames maps proto full names to the Go type each was derived
// from. Synthetic wrappers and map entries have no entry.
func (s *Schema) NativeTypeNames() (map[string]string, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(f.natives))
	for k, v := range f.natives {
		out[k] = v
	}
	return out, nil
}

// sortedFileNames lists generated file names in package order.
func (f *finalized) sortedFileNames() []string {
	names := make([]string, 0, len(f.files))
	for _, fd := range f.files {
		names = append(names, fd.GetName())
	}
	sort.Strings(names)
	return names
}
