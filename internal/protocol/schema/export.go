package schema

import (
	"fmt"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoprint"
	"github.com/pkg/errors"
)

// ExportProto renders the .proto source of one package.
func (s *Schema) ExportProto(pkg string) (string, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return "", err
	}
	name := FileName(pkg)
	if _, ok := f.byName[name]; !ok {
		return "", fmt.Errorf("schema: no types in package %q", pkg)
	}
	return f.print(name)
}

// ExportAll renders every package, keyed by file name.
func (s *Schema) ExportAll() (map[string]string, error) {
	f, err := s.sealedOutput()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(f.files))
	for _, name := range f.sortedFileNames() {
		text, err := f.print(name)
		if err != nil {
			return nil, err
		}
		out[name] = text
	}
	return out, nil
}

// print renders a linked file. Elements keep descriptor order, which
// finalize already made deterministic.
func (f *finalized) print(name string) (string, error) {
	fd, err := f.registry.FindFileByPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "schema: export %s", name)
	}
	wrapped, err := desc.WrapFile(fd)
	if err != nil {
		return "", errors.Wrapf(err, "schema: export %s", name)
	}
	p := protoprint.Printer{Compact: true, Indent: "  "}
	var b strings.Builder
	if err := p.PrintProtoFile(wrapped, &b); err != nil {
		return "", errors.Wrapf(err, "schema: print %s", name)
	}
	return b.String(), nil
}
