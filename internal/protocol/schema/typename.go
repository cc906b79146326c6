package schema

import (
	"fmt"
	"strings"
)

// Typename is a proto type name split into its package and its (possibly
// dotted, i.e. nested) name within that package.
type Typename struct {
	Package string
	Name    string
}

// Mangled is the internal key form "[pkg].A.B". The brackets keep the package
// boundary visible even when the package itself is dotted.
func (t Typename) Mangled() string {
	return "[" + t.Package + "]." + t.Name
}

// FullyQualified is the descriptor form ".pkg.A.B".
func (t Typename) FullyQualified() string {
	if t.Package == "" {
		return "." + t.Name
	}
	return "." + t.Package + "." + t.Name
}

// FullName is FullyQualified without the leading dot.
func (t Typename) FullName() string {
	return strings.TrimPrefix(t.FullyQualified(), ".")
}

// Parent strips the innermost nesting level.
func (t Typename) Parent() (Typename, bool) {
	i := strings.LastIndexByte(t.Name, '.')
	if i < 0 {
		return Typename{}, false
	}
	return Typename{Package: t.Package, Name: t.Name[:i]}, true
}

// Short is the innermost name segment.
func (t Typename) Short() string {
	return t.Name[strings.LastIndexByte(t.Name, '.')+1:]
}

// Depth counts nesting levels, 0 for a top-level type.
func (t Typename) Depth() int {
	return strings.Count(t.Name, ".")
}

func (t Typename) String() string { return t.FullName() }

// ParseMangled is the inverse of Mangled.
func ParseMangled(s string) (Typename, error) {
	if !strings.HasPrefix(s, "[") {
		return Typename{}, fmt.Errorf("schema: mangled name %q has no package prefix", s)
	}
	end := strings.Index(s, "].")
	if end < 0 || end+2 >= len(s) {
		return Typename{}, fmt.Errorf("schema: malformed mangled name %q", s)
	}
	return Typename{Package: s[1:end], Name: s[end+2:]}, nil
}

// MangleGeneric rewrites bracketed type arguments into identifier-safe
// segments so they never read as nesting: "Pair[int64,string]" becomes
// "Pair_int64_string" and "Box[pkg.Item]" becomes "Box_pkg_Item". Dots
// outside brackets are kept.
func MangleGeneric(name string) string {
	if !strings.ContainsAny(name, "[]*,") {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	depth := 0
	sep := false
	emitSep := func() {
		if !sep {
			b.WriteByte('_')
			sep = true
		}
	}
	for _, r := range name {
		switch {
		case r == '[':
			depth++
			emitSep()
		case r == ']':
			depth--
			emitSep()
		case r == ',' || r == '*' || (r == '.' && depth > 0):
			emitSep()
		case r == '.':
			trimSep(&b, &sep)
			b.WriteRune(r)
		default:
			b.WriteRune(r)
			sep = false
		}
	}
	out := b.String()
	if sep {
		out = strings.TrimSuffix(out, "_")
	}
	return out
}

func trimSep(b *strings.Builder, sep *bool) {
	if !*sep {
		return
	}
	s := strings.TrimSuffix(b.String(), "_")
	b.Reset()
	b.WriteString(s)
	*sep = false
}

// validIdent reports whether every dotted segment is a proto identifier.
func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}

// mapEntryName derives the synthetic entry message name of a map field,
// "labels" -> "LabelsEntry", "by_id" -> "ByIdEntry".
func mapEntryName(field string) string {
	var b strings.Builder
	upper := true
	for _, r := range field {
		switch {
		case r == '_':
			upper = true
		case upper:
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("Entry")
	return b.String()
}
