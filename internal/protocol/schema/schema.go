package schema

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
)

// ErrNotFinalized is returned by the descriptor accessors before Finalize.
var ErrNotFinalized = errors.New("schema: not finalized")

// Options configures a Schema.
type Options struct {
	// DefaultPackage holds types declaring no package and every synthetic
	// wrapper message.
	DefaultPackage string
	// Syntax of synthetic wrapper messages.
	Syntax codec.Syntax
	// EmitReserved copies declared reserved numbers and names into the
	// descriptors and the exported text.
	EmitReserved bool
}

func DefaultOptions() Options {
	return Options{Syntax: codec.Proto3, EmitReserved: true}
}

// Param is one named input of an endpoint.
type Param struct {
	Name string
	Ref  codec.TypeRef
	// Unpacked marks a repeated scalar param that is encoded one element per
	// key.
	Unpacked bool
}

// EndpointTypes are the rpc input and output messages of one endpoint.
type EndpointTypes struct {
	Input  *ProtoType
	Output *ProtoType
}

// Schema derives proto types from declared native types and seals them into
// file descriptors. Registration is serialized by one mutex; once Finalize
// has run the schema is read-only and safe for concurrent reads.
type Schema struct {
	mu     sync.Mutex
	opts   Options
	sealed atomic.Bool

	cache     map[cacheKey]*ProtoType
	stack     []cacheKey
	anon      int
	empty     *ProtoType
	types     map[string]*ProtoType
	endpoints map[string]EndpointTypes

	final    *finalized
	finalErr error
}

func New(opts Options) *Schema {
	return &Schema{
		opts:      opts,
		cache:     make(map[cacheKey]*ProtoType),
		types:     make(map[string]*ProtoType),
		endpoints: make(map[string]EndpointTypes),
	}
}

func (s *Schema) Options() Options { return s.opts }

// Sealed reports whether Finalize has run.
func (s *Schema) Sealed() bool { return s.sealed.Load() }

// Types lists the collected message and enum types ordered by name.
func (s *Schema) Types() []*ProtoType {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.types))
	for k := range s.types {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*ProtoType, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.types[k])
	}
	return out
}

// Lookup returns the collected type with the given name.
func (s *Schema) Lookup(name Typename) (*ProtoType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.types[name.Mangled()]
	return pt, ok
}

func (s *Schema) checkOpen(what string) error {
	if s.sealed.Load() {
		return &protocol.SchemaError{Reason: protocol.SealedSchemaMutation, Type: what, Detail: "schema is finalized"}
	}
	return nil
}

func unmappable(typ, detail string) error {
	return &protocol.SchemaError{Reason: protocol.UnmappableType, Type: typ, Detail: detail}
}
