package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/protokit/internal/observability"
	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/schema"
)

var (
	// ErrBadRequest marks input bytes a client sent that do not decode. It
	// always wraps the underlying DecodeError.
	ErrBadRequest        = errors.New("endpoint: bad request")
	ErrDuplicateEndpoint = errors.New("endpoint: duplicate endpoint")
	ErrInvalidEndpoint   = errors.New("endpoint: invalid endpoint")
	ErrUnknownEndpoint   = errors.New("endpoint: unknown endpoint")
)

// Endpoint is one handler as seen by the codec: a name and two bodies.
type Endpoint struct {
	Name   string
	Input  Body
	Output Body
}

// Options are the codec settings applied by every binding.
type Options struct {
	Marshal   codec.MarshalOptions
	Unmarshal codec.UnmarshalOptions
}

// Binding is a registered endpoint resolved against a schema.
type Binding struct {
	Name   string
	Input  *schema.ProtoType
	Output *schema.ProtoType

	endpoint Endpoint
	opts     Options
}

// Registry collects endpoints and binds them to a schema.
type Registry struct {
	mu        sync.RWMutex
	opts      Options
	endpoints map[string]Endpoint
	order     []string
	bindings  map[string]*Binding
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:      opts,
		endpoints: make(map[string]Endpoint),
		bindings:  make(map[string]*Binding),
	}
}

// Add records e. Names are unique per registry.
func (r *Registry) Add(e Endpoint) error {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEndpoint)
	}
	if !e.Input.valid() || !e.Output.valid() {
		return fmt.Errorf("%w: %s has an undeclared body", ErrInvalidEndpoint, name)
	}
	e.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, name)
	}
	r.endpoints[name] = e
	r.order = append(r.order, name)
	return nil
}

// Build registers every endpoint not yet bound with s, in the order they
// were added. The schema is left open so callers can register more types
// before Finalize.
func (r *Registry) Build(s *schema.Schema) (map[string]*Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		if _, ok := r.bindings[name]; ok {
			continue
		}
		e := r.endpoints[name]
		params, err := e.Input.Params()
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", name, err)
		}
		types, err := s.RegisterEndpoint(name, params, e.Output.Ref())
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", name, err)
		}
		r.bindings[name] = &Binding{
			Name:     name,
			Input:    types.Input,
			Output:   types.Output,
			endpoint: e,
			opts:     r.opts,
		}
		log.Debug().
			Str("endpoint", name).
			Str("input", types.Input.String()).
			Str("output", types.Output.String()).
			Msg("endpoint.Build")
	}
	out := make(map[string]*Binding, len(r.bindings))
	for name, b := range r.bindings {
		out[name] = b
	}
	return out, nil
}

// Binding returns the bound endpoint called name.
func (r *Registry) Binding(name string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return b, nil
}

// Names lists added endpoints, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

func (b *Binding) EncodeInput(v any) ([]byte, error) {
	return b.encode(b.endpoint.Input, v)
}

// DecodeInput decodes request bytes. Decode failures wrap ErrBadRequest.
func (b *Binding) DecodeInput(data []byte) (any, error) {
	v, err := b.decode(b.endpoint.Input, data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadRequest, b.Name, err)
		}
		return nil, err
	}
	return v, nil
}

func (b *Binding) EncodeOutput(v any) ([]byte, error) {
	return b.encode(b.endpoint.Output, v)
}

func (b *Binding) DecodeOutput(data []byte) (any, error) {
	return b.decode(b.endpoint.Output, data)
}

func (b *Binding) encode(body Body, v any) ([]byte, error) {
	start := time.Now()
	out, err := body.encode(b.opts.Marshal, v)
	observability.RecordCodec(b.Name, observability.DirectionEncode, len(out), time.Since(start), err)
	return out, err
}

func (b *Binding) decode(body Body, data []byte) (any, error) {
	start := time.Now()
	v, err := body.decode(b.opts.Unmarshal, data)
	observability.RecordCodec(b.Name, observability.DirectionDecode, len(data), time.Since(start), err)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", b.Name).Int("bytes", len(data)).Msg("endpoint decode failed")
	}
	return v, err
}
