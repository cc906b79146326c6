package endpoint

import (
	"fmt"
	"reflect"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/schema"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

// Body describes one side of an endpoint: how the schema sees it and how a Go
// value of it travels on the wire.
type Body struct {
	goName string
	ref    codec.TypeRef
	params func() ([]schema.Param, error)
	encode func(opts codec.MarshalOptions, v any) ([]byte, error)
	decode func(opts codec.UnmarshalOptions, b []byte) (any, error)
}

// GoName is the Go type a body value must have.
func (b Body) GoName() string { return b.goName }

// Ref is the bare type handed to the schema for outputs.
func (b Body) Ref() codec.TypeRef { return b.ref }

// Params is the parameter list handed to the schema for inputs.
func (b Body) Params() ([]schema.Param, error) {
	if b.params == nil {
		return nil, nil
	}
	return b.params()
}

func (b Body) valid() bool { return b.encode != nil && b.decode != nil }

// Message is a body carried as the declared message M itself. Values are *M.
func Message[M any]() Body {
	return Body{
		goName: "*" + reflect.TypeFor[M]().String(),
		ref:    codec.MessageOf[M]().Ref(),
		params: func() ([]schema.Param, error) {
			return []schema.Param{{Name: "body", Ref: codec.MessageOf[M]().Ref()}}, nil
		},
		encode: func(opts codec.MarshalOptions, v any) ([]byte, error) {
			m, ok := v.(*M)
			if !ok {
				return nil, mismatched(v, "*"+reflect.TypeFor[M]().String())
			}
			return opts.Marshal(m)
		},
		decode: func(opts codec.UnmarshalOptions, b []byte) (any, error) {
			m := new(M)
			if err := opts.Unmarshal(b, m); err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

// Empty is a body without payload. Values are codec.Empty.
func Empty() Body {
	return Body{
		goName: "codec.Empty",
		ref:    codec.EmptyRef(),
		encode: func(_ codec.MarshalOptions, v any) ([]byte, error) {
			switch v.(type) {
			case nil, codec.Empty, *codec.Empty:
				return nil, nil
			}
			return nil, mismatched(v, "codec.Empty")
		},
		decode: func(_ codec.UnmarshalOptions, _ []byte) (any, error) {
			return codec.Empty{}, nil
		},
	}
}

// box is the Go side of a synthetic wrapper message: one value at field 1.
type box[V any] struct{ Value V }

func boxInfo[V any](declare func() *codec.MessageInfo) *codec.MessageInfo {
	if info := codec.InfoOf[box[V]](); info != nil {
		return info
	}
	return declare()
}

func boxed[V any](param string, ref codec.TypeRef, declare func() *codec.MessageInfo) Body {
	boxInfo[V](declare)
	goName := reflect.TypeFor[V]().String()
	// a lone message is never wrapped by the schema, so its body is the
	// message itself rather than field 1 of the box
	direct := ref.Kind == codec.MessageKind && !ref.List && !ref.Optional
	return Body{
		goName: goName,
		ref:    ref,
		params: func() ([]schema.Param, error) {
			return []schema.Param{{Name: param, Ref: ref}}, nil
		},
		encode: func(opts codec.MarshalOptions, v any) ([]byte, error) {
			val, ok := v.(V)
			if !ok {
				return nil, mismatched(v, goName)
			}
			b, err := opts.Marshal(&box[V]{Value: val})
			if err != nil || !direct {
				return b, err
			}
			return unbox(b)
		},
		decode: func(opts codec.UnmarshalOptions, b []byte) (any, error) {
			if direct {
				b = wire.AppendBytes(wire.AppendKey(nil, 1, wire.Bytes), b)
			}
			var out box[V]
			if err := opts.Unmarshal(b, &out); err != nil {
				return nil, err
			}
			return out.Value, nil
		},
	}
}

func unbox(b []byte) ([]byte, error) {
	tab, err := wire.Parse(b)
	if err != nil {
		return nil, err
	}
	f, ok := tab.Last(1)
	if !ok {
		return nil, nil
	}
	return tab.Data(f), nil
}

// Value is a single non-message value, wrapped in a one-field message whose
// field is named param on input and "value" on output.
func Value[V any](param string, typ codec.Type[V]) Body {
	return boxed[V](param, typ.Ref(), func() *codec.MessageInfo {
		return codec.Describe[box[V]]("Value",
			codec.Singular("value", typ, func(b *box[V]) *V { return &b.Value }))
	})
}

// List is a repeated value wrapped the same way as Value.
func List[V any](param string, typ codec.Type[V]) Body {
	return boxed[[]V](param, codec.ListOf(typ.Ref()), func() *codec.MessageInfo {
		return codec.Describe[box[[]V]]("List",
			codec.Repeated("value", typ, func(b *box[[]V]) *[]V { return &b.Value }))
	})
}

// Map is a map value wrapped the same way as Value.
func Map[K comparable, V any](param string, key codec.Type[K], val codec.Type[V]) Body {
	info := boxInfo[map[K]V](func() *codec.MessageInfo {
		return codec.Describe[box[map[K]V]]("Map",
			codec.Map("value", key, val, func(b *box[map[K]V]) *map[K]V { return &b.Value }))
	})
	return boxed[map[K]V](param, info.Fields()[0].Ref, func() *codec.MessageInfo { return info })
}

// Args is a body of several named parameters backed by the declared struct
// T. Its fields become the parameters in declaration order, so T must number
// its fields by position and declare no oneofs. Values are *T.
func Args[T any]() Body {
	b := Message[T]()
	b.params = func() ([]schema.Param, error) {
		info := codec.InfoOf[T]()
		if info == nil {
			return nil, &protocol.SchemaError{
				Reason: protocol.UnmappableType,
				Type:   reflect.TypeFor[T]().String(),
				Detail: "no declared field table",
			}
		}
		params := make([]schema.Param, 0, len(info.Fields()))
		for i, f := range info.Fields() {
			if f.Oneof != nil || int(f.Number) != i+1 {
				return nil, &protocol.SchemaError{
					Reason: protocol.UnmappableType,
					Type:   info.Name(),
					Field:  f.Name,
					Detail: "argument fields must be numbered by position without oneofs",
				}
			}
			params = append(params, schema.Param{Name: f.Name, Ref: paramRef(f), Unpacked: f.Label == codec.LabelRepeated && f.Ref.Kind.Packable() && !f.Packed})
		}
		if len(params) == 1 && params[0].Ref.Kind == codec.MessageKind && !params[0].Ref.List {
			return nil, &protocol.SchemaError{
				Reason: protocol.UnmappableType,
				Type:   info.Name(),
				Detail: "a single message argument is a Message body",
			}
		}
		return params, nil
	}
	return b
}

func paramRef(f *codec.Field) codec.TypeRef {
	switch {
	case f.Ref.Kind == codec.MapKind:
		return f.Ref
	case f.Label == codec.LabelRepeated:
		return codec.ListOf(f.Ref)
	case f.Label == codec.LabelOptional:
		return codec.OptionalOf(f.Ref)
	default:
		return f.Ref
	}
}

func mismatched(v any, want string) error {
	return &protocol.EncodeError{
		Reason: protocol.UnrepresentableType,
		Detail: fmt.Sprintf("body value %T, want %s", v, want),
	}
}
