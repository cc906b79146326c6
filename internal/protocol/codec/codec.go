// Package codec encodes and decodes Go values described by static field
// tables (see Describe) using the protobuf wire format.
package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/protokit/internal/protocol"
)

// DefaultMaxDepth bounds message nesting for both directions.
const DefaultMaxDepth = 100

type MarshalOptions struct {
	// MaxDepth bounds nested message recursion. Zero means DefaultMaxDepth.
	MaxDepth int
}

type UnmarshalOptions struct {
	// MaxDepth bounds nested message recursion. Zero means DefaultMaxDepth.
	MaxDepth int
}

func depthOrDefault(n int) int {
	if n <= 0 {
		return DefaultMaxDepth
	}
	return n
}

// Marshal encodes m, a pointer to a described type.
func Marshal(m any) ([]byte, error) {
	return MarshalOptions{}.Append(nil, m)
}

func (o MarshalOptions) Marshal(m any) ([]byte, error) {
	return o.Append(nil, m)
}

// Append encodes m onto b.
func (o MarshalOptions) Append(b []byte, m any) ([]byte, error) {
	info, err := resolve(m)
	if err != nil {
		return b, err
	}
	e := &encoder{maxDepth: depthOrDefault(o.MaxDepth)}
	return e.appendMessage(b, info, m)
}

// Encode writes the encoding of m to w.
func Encode(w io.Writer, m any) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Unmarshal decodes b into m, a non-nil pointer to a described type. Declared
// fields of m are reset first.
func Unmarshal(b []byte, m any) error {
	return UnmarshalOptions{}.Unmarshal(b, m)
}

func (o UnmarshalOptions) Unmarshal(b []byte, m any) error {
	info, err := resolve(m)
	if err != nil {
		return err
	}
	d := &decoder{maxDepth: depthOrDefault(o.MaxDepth)}
	if err := d.decodeMessage(info, m, b); err != nil {
		log.Debug().Err(err).Str("message", info.name).Int("bytes", len(b)).Msg("codec.Unmarshal failed")
		return err
	}
	return nil
}

// Decode reads r to EOF and decodes the bytes into m.
func Decode(r io.Reader, m any) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("codec: read message: %w", err)
	}
	return Unmarshal(b, m)
}

func resolve(m any) (*MessageInfo, error) {
	info, ok := infoFor(m)
	if !ok {
		return nil, &protocol.EncodeError{
			Reason: protocol.UnrepresentableType,
			Detail: fmt.Sprintf("no declared field table for %T", m),
		}
	}
	if reflect.ValueOf(m).IsNil() {
		return nil, &protocol.EncodeError{Reason: protocol.UnrepresentableType, Message: info.name, Detail: "nil message"}
	}
	return info, nil
}
