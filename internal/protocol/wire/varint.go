package wire

import (
	"errors"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/danmuck/protokit/internal/protocol"
)

// MaxVarintLen is the longest varint encoding of a 64-bit value.
const MaxVarintLen = 10

// consumeErr turns a negative protowire length into a DecodeError. truncated
// is the reason reported when the input ran out.
func consumeErr(n int, truncated protocol.DecodeReason) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &protocol.DecodeError{Reason: truncated, Err: err}
	}
	return &protocol.DecodeError{Reason: protocol.VarintOverflow, Err: err}
}

// AppendVarint writes v least significant group first, 7 bits per byte.
// Signed values are written as their uint64 reinterpretation, so any negative
// number takes the full 10 bytes.
func AppendVarint(b []byte, v uint64) []byte {
	return protowire.AppendVarint(b, v)
}

// SizeVarint is the number of bytes AppendVarint writes for v.
func SizeVarint(v uint64) int {
	return protowire.SizeVarint(v)
}

// ConsumeVarint reads one varint and returns the value and the bytes consumed.
// A tenth byte above 1 overflows 64 bits.
func ConsumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, consumeErr(n, protocol.TruncatedVarint)
	}
	return v, n, nil
}

func AppendFixed32(b []byte, v uint32) []byte {
	return protowire.AppendFixed32(b, v)
}

func AppendFixed64(b []byte, v uint64) []byte {
	return protowire.AppendFixed64(b, v)
}

func AppendFloat(b []byte, v float32) []byte {
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func AppendDouble(b []byte, v float64) []byte {
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func ConsumeFixed32(b []byte) (uint32, int, error) {
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, consumeErr(n, protocol.Truncated)
	}
	return v, n, nil
}

func ConsumeFixed64(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, consumeErr(n, protocol.Truncated)
	}
	return v, n, nil
}

// AppendBytes writes a length-delimited value.
func AppendBytes(b, v []byte) []byte {
	return protowire.AppendBytes(b, v)
}

func AppendString(b []byte, v string) []byte {
	return protowire.AppendString(b, v)
}

// ConsumeBytes reads a length-delimited value. The returned slice aliases b.
func ConsumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		// protowire reports a short prefix and a short payload alike.
		if _, pn := protowire.ConsumeVarint(b); pn < 0 {
			return nil, 0, consumeErr(pn, protocol.TruncatedVarint)
		}
		return nil, 0, consumeErr(n, protocol.Truncated)
	}
	return v, n, nil
}

// SizeBytes is the encoded size of a length-delimited value of length l.
func SizeBytes(l int) int {
	return protowire.SizeBytes(l)
}
