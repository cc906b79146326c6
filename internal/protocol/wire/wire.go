// Package wire implements the protobuf wire primitives and the field table
// produced by tokenizing one message span.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/danmuck/protokit/internal/protocol"
)

// Type is the 3-bit wire type suffix of a field key.
type Type uint8

const (
	Varint     Type = 0
	Fixed64    Type = 1
	Bytes      Type = 2
	StartGroup Type = 3
	EndGroup   Type = 4
	Fixed32    Type = 5
)

func (t Type) String() string {
	switch t {
	case Varint:
		return "varint"
	case Fixed64:
		return "fixed64"
	case Bytes:
		return "bytes"
	case StartGroup:
		return "start_group"
	case EndGroup:
		return "end_group"
	case Fixed32:
		return "fixed32"
	default:
		return fmt.Sprintf("wire_type(%d)", uint8(t))
	}
}

// Supported reports whether values of this wire type can be read.
// Group wire types are recognized but never supported.
func (t Type) Supported() bool {
	return t == Varint || t == Fixed64 || t == Bytes || t == Fixed32
}

// Number is a field number.
type Number int32

const (
	MinNumber Number = 1
	MaxNumber Number = 1<<29 - 1

	FirstReservedNumber Number = 19000
	LastReservedNumber  Number = 19999
)

// Valid reports whether n may appear in a key.
func (n Number) Valid() bool {
	return n >= MinNumber && n <= MaxNumber
}

// Reserved reports whether n falls in the range protobuf keeps for itself.
func (n Number) Reserved() bool {
	return n >= FirstReservedNumber && n <= LastReservedNumber
}

// EncodeKey packs a field number and wire type into a key value.
func EncodeKey(n Number, t Type) uint64 {
	return protowire.EncodeTag(protowire.Number(n), protowire.Type(t&7))
}

// DecodeKey splits a key value. The number is not range checked; numbers
// beyond int32 come back as -1.
func DecodeKey(k uint64) (Number, Type) {
	n, t := protowire.DecodeTag(k)
	return Number(n), Type(t)
}

func AppendKey(b []byte, n Number, t Type) []byte {
	return AppendVarint(b, EncodeKey(n, t))
}

// ConsumeKey reads a key and rejects field numbers outside the valid range.
func ConsumeKey(b []byte) (Number, Type, int, error) {
	k, n, err := ConsumeVarint(b)
	if err != nil {
		return 0, 0, 0, err
	}
	if k>>3 > uint64(MaxNumber) {
		return 0, 0, 0, &protocol.DecodeError{Reason: protocol.InvalidFieldNumber, Err: fmt.Errorf("key %#x", k)}
	}
	num, typ := DecodeKey(k)
	if !num.Valid() {
		return 0, 0, 0, &protocol.DecodeError{Reason: protocol.InvalidFieldNumber, Field: int32(num)}
	}
	return num, typ, n, nil
}

// SizeKey is the encoded size of a key.
func SizeKey(n Number) int {
	return protowire.SizeTag(protowire.Number(n))
}
