package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTruncated           = errors.New("protocol: truncated data")
	ErrVarintOverflow      = errors.New("protocol: varint overflows 64 bits")
	ErrUnsupportedWireType = errors.New("protocol: unsupported wire type")
	ErrInvalidFieldNumber  = errors.New("protocol: invalid field number")
	ErrTypeMismatch        = errors.New("protocol: wire type mismatch")
	ErrMissingRequired     = errors.New("protocol: missing required field")
	ErrDepthExceeded       = errors.New("protocol: recursion depth exceeded")
	ErrInvalidValue        = errors.New("protocol: invalid field value")

	ErrUnrepresentableType = errors.New("protocol: unrepresentable type")

	ErrDuplicateFieldNumber = errors.New("protocol: duplicate field number")
	ErrUnmappableType       = errors.New("protocol: unmappable type")
	ErrSealedSchemaMutation = errors.New("protocol: schema is sealed")
	ErrEnumMissingZeroValue = errors.New("protocol: proto3 enum missing zero value")
	ErrConflictingTypeNames = errors.New("protocol: conflicting type names")
	ErrSyntaxMismatch       = errors.New("protocol: proto syntax mismatch")
)

// DecodeReason classifies a DecodeError.
type DecodeReason uint8

const (
	TruncatedVarint DecodeReason = iota + 1
	Truncated
	UnsupportedWireType
	InvalidFieldNumber
	TypeMismatch
	MissingRequiredField
	DepthExceeded
	InvalidValue
	VarintOverflow
)

func (r DecodeReason) String() string {
	switch r {
	case TruncatedVarint:
		return "truncated_varint"
	case Truncated:
		return "truncated"
	case UnsupportedWireType:
		return "unsupported_wire_type"
	case InvalidFieldNumber:
		return "invalid_field_number"
	case TypeMismatch:
		return "type_mismatch"
	case MissingRequiredField:
		return "missing_required_field"
	case DepthExceeded:
		return "depth_exceeded"
	case InvalidValue:
		return "invalid_value"
	case VarintOverflow:
		return "varint_overflow"
	default:
		return fmt.Sprintf("decode_reason(%d)", uint8(r))
	}
}

func (r DecodeReason) sentinel() error {
	switch r {
	case TruncatedVarint, Truncated:
		return ErrTruncated
	case UnsupportedWireType:
		return ErrUnsupportedWireType
	case InvalidFieldNumber:
		return ErrInvalidFieldNumber
	case TypeMismatch:
		return ErrTypeMismatch
	case MissingRequiredField:
		return ErrMissingRequired
	case DepthExceeded:
		return ErrDepthExceeded
	case VarintOverflow:
		return ErrVarintOverflow
	default:
		return ErrInvalidValue
	}
}

// DecodeError reports bytes that cannot be turned into a value of the target type.
// Expected and Found hold raw wire type numbers and are only set for TypeMismatch.
type DecodeError struct {
	Reason   DecodeReason
	Message  string
	Field    int32
	Offset   int
	Expected uint8
	Found    uint8
	Err      error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode: ")
	b.WriteString(e.Reason.String())
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%s", e.Message)
	}
	if e.Field != 0 {
		fmt.Fprintf(&b, " field=%d", e.Field)
	}
	if e.Reason == TypeMismatch {
		fmt.Fprintf(&b, " expected_wire=%d found_wire=%d", e.Expected, e.Found)
	}
	if e.Offset > 0 {
		fmt.Fprintf(&b, " offset=%d", e.Offset)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	return target == e.Reason.sentinel()
}

// EncodeReason classifies an EncodeError.
type EncodeReason uint8

const (
	UnrepresentableType EncodeReason = iota + 1
)

func (r EncodeReason) String() string {
	if r == UnrepresentableType {
		return "unrepresentable_type"
	}
	return fmt.Sprintf("encode_reason(%d)", uint8(r))
}

// EncodeError reports a value that has no wire representation.
type EncodeError struct {
	Reason  EncodeReason
	Message string
	Field   int32
	Detail  string
}

func (e *EncodeError) Error() string {
	msg := "encode: " + e.Reason.String()
	if e.Message != "" {
		msg += " message=" + e.Message
	}
	if e.Field != 0 {
		msg += fmt.Sprintf(" field=%d", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *EncodeError) Is(target error) bool {
	return target == ErrUnrepresentableType
}

// SchemaReason classifies a SchemaError.
type SchemaReason uint8

const (
	DuplicateFieldNumber SchemaReason = iota + 1
	UnmappableType
	SealedSchemaMutation
	EnumMissingZeroValueInProto3
	InvalidFieldNumberInSchema
	ConflictingTypeNames
	SyntaxMismatch
)

func (r SchemaReason) String() string {
	switch r {
	case DuplicateFieldNumber:
		return "duplicate_field_number"
	case UnmappableType:
		return "unmappable_type"
	case SealedSchemaMutation:
		return "sealed_schema_mutation"
	case EnumMissingZeroValueInProto3:
		return "enum_missing_zero_value_in_proto3"
	case InvalidFieldNumberInSchema:
		return "invalid_field_number"
	case ConflictingTypeNames:
		return "conflicting_type_names"
	case SyntaxMismatch:
		return "syntax_mismatch"
	default:
		return fmt.Sprintf("schema_reason(%d)", uint8(r))
	}
}

func (r SchemaReason) sentinel() error {
	switch r {
	case DuplicateFieldNumber:
		return ErrDuplicateFieldNumber
	case UnmappableType:
		return ErrUnmappableType
	case SealedSchemaMutation:
		return ErrSealedSchemaMutation
	case EnumMissingZeroValueInProto3:
		return ErrEnumMissingZeroValue
	case InvalidFieldNumberInSchema:
		return ErrInvalidFieldNumber
	case ConflictingTypeNames:
		return ErrConflictingTypeNames
	case SyntaxMismatch:
		return ErrSyntaxMismatch
	default:
		return nil
	}
}

// SchemaError aborts a schema build. Type names the native type being mapped.
type SchemaError struct {
	Reason SchemaReason
	Type   string
	Field  string
	Detail string
}

func (e *SchemaError) Error() string {
	msg := "schema: " + e.Reason.String()
	if e.Type != "" {
		msg += " type=" + e.Type
	}
	if e.Field != "" {
		msg += " field=" + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SchemaError) Is(target error) bool {
	s := e.Reason.sentinel()
	return s != nil && target == s
}
