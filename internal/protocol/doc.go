// Package protocol owns the protobuf-compatible wire contract.
//
// Ownership boundary:
// - wire primitives and the field table (wire)
// - declared type tables, value encoder and decoder (codec)
// - schema derivation, descriptor finalization and .proto export (schema)
// - varint-delimited message streams (frame)
// - per-endpoint bindings for the service layer (endpoint)
//
// This package holds the error taxonomy shared by all of them.
package protocol
