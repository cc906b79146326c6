// Package endpoint binds handler bodies to schema messages for collaborators
// such as service and transport layers.
//
// Ownership boundary:
// - body declarations (message, wrapped value, argument struct, empty)
// - endpoint registry and per-endpoint encode/decode bindings
// - the gRPC codec adapter
//
// Dispatch, routing and HTTP handling live outside this package.
package endpoint
