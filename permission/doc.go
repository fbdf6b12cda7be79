// Package permission defines the closed set of roles recognised by authcore
// and the role-gate predicate used by authorization checks.
//
// # Roles
//
// Roles are an enumerated type. [ParseRole] is the only way to turn untrusted
// input (token claims, database rows, request bodies) into a [Role]; unknown
// names are rejected rather than carried through as opaque strings.
//
// # Architecture boundaries
//
// This package is a pure in-memory value package with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import authcore, jwt, or refresh.
package permission
