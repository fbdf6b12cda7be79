// Package internal holds the opaque-token helpers shared by the refresh
// store, the token codec, and the login throttle.
//
// # Sub-packages
//
//   - appconfig: authd file/env configuration and logger setup
//   - flows: pure-function orchestration of every Engine operation
//   - httpapi: the chi JSON API served by authd
//   - rate: Redis-backed login and registration throttling
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
