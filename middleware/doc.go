// Package middleware adapts [authcore.Engine] access checks to HTTP handlers
// and gRPC unary servers.
//
// # Guards
//
//   - [Guard] authenticates the bearer token and stores the
//     [authcore.AuthResult] in the request context.
//   - [RequireRoles] authenticates and then authorizes against a role set.
//   - [UnaryServerInterceptor] does both for gRPC using a per-method
//     [MethodPolicy].
//
// Guards never parse tokens themselves and never touch a store; every
// decision comes from Engine.Authenticate and Engine.Authorize, so a guarded
// request costs no I/O.
package middleware
