// Package jwt issues and verifies signed access tokens and mints the opaque
// identifiers used as refresh tokens.
//
// Access tokens carry a fixed claim set (sub, role, iat, exp, jti, typ) and
// are valid purely by signature and expiry: verification performs no I/O.
// Expiry is exclusive, so a token is expired at exactly its exp second.
package jwt
