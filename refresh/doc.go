// Package refresh defines the refresh-token store contract and its Redis
// implementation.
//
// A refresh token is an opaque random identifier whose validity lives only
// in the store. Every record is single-use: Redeem and Rotate flip the
// revoked flag in the same atomic step that checks it, so two concurrent
// redemptions of one token can never both succeed. A redemption attempt on
// an already revoked record returns ErrAlreadyRevoked together with the
// record, which callers treat as a replay signal.
//
// Identifiers are persisted as their SHA-256 digest unless
// Options.RawIdentifiers is set.
//
// The SQL implementation lives in package sqlstore.
package refresh
