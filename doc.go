// Package authcore is an authentication and token-lifecycle engine: email and
// password registration, login issuing a short-lived signed access token plus
// a rotating opaque refresh token, refresh with replay detection, logout, and
// a stateless access guard with role checks.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface: [Engine], [Builder], [Config], the
// [UserStore] contract, and value types. Flow orchestration, login
// throttling, and token generation live under internal/. Refresh-token state
// lives behind [refresh.Store]; the engine itself keeps no session state.
//
// # Token lifecycle
//
// Login returns an access token signed by the jwt package and a refresh
// token whose SHA-256 digest is persisted. RefreshSession redeems the refresh
// token atomically and issues a successor. Presenting a redeemed token again
// is treated as theft: every refresh token of that user is revoked and
// [ErrRefreshReuse] is returned.
//
// Authenticate performs no I/O. A deactivated account keeps working until
// its current access token expires, but can no longer refresh.
package authcore
