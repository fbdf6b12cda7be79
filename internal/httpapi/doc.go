// Package httpapi exposes an [authcore.Engine] over JSON/HTTP.
//
// Routes live under /api/v1. Public routes cover registration, login,
// refresh, and logout; /users/me requires a valid access token of an active
// account and the remaining /users routes require the admin role. /health and /metrics are
// unauthenticated.
//
// Error bodies share one shape:
//
//	{"status": 401, "code": "unauthorised", "message": "invalid credentials"}
//
// Authentication failures never say which check failed.
package httpapi
