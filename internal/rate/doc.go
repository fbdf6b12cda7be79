// Package rate implements the Redis-backed login throttle.
//
// # Window semantics
//
// Fixed-window counters: a Lua script INCRs the key and sets its PEXPIRE on
// the first hit. Key layout under the configured prefix:
//   - <prefix>:al:<sha256(email)>  failed logins per email
//   - <prefix>:ali:<ip>            failed logins per client IP
//
// A counter at MaxLoginAttempts blocks further attempts until the window
// expires. Successful logins clear the email counter.
package rate
