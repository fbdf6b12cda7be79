// Package password implements the credential hasher: salted, adaptive one-way
// password hashing and constant-time verification.
//
// Two backends are provided. [Argon2] (the default) produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] produces standard $2a$ strings with a configurable cost. Both
// backends reject empty, over-length, or non-UTF-8 input with
// [ErrInvalidPassword] before doing any work, and both report hashes produced
// with weaker parameters through NeedsUpgrade so the caller can rehash on the
// next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length, character classes) is enforced by the Engine at registration.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
