// Package password hashes and verifies identity secrets.
//
// New secrets are hashed with Argon2id and encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Identities imported from older deployments may still carry bcrypt hashes
// ($2a$, $2b$, $2y$). [Multi] verifies both encodings and reports through
// [Multi.NeedsUpgrade] when a stored hash should be rewritten with the current
// Argon2id parameters after the next successful sign-in.
//
// All comparisons are constant time.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets; callers supply plaintext and receive hashes.
//   - Import any other deskauth package.
//   - Log plaintext secrets or hashes.
package password
