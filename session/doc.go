// Package session provides Redis-backed session persistence and the compact
// binary encoding of session rows.
//
// # Keys
//
// A session is stored under <prefix>:s:<digest>, where digest is the hex
// SHA-256 of the opaque session token; the raw token never reaches Redis.
// Each identity keeps a set <prefix>:i:<namespace>:<id> of its live digests so
// that all sessions of one identity can be removed together.
//
// # Atomic replace
//
// [Store.ReplaceForIdentity] writes the new session and removes every other
// session of the identity in one Lua script. Two concurrent replaces for the
// same identity therefore leave exactly one session behind, never zero. The
// script touches keys derived at run time, so the store targets a single
// Redis primary rather than a sharded cluster.
//
// # What this package must NOT do
//
//   - Import deskauth, jwt, or permission (no upward imports).
//   - Decide whether a session is valid beyond its own expiry timestamp.
//   - Store raw session tokens.
package session
