// Package permission resolves the effective capability set of a role.
//
// # Replace, never merge
//
// A role's stored capability map is authoritative only when it is non-empty.
// When it is missing or empty, the built-in default map for that role name
// replaces it entirely. Stored and default maps are never merged. Role names
// without a built-in default fall back to the [RoleUser] defaults.
//
// # Architecture boundaries
//
// This package owns the capability catalog, the built-in defaults and the
// [Resolver]. Role rows are read through the narrow [Source] interface; the
// package performs no I/O of its own.
//
// # What this package must NOT do
//
//   - Import deskauth, session, or any store package.
//   - Return shared default maps that callers could mutate.
//   - Fail a login: source errors degrade to defaults.
package permission
