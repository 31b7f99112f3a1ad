// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunResolve, RunIssue, RunValidate, RunScope, ...)
// accepts a typed dependency struct of function fields and returns a result
// value. The Engine builds these structs once and maps results onto its
// public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to identity lookups, the session store and
// the hasher. They do NOT own any of these resources; ownership stays with
// the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import deskauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency fields.
package flows
