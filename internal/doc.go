// Package internal holds helpers private to deskauth: session token
// generation and digesting.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators behind every Engine operation
//   - config: file and environment loading for the command-line tools
//   - logging: zerolog logger construction
//
// # What this package must NOT do
//
//   - Export types that appear in the public deskauth API.
//   - Be imported by any package outside the deskauth module.
package internal
