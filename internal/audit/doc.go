// Package audit carries sign-in and session events from the engine to a
// caller-supplied Sink without blocking the request path.
//
// The engine decides which events exist; this package only buffers and
// delivers them. A full buffer either drops (counted by Dropped) or makes
// Emit wait, depending on Config.DropIfFull. Close drains the queue.
//
// The package must not import deskauth or sibling internal packages.
package audit
