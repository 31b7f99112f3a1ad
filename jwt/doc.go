// Package jwt signs and verifies the bearer credential handed to clients
// after sign-in.
//
// The credential carries the opaque session token (claim "sid"), the
// identity's namespace, role, bound tenant and granted capabilities, and the
// time the session was last confirmed against the store (claim "vat"). A
// credential without "sid" was minted before server-side sessions existed;
// the engine treats it as unregistered.
package jwt
