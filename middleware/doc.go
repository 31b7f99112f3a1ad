// Package middleware adapts deskauth bearer credentials to net/http.
//
// # Guards
//
//   - [Guard] with [ModeRefreshPoint] trusts a verified credential until its
//     validated-at time is older than Validation.RefreshInterval, then
//     re-confirms it against the session store.
//   - [RequireStrict] re-confirms on every request.
//
// A refreshed credential is returned in the X-Refreshed-Authorization
// response header. Invalid credentials get 401. A store that cannot answer
// gets 503; it is never treated as a pass.
//
// # What this package must NOT do
//
//   - Parse or sign credentials itself (the Engine does).
//   - Decide tenant visibility; handlers call Engine.TenantScope.
package middleware
