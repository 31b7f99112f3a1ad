// Package deskauth is the identity and session authority of a multi-tenant
// helpdesk. It resolves credentials across three identity namespaces, issues
// and validates server-side sessions, resolves effective capabilities and
// computes the tenant scope every downstream resource query must apply.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. The engine keeps no identity, role or tenant cache; every
// decision reads the stores, and every store call runs under
// [StoreConfig.Timeout].
//
// # Namespaces
//
// Identities live in three tables with overlapping email spaces: Matrix
// (staff associated with many tenants), Context (bound to exactly one tenant)
// and Legacy (pre-tenancy accounts, unrestricted). Without a hint the search
// order is Matrix, Context, Legacy.
//
// # Failing safe
//
//   - All credential failures surface as [ErrInvalidCredentials].
//   - A session store that cannot answer never yields a valid session.
//   - A tenant association read error yields a deny-all scope.
//
// # Architecture boundaries
//
// deskauth is the public surface. Flow orchestration lives in internal/flows,
// Redis persistence in session, Postgres persistence in store/pgstore and
// in-memory fixtures in store/memory.
package deskauth
