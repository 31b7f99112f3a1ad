// Package tenancy models the set of tenants an identity may see.
//
// A [Scope] is either unrestricted or restricted to an explicit set of tenant
// ids. The restricted form with an empty set is deny-all: it matches no
// tenant and produces SQL that matches no row. There is no sentinel tenant id.
//
// Downstream resource queries (tickets, timesheets, knowledge base) receive a
// Scope from the authority and apply it through [Scope.Predicate] or
// [Filter]. This package never executes queries itself.
package tenancy
