// Package pgstore implements the deskauth identity, role and session stores
// on PostgreSQL through pgx.
//
// The three identity namespaces live in separate tables with the same core
// columns; see schema.sql. Migrate applies that schema idempotently.
package pgstore
