// Package users is the user record store the login bridge manages.
//
// Reads and writes are driven by Catalog: only catalog columns are ever
// selected or written, and the Sensitive columns (password, secret) are never
// returned by reads. Users are never removed; deletion is a soft delete that
// flags the row and frees its unique identifiers.
package users
