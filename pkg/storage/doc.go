// Package storage opens and configures the relational database shared by the
// user, token and settings stores.
//
// # Drivers
//
// Two database/sql drivers are supported:
//
//   - postgres (github.com/lib/pq): production deployments
//   - sqlite3 (github.com/mattn/go-sqlite3): single-node and development setups
//
// Stores write their queries with PostgreSQL-style positional placeholders
// ($1, $2, ...). DB.Rebind converts them for the active driver:
//
//	db, err := storage.Open(ctx, storage.Config{Driver: storage.DriverPostgres, URL: url})
//	row := db.QueryRowContext(ctx, db.Rebind("SELECT id FROM users WHERE username = $1"), name)
//
// # Schema
//
// Each store package exposes its DDL as a list of statements; ApplySchema runs
// them in order inside one transaction:
//
//	err := storage.ApplySchema(ctx, db, users.Schema(db.Driver)...)
package storage
