// Package store provides Postgres-backed persistence for API keys and rule
// settings.
package store

import "database/sql"

// Store wraps the Postgres connection pool.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store using the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
