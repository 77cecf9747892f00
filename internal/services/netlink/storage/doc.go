// Package storage declares persistence contracts for the NetLink backend.
//
// Two adapters implement Store: sqlite for single-node deployments and
// gormstore for a hosted Postgres database.
package storage
