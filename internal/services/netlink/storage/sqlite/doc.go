// Package sqlite provides the NetLink persistence adapter backed by SQLite.
package sqlite
