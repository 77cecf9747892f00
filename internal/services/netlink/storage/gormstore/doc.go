// Package gormstore provides the NetLink persistence adapter for hosted
// relational databases through gorm. Production deployments use Postgres.
package gormstore
