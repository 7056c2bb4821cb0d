// Package postgres implements the persistence interfaces against PostgreSQL,
// mapping driver errors to the store package's domain errors.
package postgres
