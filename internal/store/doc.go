// Package store defines shared persistence primitives: the DBTX abstraction
// over *sql.DB/*sql.Tx and the common error taxonomy used by concrete store
// implementations under internal/platform.
package store
