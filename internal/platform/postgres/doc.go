// Package postgres provides PostgreSQL implementations of the store
// interfaces. All stores accept a store.DBTX so they run against either a
// connection pool or a transaction.
package postgres
