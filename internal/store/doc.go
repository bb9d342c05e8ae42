// Package store provides abstractions and implementations for data
// persistence. Interfaces here are implemented by the concrete stores under
// internal/platform/postgres.
package store
