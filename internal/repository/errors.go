// Package repository wraps the SQL used by the CLI, the fill service and the
// worker. Each repository owns one table and takes a pgx pool.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")
