// Package storage persists shaped option quotes in an append-only SQLite table.
package storage

import (
	"context"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
)

// Interface defines the contract for option quote persistence.
//
// There are no update or delete operations: rows are point-in-time quotes and
// the table is an append-only log.
type Interface interface {
	// EnsureSchema creates the options table if it does not exist. Safe on every run.
	EnsureSchema(ctx context.Context) error
	// InsertBatch writes all rows in one transaction, or none of them.
	InsertBatch(ctx context.Context, rows []models.OptionRow) error
	// Rows reads back every stored row in insertion order.
	Rows(ctx context.Context) ([]models.OptionRow, error)
	// Close releases the underlying connection.
	Close() error
}

// Opener opens a store at the given path
type Opener func(path string) (Interface, error)

// NewStorage opens the SQLite-backed store
func NewStorage(path string) (Interface, error) {
	return Open(path)
}

// Ensure SQLiteStore implements Interface
var _ Interface = (*SQLiteStore)(nil)

// Ensure NewStorage satisfies Opener
var _ Opener = NewStorage
