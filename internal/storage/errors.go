package storage

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
)

// ErrEmptyPath is returned when no database path is configured
var ErrEmptyPath = errors.New("database path is empty")

// PersistenceError is returned when a batch insert fails and was rolled back.
// Sample holds the first row of the batch for diagnosis.
type PersistenceError struct {
	Sample *models.OptionRow
	Rows   int
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("inserting %d rows: %v", e.Rows, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
