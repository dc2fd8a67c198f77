package storage

import (
	"context"
	"fmt"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
)

// MockStorage implements Interface in memory for testing. It enforces the
// same (symbol, quote_timestamp) uniqueness and all-or-nothing batches.
type MockStorage struct {
	schemaError     error
	insertError     error
	rows            []models.OptionRow
	schemaCreated   bool
	closed          bool
	schemaCallCount int
	insertCallCount int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// Opener returns an Opener that always hands out this mock.
func (m *MockStorage) Opener() Opener {
	return func(string) (Interface, error) {
		m.closed = false
		return m, nil
	}
}

func (m *MockStorage) EnsureSchema(ctx context.Context) error {
	m.schemaCallCount++
	if m.schemaError != nil {
		return m.schemaError
	}
	m.schemaCreated = true
	return nil
}

func (m *MockStorage) InsertBatch(ctx context.Context, rows []models.OptionRow) error {
	m.insertCallCount++
	if len(rows) == 0 {
		return nil
	}
	sample := rows[0]
	if m.insertError != nil {
		return &PersistenceError{Sample: &sample, Rows: len(rows), Err: m.insertError}
	}
	if !m.schemaCreated {
		return &PersistenceError{Sample: &sample, Rows: len(rows), Err: fmt.Errorf("no such table: options")}
	}

	seen := make(map[[2]string]bool, len(m.rows)+len(rows))
	for _, r := range m.rows {
		seen[[2]string{r.Symbol, r.QuoteTimestamp}] = true
	}
	for _, r := range rows {
		key := [2]string{r.Symbol, r.QuoteTimestamp}
		if seen[key] {
			return &PersistenceError{
				Sample: &sample,
				Rows:   len(rows),
				Err:    fmt.Errorf("UNIQUE constraint failed: options.symbol, options.quote_timestamp"),
			}
		}
		seen[key] = true
	}

	m.rows = append(m.rows, rows...)
	return nil
}

func (m *MockStorage) Rows(ctx context.Context) ([]models.OptionRow, error) {
	out := make([]models.OptionRow, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *MockStorage) Close() error {
	m.closed = true
	return nil
}

// Test helper methods
func (m *MockStorage) SetSchemaError(err error) {
	m.schemaError = err
}

func (m *MockStorage) SetInsertError(err error) {
	m.insertError = err
}

func (m *MockStorage) IsClosed() bool {
	return m.closed
}

func (m *MockStorage) GetSchemaCallCount() int {
	return m.schemaCallCount
}

func (m *MockStorage) GetInsertCallCount() int {
	return m.insertCallCount
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)
