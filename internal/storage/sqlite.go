package storage

import (
	"context"
	"fmt"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
	_ "github.com/glebarez/go-sqlite" // registers the pure-Go "sqlite" driver
	"xorm.io/xorm"
)

const driverName = "sqlite"

// insertChunkSize bounds each multi-row INSERT well under SQLite's bound-parameter
// limit (10 columns per row). All chunks of a batch share one transaction.
const insertChunkSize = 500

// SQLiteStore stores option rows in a local SQLite file through xorm.
type SQLiteStore struct {
	engine *xorm.Engine
	path   string
}

// Open connects to the database file at path, creating the file if needed.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	engine, err := xorm.NewEngine(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// One writer; SQLite serializes anyway
	engine.SetMaxOpenConns(1)

	if err := engine.Ping(); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("connecting to database %s: %w", path, err)
	}

	return &SQLiteStore{engine: engine, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// EnsureSchema creates the options table with its (symbol, quote_timestamp) primary key.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.engine.Sync(new(models.OptionRow)); err != nil {
		return fmt.Errorf("syncing options table: %w", err)
	}
	return nil
}

// InsertBatch writes every row inside a single transaction. A primary key
// violation anywhere in the batch rolls back the whole batch.
func (s *SQLiteStore) InsertBatch(ctx context.Context, rows []models.OptionRow) error {
	if len(rows) == 0 {
		return nil
	}

	sample := rows[0]
	fail := func(err error) error {
		return &PersistenceError{Sample: &sample, Rows: len(rows), Err: err}
	}

	session := s.engine.NewSession().Context(ctx)
	defer session.Close()

	if err := session.Begin(); err != nil {
		return fail(err)
	}

	for start := 0; start < len(rows); start += insertChunkSize {
		chunk := rows[start:min(start+insertChunkSize, len(rows))]
		if _, err := session.Insert(&chunk); err != nil {
			_ = session.Rollback()
			return fail(err)
		}
	}

	if err := session.Commit(); err != nil {
		_ = session.Rollback()
		return fail(err)
	}
	return nil
}

// Rows returns all stored rows in insertion order.
func (s *SQLiteStore) Rows(ctx context.Context) ([]models.OptionRow, error) {
	var rows []models.OptionRow
	if err := s.engine.Context(ctx).OrderBy("rowid").Find(&rows); err != nil {
		return nil, fmt.Errorf("reading options: %w", err)
	}
	return rows, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	n, err := s.engine.Context(ctx).Count(new(models.OptionRow))
	if err != nil {
		return 0, fmt.Errorf("counting options: %w", err)
	}
	return n, nil
}

// Version reports the SQLite library version behind the driver.
func (s *SQLiteStore) Version(ctx context.Context) (string, error) {
	res, err := s.engine.Context(ctx).QueryString("SELECT sqlite_version() AS version")
	if err != nil {
		return "", err
	}
	if len(res) == 0 {
		return "", fmt.Errorf("sqlite_version returned no rows")
	}
	return res[0]["version"], nil
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error {
	return s.engine.Close()
}
