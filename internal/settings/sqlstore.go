package settings

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLBackend stores settings in a two column table.
type SQLBackend struct {
	db          *sql.DB
	driver      string
	placeholder func(n int) string
}

func NewSQLiteBackend(connectionString string) (*SQLBackend, error) {
	return newSQLBackend("sqlite", connectionString, func(int) string { return "?" })
}

func NewPostgresBackend(connectionString string) (*SQLBackend, error) {
	return newSQLBackend("postgres", connectionString, func(n int) string { return fmt.Sprintf("$%d", n) })
}

func newSQLBackend(driver, connectionString string, placeholder func(int) string) (*SQLBackend, error) {
	db, err := sql.Open(driver, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	// an in-memory sqlite database only lives as long as its single connection
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	backend := &SQLBackend{
		db:          db,
		driver:      driver,
		placeholder: placeholder,
	}
	if err := backend.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

func (s *SQLBackend) createTable() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

func (s *SQLBackend) LoadAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

func (s *SQLBackend) SaveAll(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after a successful commit
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM settings"); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT INTO settings (key, value) VALUES (%s, %s)", s.placeholder(1), s.placeholder(2))
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, insert, key, value); err != nil {
			return fmt.Errorf("failed to write setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
