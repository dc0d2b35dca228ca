package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Register SQLite driver for database/sql
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite database. The database
// file carries the at-rest protection of the platform keychain it stands in
// for, so callers treat it as the secure credential store boundary.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err = db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createSchemaMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int
	err = tx.QueryRowContext(ctx, getCurrentVersionSQL).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     []string
	}{
		{
			version: 1,
			sql: []string{
				createSecretsTableSQL,
				createSecretsAccountIndexSQL,
			},
		},
	}

	for _, migration := range migrations {
		if currentVersion >= migration.version {
			continue
		}

		for _, statement := range migration.sql {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.version, err)
			}
		}

		if _, err := tx.ExecContext(ctx, insertMigrationSQL, migration.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, accountID string, kind Kind) ([]byte, error) {
	query := `SELECT data FROM secrets WHERE account_id = ? AND kind = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, accountID, kind).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, accountID, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	return data, nil
}

func (s *SQLiteStore) Set(ctx context.Context, accountID string, kind Kind, data []byte) error {
	query := `
		INSERT INTO secrets (account_id, kind, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, accountID, kind, data, now, now); err != nil {
		return fmt.Errorf("failed to set secret: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, accountID string, kind Kind) error {
	query := `DELETE FROM secrets WHERE account_id = ? AND kind = ?`

	if _, err := s.db.ExecContext(ctx, query, accountID, kind); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, accountID string) error {
	query := `DELETE FROM secrets WHERE account_id = ?`

	if _, err := s.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete account secrets: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Has(ctx context.Context, accountID string, kind Kind) (bool, error) {
	query := `SELECT 1 FROM secrets WHERE account_id = ? AND kind = ?`

	var one int
	err := s.db.QueryRowContext(ctx, query, accountID, kind).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check secret: %w", err)
	}

	return true, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	return nil
}
