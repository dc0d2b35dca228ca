package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Register SQLite driver for database/sql
	_ "modernc.org/sqlite"

	"github.com/akarpov/vaultkeeper/internal/crypto"
)

// SQLiteDirectory is a Directory backed by a local SQLite database.
type SQLiteDirectory struct {
	db *sql.DB
}

func NewSQLiteDirectory(dbPath string) (*SQLiteDirectory, error) {
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

	d := &SQLiteDirectory{db: db}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return d, nil
}

func (d *SQLiteDirectory) migrate() error {
	ctx := context.Background()
	tx, err := d.db.BeginTx(ctx, nil)
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
				createAccountsTableSQL,
				createAccountsEmailIndexSQL,
				createAppStateTableSQL,
				seedAppStateSQL,
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

// bundleColumns flattens the serialized parts of a key bundle.
type bundleColumns struct {
	orgKeys        sql.NullString
	keypairPublic  []byte
	keypairWrapped []byte
}

func encodeBundle(b *KeyBundle) (bundleColumns, error) {
	var cols bundleColumns

	if len(b.OrgKeys) > 0 {
		raw, err := json.Marshal(b.OrgKeys)
		if err != nil {
			return cols, fmt.Errorf("failed to marshal org keys: %w", err)
		}
		cols.orgKeys = sql.NullString{String: string(raw), Valid: true}
	}

	if b.KeyPair != nil {
		cols.keypairPublic = b.KeyPair.PublicKey
		cols.keypairWrapped = b.KeyPair.WrappedPrivateKey
	}

	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(scanner rowScanner) (*Account, error) {
	account := &Account{}
	var (
		name     sql.NullString
		orgKeys  sql.NullString
		kpPublic []byte
		kpWrap   []byte
	)

	err := scanner.Scan(
		&account.ID, &account.Email, &name,
		&account.KDF.Algorithm, &account.KDF.Iterations, &account.KDF.Memory, &account.KDF.Parallelism, &account.KDFSalt,
		&account.Decryption.HasMasterPassword, &account.Decryption.KeyConnectorURL, &account.Decryption.TrustedDevice,
		&account.Bundle.EncryptedPrivateKey, &account.Bundle.EncryptedUserKey, &account.Bundle.EncryptedPIN,
		&orgKeys, &kpPublic, &kpWrap,
		&account.Timeout, &account.TimeoutAction, &account.RequirePasswordOnRestart,
		&account.ManuallyLocked, &account.Authenticated, &account.AccessToken, &account.RefreshToken,
		&account.LastActiveAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Name = name.String

	if orgKeys.Valid && orgKeys.String != "" {
		if err := json.Unmarshal([]byte(orgKeys.String), &account.Bundle.OrgKeys); err != nil {
			return nil, fmt.Errorf("failed to unmarshal org keys: %w", err)
		}
	}
	if len(kpPublic) > 0 || len(kpWrap) > 0 {
		account.Bundle.KeyPair = &KeyPairRecord{PublicKey: kpPublic, WrappedPrivateKey: kpWrap}
	}

	return account, nil
}

func (d *SQLiteDirectory) Create(ctx context.Context, account *Account) error {
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}
	if account.LastActiveAt.IsZero() {
		account.LastActiveAt = now
	}
	if account.KDF.Algorithm == "" {
		account.KDF = crypto.DefaultKDFConfig()
	}
	if account.TimeoutAction == "" {
		account.TimeoutAction = TimeoutActionLock
	}

	cols, err := encodeBundle(&account.Bundle)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (` + accountColumnsSQL + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Name,
		account.KDF.Algorithm, account.KDF.Iterations, account.KDF.Memory, account.KDF.Parallelism, account.KDFSalt,
		account.Decryption.HasMasterPassword, account.Decryption.KeyConnectorURL, account.Decryption.TrustedDevice,
		account.Bundle.EncryptedPrivateKey, account.Bundle.EncryptedUserKey, account.Bundle.EncryptedPIN,
		cols.orgKeys, cols.keypairPublic, cols.keypairWrapped,
		account.Timeout, account.TimeoutAction, account.RequirePasswordOnRestart,
		account.ManuallyLocked, account.Authenticated, account.AccessToken, account.RefreshToken,
		account.LastActiveAt, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (d *SQLiteDirectory) Get(ctx context.Context, id string) (*Account, error) {
	query := `SELECT ` + accountColumnsSQL + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (d *SQLiteDirectory) List(ctx context.Context) ([]*Account, error) {
	return d.list(ctx, d.db.QueryContext)
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (d *SQLiteDirectory) list(ctx context.Context, query queryFunc) ([]*Account, error) {
	rows, err := query(ctx, `SELECT `+accountColumnsSQL+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (d *SQLiteDirectory) Update(ctx context.Context, account *Account) error {
	account.UpdatedAt = time.Now()

	cols, err := encodeBundle(&account.Bundle)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET email = ?, name = ?,
		    kdf_algorithm = ?, kdf_iterations = ?, kdf_memory = ?, kdf_parallelism = ?, kdf_salt = ?,
		    has_master_password = ?, key_connector_url = ?, trusted_device = ?,
		    enc_private_key = ?, enc_user_key = ?, enc_pin = ?, org_keys = ?, keypair_public = ?, keypair_wrapped_private = ?,
		    timeout = ?, timeout_action = ?, require_password_on_restart = ?,
		    manually_locked = ?, authenticated = ?, access_token = ?, refresh_token = ?,
		    last_active_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query,
		account.Email, account.Name,
		account.KDF.Algorithm, account.KDF.Iterations, account.KDF.Memory, account.KDF.Parallelism, account.KDFSalt,
		account.Decryption.HasMasterPassword, account.Decryption.KeyConnectorURL, account.Decryption.TrustedDevice,
		account.Bundle.EncryptedPrivateKey, account.Bundle.EncryptedUserKey, account.Bundle.EncryptedPIN,
		cols.orgKeys, cols.keypairPublic, cols.keypairWrapped,
		account.Timeout, account.TimeoutAction, account.RequirePasswordOnRestart,
		account.ManuallyLocked, account.Authenticated, account.AccessToken, account.RefreshToken,
		account.LastActiveAt, account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	return checkRowsAffected(result, account.ID)
}

func (d *SQLiteDirectory) Delete(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear the active pointer if it references the deleted account
	if _, err := tx.ExecContext(ctx,
		`UPDATE app_state SET active_account_id = '' WHERE id = 1 AND active_account_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear active pointer: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := checkRowsAffected(result, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (d *SQLiteDirectory) ActiveID(ctx context.Context) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `SELECT active_account_id FROM app_state WHERE id = 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read active account: %w", err)
	}

	return id, nil
}

func (d *SQLiteDirectory) SetActive(ctx context.Context, id string) error {
	if id != "" {
		if _, err := d.Get(ctx, id); err != nil {
			return err
		}
	}

	if _, err := d.db.ExecContext(ctx,
		`UPDATE app_state SET active_account_id = ? WHERE id = 1`, id); err != nil {
		return fmt.Errorf("failed to set active account: %w", err)
	}

	return nil
}

func (d *SQLiteDirectory) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	accounts, err := d.list(ctx, tx.QueryContext)
	if err != nil {
		return nil, err
	}

	var activeID string
	if err := tx.QueryRowContext(ctx, `SELECT active_account_id FROM app_state WHERE id = 1`).Scan(&activeID); err != nil {
		return nil, fmt.Errorf("failed to read active account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &Snapshot{Accounts: accounts, ActiveID: activeID}, nil
}

func (d *SQLiteDirectory) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE accounts SET last_active_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch account: %w", err)
	}

	return checkRowsAffected(result, id)
}

func (d *SQLiteDirectory) Close() error {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	return nil
}

func checkRowsAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	return nil
}
