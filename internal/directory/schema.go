package directory

// Schema definitions for the SQLite account directory

const (
	createAccountsTableSQL = `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT,
			kdf_algorithm TEXT NOT NULL,
			kdf_iterations INTEGER NOT NULL,
			kdf_memory INTEGER NOT NULL DEFAULT 0,
			kdf_parallelism INTEGER NOT NULL DEFAULT 0,
			kdf_salt BLOB,
			has_master_password BOOLEAN NOT NULL DEFAULT 0,
			key_connector_url TEXT NOT NULL DEFAULT '',
			trusted_device BOOLEAN NOT NULL DEFAULT 0,
			enc_private_key BLOB,
			enc_user_key BLOB,
			enc_pin BLOB,
			org_keys TEXT,
			keypair_public BLOB,
			keypair_wrapped_private BLOB,
			timeout INTEGER NOT NULL DEFAULT 15,
			timeout_action TEXT NOT NULL DEFAULT 'lock',
			require_password_on_restart BOOLEAN NOT NULL DEFAULT 0,
			manually_locked BOOLEAN NOT NULL DEFAULT 0,
			authenticated BOOLEAN NOT NULL DEFAULT 0,
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			last_active_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	createAccountsEmailIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
	`

	createAppStateTableSQL = `
		CREATE TABLE IF NOT EXISTS app_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			active_account_id TEXT NOT NULL DEFAULT ''
		);
	`

	seedAppStateSQL = `
		INSERT OR IGNORE INTO app_state (id, active_account_id) VALUES (1, '');
	`

	createSchemaMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	insertMigrationSQL = `
		INSERT INTO schema_migrations (version) VALUES (?);
	`

	getCurrentVersionSQL = `
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations;
	`

	accountColumnsSQL = `
		id, email, name, kdf_algorithm, kdf_iterations, kdf_memory, kdf_parallelism, kdf_salt,
		has_master_password, key_connector_url, trusted_device,
		enc_private_key, enc_user_key, enc_pin, org_keys, keypair_public, keypair_wrapped_private,
		timeout, timeout_action, require_password_on_restart,
		manually_locked, authenticated, access_token, refresh_token,
		last_active_at, created_at, updated_at
	`
)
