package keystore

// Schema definitions for the SQLite credential store

const (
	createSecretsTableSQL = `
		CREATE TABLE IF NOT EXISTS secrets (
			account_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (account_id, kind)
		);
	`

	createSecretsAccountIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_secrets_account ON secrets(account_id);
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
)
