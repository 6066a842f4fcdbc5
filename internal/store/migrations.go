package store

import (
	"context"
	"fmt"
)

// Every statement is idempotent so Migrate can run on each start.

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		"key" TEXT NOT NULL,
		client_name TEXT NOT NULL,
		deactivated_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS index_api_keys_on_key ON api_keys ("key")`,
	`CREATE UNIQUE INDEX IF NOT EXISTS index_api_keys_on_client_name ON api_keys (client_name)
		WHERE deactivated_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS widget_statuses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS widgets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		widget_status_id INTEGER NOT NULL REFERENCES widget_statuses(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS widget_ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		widget_id INTEGER NOT NULL REFERENCES widgets(id),
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS index_widget_ratings_on_widget_id ON widget_ratings (widget_id)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		key TEXT NOT NULL,
		client_name TEXT NOT NULL,
		deactivated_at TIMESTAMP(6),
		created_at TIMESTAMP(6) NOT NULL
	)`,
	`COMMENT ON TABLE api_keys IS 'Holds all API keys for access to the API'`,
	`COMMENT ON COLUMN api_keys.key IS 'The actual key clients should use'`,
	`COMMENT ON COLUMN api_keys.client_name IS 'Name of the client who was assigned this key'`,
	`COMMENT ON COLUMN api_keys.deactivated_at IS 'When the key was deactivated. When present, this key is not valid.'`,
	`COMMENT ON COLUMN api_keys.created_at IS 'When this key was created'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS index_api_keys_on_key ON api_keys (key)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS index_api_keys_on_client_name ON api_keys (client_name)
		WHERE deactivated_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS widget_statuses (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS widgets (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		price_cents BIGINT NOT NULL,
		widget_status_id BIGINT NOT NULL REFERENCES widget_statuses(id),
		created_at TIMESTAMP(6) NOT NULL,
		updated_at TIMESTAMP(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS widget_ratings (
		id BIGSERIAL PRIMARY KEY,
		widget_id BIGINT NOT NULL REFERENCES widgets(id),
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		created_at TIMESTAMP(6) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS index_widget_ratings_on_widget_id ON widget_ratings (widget_id)`,
}

// MySQL has no partial indexes. The generated column is NULL for deactivated
// rows, and NULLs never collide in a unique index. Key and client columns use
// a binary collation so lookups and uniqueness are case-sensitive.
var mysqlMigrations = []string{
	"CREATE TABLE IF NOT EXISTS api_keys (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY, " +
		"`key` VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL COMMENT 'The actual key clients should use', " +
		"client_name VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL COMMENT 'Name of the client who was assigned this key', " +
		"deactivated_at DATETIME(6) NULL COMMENT 'When the key was deactivated. When present, this key is not valid.', " +
		"created_at DATETIME(6) NOT NULL COMMENT 'When this key was created', " +
		"active_client_name VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin AS (IF(deactivated_at IS NULL, client_name, NULL)) STORED, " +
		"UNIQUE KEY index_api_keys_on_key (`key`), " +
		"UNIQUE KEY index_api_keys_on_client_name (active_client_name)" +
		") COMMENT='Holds all API keys for access to the API'",

	`CREATE TABLE IF NOT EXISTS widget_statuses (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		UNIQUE KEY index_widget_statuses_on_name (name)
	)`,
	`CREATE TABLE IF NOT EXISTS widgets (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price_cents BIGINT NOT NULL,
		widget_status_id BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		FOREIGN KEY (widget_status_id) REFERENCES widget_statuses(id)
	)`,
	`CREATE TABLE IF NOT EXISTS widget_ratings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		widget_id BIGINT NOT NULL,
		rating INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX index_widget_ratings_on_widget_id (widget_id),
		FOREIGN KEY (widget_id) REFERENCES widgets(id)
	)`,
}

// Binary collation keeps key and client comparisons case-sensitive. SQL Server
// still ignores trailing spaces in equality, which APIKey.Validate rules out.
var mssqlMigrations = []string{
	`IF OBJECT_ID(N'api_keys', N'U') IS NULL
	CREATE TABLE api_keys (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		[key] NVARCHAR(255) COLLATE Latin1_General_100_BIN2 NOT NULL,
		client_name NVARCHAR(255) COLLATE Latin1_General_100_BIN2 NOT NULL,
		deactivated_at DATETIME2(6) NULL,
		created_at DATETIME2(6) NOT NULL
	)`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'index_api_keys_on_key')
	CREATE UNIQUE INDEX index_api_keys_on_key ON api_keys ([key])`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'index_api_keys_on_client_name')
	CREATE UNIQUE INDEX index_api_keys_on_client_name ON api_keys (client_name)
		WHERE deactivated_at IS NULL`,

	`IF OBJECT_ID(N'widget_statuses', N'U') IS NULL
	CREATE TABLE widget_statuses (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(255) NOT NULL CONSTRAINT index_widget_statuses_on_name UNIQUE
	)`,
	`IF OBJECT_ID(N'widgets', N'U') IS NULL
	CREATE TABLE widgets (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(255) NOT NULL,
		price_cents BIGINT NOT NULL,
		widget_status_id BIGINT NOT NULL REFERENCES widget_statuses(id),
		created_at DATETIME2(6) NOT NULL,
		updated_at DATETIME2(6) NOT NULL
	)`,
	`IF OBJECT_ID(N'widget_ratings', N'U') IS NULL
	CREATE TABLE widget_ratings (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		widget_id BIGINT NOT NULL REFERENCES widgets(id),
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		created_at DATETIME2(6) NOT NULL
	)`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'index_widget_ratings_on_widget_id')
	CREATE INDEX index_widget_ratings_on_widget_id ON widget_ratings (widget_id)`,
}

// Migrate applies the dialect's schema. It is safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range s.dialect.migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
