package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/apilogin/pkg/storage"
)

// PluginName is the plugin column value under which bridge settings are stored
const PluginName = "auth_apilogin"

// SQLSettings reads settings from the host application's config tables
type SQLSettings struct {
	db *storage.DB
}

// NewSQLSettings creates a settings reader over db
func NewSQLSettings(db *storage.DB) *SQLSettings {
	return &SQLSettings{db: db}
}

// Load reads plugin and site settings
func (s *SQLSettings) Load(ctx context.Context) (*Settings, error) {
	values := make(map[string]string)

	n, err := s.collect(ctx, values,
		"SELECT name, value FROM config_plugins WHERE plugin = $1", PluginName)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin settings: %w", err)
	}
	if n == 0 {
		return nil, ErrNoSettings
	}

	placeholders := make([]string, len(SiteKeys))
	args := make([]interface{}, len(SiteKeys))
	for i, key := range SiteKeys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = key
	}
	siteQuery := fmt.Sprintf("SELECT name, value FROM config WHERE name IN (%s)", strings.Join(placeholders, ", "))
	if _, err := s.collect(ctx, values, siteQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to load site settings: %w", err)
	}

	return FromMap(values)
}

// Save upserts plugin settings
func (s *SQLSettings) Save(ctx context.Context, values map[string]string) error {
	return s.upsert(ctx, `
		INSERT INTO config_plugins (plugin, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (plugin, name) DO UPDATE SET value = excluded.value
	`, values, PluginName)
}

// SaveSite upserts host site settings such as wwwroot and siteadmins
func (s *SQLSettings) SaveSite(ctx context.Context, values map[string]string) error {
	return s.upsert(ctx, `
		INSERT INTO config (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`, values)
}

// upsert runs query once per name/value pair, after any leading args
func (s *SQLSettings) upsert(ctx context.Context, query string, values map[string]string, leading ...interface{}) error {
	query = s.db.Rebind(query)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for name, value := range values {
		args := append(append([]interface{}{}, leading...), name, value)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}

func (s *SQLSettings) collect(ctx context.Context, into map[string]string, query string, args ...interface{}) (int, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return n, err
		}
		into[name] = value
		n++
	}
	return n, rows.Err()
}

// Schema returns the DDL creating the settings tables
func Schema(driver storage.Driver) []string {
	id := "id BIGSERIAL PRIMARY KEY"
	if driver == storage.DriverSQLite {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS config_plugins (
	%s,
	plugin VARCHAR(100) NOT NULL DEFAULT 'core',
	name VARCHAR(100) NOT NULL,
	value TEXT NOT NULL
)`, id),
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_config_plugins_plugin_name ON config_plugins (plugin, name)",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS config (
	%s,
	name VARCHAR(255) NOT NULL,
	value TEXT NOT NULL
)`, id),
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_config_name ON config (name)",
	}
}
