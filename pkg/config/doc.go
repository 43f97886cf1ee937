// Package config provides process configuration and the durable login bridge settings.
//
// # Process configuration
//
// LoadConfig reads environment variables with sensible defaults and validates
// the result:
//
//	APILOGIN_HOST="0.0.0.0"
//	APILOGIN_PORT="8080"
//	APILOGIN_HEALTH_PORT="9090"
//	APILOGIN_DB_DRIVER="postgres"          # postgres or sqlite3
//	APILOGIN_DB_URL="postgres://localhost/learn?sslmode=disable"
//	APILOGIN_TOKEN_BACKEND="sql"           # sql or redis
//	APILOGIN_REDIS_URL="redis://localhost:6379/0"
//	APILOGIN_PURGE_SCHEDULE="*/15 * * * *" # empty disables purging
//	APILOGIN_SETTINGS_SOURCE="sql"         # sql or file
//	APILOGIN_SETTINGS_FILE="/etc/apilogin/settings.yaml"
//	APILOGIN_LOG_LEVEL="info"
//	APILOGIN_OTEL_ENABLED="false"
//
// # Durable settings
//
// Settings are the values an administrator manages: the shared api key, the
// caller IP allow-list, redirects and the host site's guest and admin
// accounts. They are loaded through a SettingsReader on every request and are
// never cached, so a changed key or allow-list applies to the next request.
//
//	reader := config.NewSQLSettings(db)                           // config_plugins + config tables
//	reader := config.NewFileSettings("/etc/apilogin/settings.yaml") // YAML
//
// Loading fails when no api key is configured.
package config
