package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/storage"
	"github.com/platinummonkey/apilogin/pkg/tokens"
	"github.com/platinummonkey/apilogin/pkg/users"
)

// backends are the stores shared by every server-side command
type backends struct {
	db       *storage.DB
	redis    *redis.Client
	tokens   tokens.Store
	users    users.Store
	settings config.SettingsReader
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}

// loadConfig reads the process configuration and applies flag overrides
func loadConfig() (*config.Config, *observability.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = config.ParseLogLevel(logLevel)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	return cfg, logger, nil
}

// openBackends connects the database and, when configured, Redis
func openBackends(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*backends, error) {
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	b := &backends{
		db:    db,
		users: users.NewSQLStore(db),
	}
	logger.WithField("driver", db.Driver).Info("Database connected")

	switch cfg.Tokens.Backend {
	case config.TokenBackendRedis:
		client, err := storage.OpenRedis(ctx, cfg.Tokens.Redis)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = client
		b.tokens = tokens.NewRedisStore(client)
		logger.Info("Redis token store connected")
	default:
		b.tokens = tokens.NewSQLStore(db)
	}

	switch cfg.Settings.Source {
	case config.SettingsSourceFile:
		b.settings = config.NewFileSettings(cfg.Settings.File)
	default:
		b.settings = config.NewSQLSettings(db)
	}

	return b, nil
}

// schema returns every table the bridge needs for the driver
func schema(driver storage.Driver) []string {
	var ddl []string
	ddl = append(ddl, users.Schema(driver)...)
	ddl = append(ddl, tokens.Schema(driver)...)
	ddl = append(ddl, config.Schema(driver)...)
	return ddl
}

func mustNotBeEmpty(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
