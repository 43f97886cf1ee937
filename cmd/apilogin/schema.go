package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/storage"
)

var (
	seedSettings bool
	seedWWWRoot  string
	seedAllowIPs []string
	seedAPIKey   string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the database tables",
	Long: `Create the user, login token and settings tables if they do not exist.

With --seed the plugin settings are written too. A random api key is
generated unless --api-key is given, and printed so it can be shared with
the external application.`,
	Example: `  # Create tables only
  apilogin schema

  # Create tables and configure the bridge
  apilogin schema --seed --wwwroot https://learn.example.com --allow-ip 10.0.0.5`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&seedSettings, "seed", false, "Write initial plugin settings")
	schemaCmd.Flags().StringVar(&seedWWWRoot, "wwwroot", "", "Public site root URL (with --seed)")
	schemaCmd.Flags().StringSliceVar(&seedAllowIPs, "allow-ip", nil, "Caller address allowed to use the service endpoint (repeatable)")
	schemaCmd.Flags().StringVar(&seedAPIKey, "api-key", "", "Shared api key (generated when empty)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.ApplySchema(ctx, db, schema(db.Driver)...); err != nil {
		return err
	}
	logger.WithField("driver", db.Driver).Info("Schema applied")

	if !seedSettings {
		return nil
	}
	if err := mustNotBeEmpty("wwwroot", seedWWWRoot); err != nil {
		return err
	}

	key := seedAPIKey
	if key == "" {
		if key, err = config.GenerateAPIKey(); err != nil {
			return err
		}
	}

	settings := config.NewSQLSettings(db)
	if err := settings.Save(ctx, seedValues(key, seedAllowIPs)); err != nil {
		return err
	}
	if err := settings.SaveSite(ctx, map[string]string{
		config.KeyWWWRoot: strings.TrimRight(seedWWWRoot, "/"),
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "API key: %s\n", key)
	return nil
}

// seedValues builds the plugin settings written by --seed
func seedValues(key string, allowIPs []string) map[string]string {
	return map[string]string{
		config.KeyAPIKey:      key,
		config.KeyAllowIPAddr: strings.Join(allowIPs, ","),
	}
}
