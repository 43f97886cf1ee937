package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/apilogin/pkg/tokens"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired login tokens once",
	Long: `Delete every login token whose expiry has passed and exit.

Use this from an external scheduler when APILOGIN_PURGE_SCHEDULE is empty.`,
	RunE: runPurge,
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := openBackends(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := tokens.NewPurger(b.tokens, logger).RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired login token(s)\n", n)
	return nil
}
