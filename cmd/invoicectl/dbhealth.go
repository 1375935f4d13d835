package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-intake/internal/repository"
)

var dbhealthMigrate bool

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Ping the database and report pattern and correction counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.HealthCheck(ctx, 2*time.Second); err != nil {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "DB health: FAIL (%v)\n", err)
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "DB health: OK")

		if dbhealthMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema: migrated")
		}

		patterns, err := repository.NewPatternRepository(db, logger).ListPatterns(ctx)
		if err != nil {
			return err
		}
		recent, err := repository.NewCorrectionRepository(db, logger).ListRecentCorrections(ctx, 1)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "patterns: %d\n", len(patterns))
		if len(recent) > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "last correction: %s (%s)\n",
				recent[0].CreatedAt.UTC().Format(time.RFC3339), recent[0].Kind)
		} else {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "last correction: none")
		}
		return nil
	},
}

func init() {
	dbhealthCmd.Flags().BoolVar(&dbhealthMigrate, "migrate", false, "apply the schema before counting")
	rootCmd.AddCommand(dbhealthCmd)
}
