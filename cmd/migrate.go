/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"time"

	"github.com/mautops/dispatch-gin/internal/api"
	"github.com/mautops/dispatch-gin/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateRetries int

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the SQL schema",
	Long: `Create or update the users, tasks, events and audit_logs tables
together with the worker and event indexes.

Only the sql task store keeps tasks in these tables. The firebase and
firestore stores still use them for accounts, events and audit logs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		if err := api.ConfigureLogger(&cfg.Log); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}

		log := logrus.WithField("driver", cfg.Database.Driver)
		db, err := database.ConnectWithRetry(cfg.Database, migrateRetries, 2*time.Second)
		if err != nil {
			return err
		}
		defer database.Close(db)

		start := time.Now()
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.WithField("elapsed", time.Since(start).String()).Info("schema is up to date")
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateRetries, "retries", 1, "connection attempts before giving up")
	rootCmd.AddCommand(migrateCmd)
}
