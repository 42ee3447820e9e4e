/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"

	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/database"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/spf13/cobra"
)

// userCmd represents the user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

// userCreateCmd creates a user directly in the database
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a worker or administrator account",
	Long: `Create a user account without going through the HTTP API.
Use --admin to create the first administrator of a fresh installation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}

		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		admin, _ := cmd.Flags().GetBool("admin")

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		userType := model.UserTypeWorker
		if admin {
			userType = model.UserTypeAdmin
		}
		users := service.NewUserService(repository.NewUserRepository(db), auth.NewTokenManager(cfg.Auth), cfg.Media)
		user, err := users.Register(cmd.Context(), &service.RegisterRequest{
			Username: username,
			Password: password,
			UserType: userType,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", user.UserType, user.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().String("username", "", "Username")
	userCreateCmd.Flags().String("password", "", "Password (at least 6 characters)")
	userCreateCmd.Flags().Bool("admin", false, "Create an administrator instead of a worker")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")
}
