package main

import (
	"errors"
	"fmt"

	"procureflow/internal/config"
	"procureflow/internal/stores/postgres"
	"procureflow/internal/users"

	"github.com/spf13/cobra"
)

func newCreateAdminCmd(load func() (config.Config, error)) *cobra.Command {
	var nu users.NewUser
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an account with the admin role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := postgres.OpenDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			store, err := users.NewConf(db)
			if err != nil {
				return err
			}
			// Creating an account never issues a token, so no signing keys are needed.
			u, err := users.NewService(store, nil).CreateAdmin(cmd.Context(), nu)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.Name, "name", "", "display name")
	cmd.Flags().StringVar(&nu.Email, "email", "", "login email")
	cmd.Flags().StringVar(&nu.Password, "password", "", "password, at least 8 characters")
	cmd.PreRunE = func(*cobra.Command, []string) error {
		if nu.Email == "" || nu.Password == "" {
			return errors.New("--email and --password are required")
		}
		if nu.Name == "" {
			nu.Name = nu.Email
		}
		return nil
	}
	return cmd
}
