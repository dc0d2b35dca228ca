package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/vault"
)

func newAccountsAddCmd(newSession SessionFactory) *cobra.Command {
	var accessToken string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an account on this device",
		Long:  "Register an account with freshly generated key material, wrapped by the master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			var email, password, confirmPassword string

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Email").
						Value(&email).
						Validate(func(s string) error {
							if len(s) < 3 {
								return fmt.Errorf("email must be at least 3 characters")
							}
							return nil
						}),

					huh.NewInput().
						Title("Master Password").
						Description("This password protects all keys for the account").
						Value(&password).
						EchoMode(huh.EchoModePassword).
						Validate(func(s string) error {
							if len(s) < 8 {
								return fmt.Errorf("password must be at least 8 characters")
							}
							return nil
						}),

					huh.NewInput().
						Title("Confirm Password").
						Value(&confirmPassword).
						EchoMode(huh.EchoModePassword).
						Validate(func(s string) error {
							if s != password {
								return fmt.Errorf("passwords do not match")
							}
							return nil
						}),
				),
			)

			if err := form.Run(); err != nil {
				return fmt.Errorf("cancelled: %w", err)
			}

			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			account, err := sess.Service.RegisterAccount(cmd.Context(), vault.NewAccountParams{
				Email:       email,
				Password:    password,
				AccessToken: accessToken,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Registered %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accessToken, "token", "", "Access token issued for the account")

	return cmd
}
