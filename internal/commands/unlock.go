package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/config"
)

// NewUnlockCommand creates the unlock command
func NewUnlockCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	var (
		accountRef string
		method     string
	)

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock a vault",
		Long:  "Unlock an account's vault with the master password, PIN, or a device-held key",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()

			account, err := resolveAccount(ctx, sess.Dir, accountRef)
			if err != nil {
				return err
			}

			logrus.Debugf("Unlocking account %s with method %s", account.Email, method)

			switch method {
			case "password":
				password, perr := promptSecret("Master Password", "Unlocks the vault for "+account.Email)
				if perr != nil {
					return perr
				}
				err = sess.Service.UnlockWithPassword(ctx, account.ID, password)
			case "pin":
				pin, perr := promptSecret("PIN", "")
				if perr != nil {
					return perr
				}
				err = sess.Service.UnlockWithPIN(ctx, account.ID, pin)
			case "biometrics":
				err = sess.Service.UnlockWithBiometrics(ctx, account.ID)
			case "device":
				err = sess.Service.UnlockWithDeviceKey(ctx, account.ID)
			case "never-lock":
				err = sess.Service.UnlockWithNeverLockKey(ctx, account.ID)
			case "key-connector":
				err = sess.Service.UnlockWithKeyConnector(ctx, account.ID)
			case "authenticator":
				err = sess.Service.UnlockWithAuthenticatorVaultKey(ctx, account.ID)
			default:
				return fmt.Errorf("unknown unlock method %q", method)
			}

			if err != nil {
				return friendlyUnlockError(err)
			}

			fmt.Printf("Vault unlocked for %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")
	cmd.Flags().StringVar(&method, "method", "password", "Unlock method (password, pin, biometrics, device, never-lock, key-connector, authenticator)")

	return cmd
}

// promptSecret asks for a hidden value via an interactive form.
func promptSecret(title, description string) (string, error) {
	var value string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(description).
				Value(&value).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("%s must not be empty", title)
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("cancelled: %w", err)
	}

	return value, nil
}
