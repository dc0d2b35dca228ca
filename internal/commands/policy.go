package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/config"
	"github.com/akarpov/vaultkeeper/internal/directory"
)

// NewTimeoutCommand creates the timeout command
func NewTimeoutCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	var (
		accountRef string
		action     string
	)

	cmd := &cobra.Command{
		Use:   "timeout <minutes|never|on-restart|immediately>",
		Short: "Set the session-timeout policy",
		Long:  "Set how long an account may stay idle before its session times out, and what happens then",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := parseTimeout(args[0])
			if err != nil {
				return err
			}

			timeoutAction := directory.TimeoutAction(action)
			switch timeoutAction {
			case directory.TimeoutActionLock, directory.TimeoutActionLogout:
			default:
				return fmt.Errorf("invalid action %q, must be lock or logout", action)
			}

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

			if err := sess.Service.SetTimeoutPolicy(ctx, account.ID, timeout, timeoutAction); err != nil {
				return err
			}

			fmt.Printf("Timeout for %s set to %s (%s)\n", account.Email, timeoutLabel(timeout), timeoutAction)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")
	cmd.Flags().StringVar(&action, "action", "lock", "Timeout action (lock, logout)")

	return cmd
}

func parseTimeout(value string) (directory.Timeout, error) {
	switch value {
	case "never":
		return directory.TimeoutNever, nil
	case "on-restart":
		return directory.TimeoutOnAppRestart, nil
	case "immediately":
		return directory.TimeoutImmediately, nil
	}

	minutes, err := strconv.Atoi(value)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("invalid timeout %q, expected minutes or never/on-restart/immediately", value)
	}

	return directory.Timeout(minutes), nil
}

// NewPINCommand creates the pin command group
func NewPINCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "PIN unlock commands",
	}

	pinCmd.AddCommand(newPINSetCmd(newSession))
	pinCmd.AddCommand(newPINChangeCmd(newSession))
	pinCmd.AddCommand(newPINClearCmd(newSession))

	return pinCmd
}

func newPINSetCmd(newSession SessionFactory) *cobra.Command {
	var (
		accountRef       string
		requireOnRestart bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Enable PIN unlock",
		Long:  "Enable PIN unlock for an unlocked account",
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

			pin, err := promptSecret("PIN", "Short code for quick unlock on this device")
			if err != nil {
				return err
			}

			if err := sess.Service.SetPIN(ctx, account.ID, pin, requireOnRestart); err != nil {
				return err
			}

			fmt.Printf("PIN unlock enabled for %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")
	cmd.Flags().BoolVar(&requireOnRestart, "require-password-on-restart", false, "Require the master password once per app start before PIN unlock works")

	return cmd
}

func newPINChangeCmd(newSession SessionFactory) *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "change",
		Short: "Change the PIN",
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

			pin, err := promptSecret("New PIN", "")
			if err != nil {
				return err
			}

			if err := sess.Service.ChangePIN(ctx, account.ID, pin); err != nil {
				return err
			}

			fmt.Printf("PIN changed for %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")

	return cmd
}

func newPINClearCmd(newSession SessionFactory) *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Disable PIN unlock",
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

			if err := sess.Service.ClearPIN(ctx, account.ID); err != nil {
				return err
			}

			fmt.Printf("PIN unlock disabled for %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")

	return cmd
}

// NewBiometricsCommand creates the biometrics command
func NewBiometricsCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "biometrics <on|off>",
		Short: "Enable or disable biometric unlock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

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

			if err := sess.Service.SetBiometrics(ctx, account.ID, enabled); err != nil {
				return err
			}

			if enabled {
				fmt.Printf("Biometric unlock enabled for %s\n", account.Email)
			} else {
				fmt.Printf("Biometric unlock disabled for %s\n", account.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")

	return cmd
}
