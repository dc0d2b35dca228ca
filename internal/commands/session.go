package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/config"
	"github.com/akarpov/vaultkeeper/internal/output"
)

// NewLockCommand creates the lock command
func NewLockCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock a vault",
		Long:  "Destroy the in-memory keys for an account, keeping it registered on the device",
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

			if err := sess.Service.Lock(ctx, account.ID, true); err != nil {
				return err
			}

			fmt.Printf("Vault locked for %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")

	return cmd
}

// NewLogoutCommand creates the logout command
func NewLogoutCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	var (
		accountRef string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out an account",
		Long:  "Remove an account and every key derived for it from this device",
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

			if !force {
				var confirmed bool
				form := huh.NewForm(
					huh.NewGroup(
						huh.NewConfirm().
							Title(fmt.Sprintf("Log out %s?", account.Email)).
							Description("All locally stored keys for this account will be destroyed").
							Value(&confirmed),
					),
				)
				if err := form.Run(); err != nil {
					return fmt.Errorf("cancelled: %w", err)
				}
				if !confirmed {
					return nil
				}
			}

			if err := sess.Service.Logout(ctx, account.ID, true); err != nil {
				return err
			}

			fmt.Printf("Logged out %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "Account id or email (default: active account)")
	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

// NewStatusCommand creates the status command
func NewStatusCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()

			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()

			snapshot, err := sess.Dir.Snapshot(ctx)
			if err != nil {
				return err
			}

			view := &output.StatusView{Accounts: len(snapshot.Accounts), Locked: true}
			if active := snapshot.Active(); active != nil {
				view.ActiveAccount = active.Email
				view.FailedUnlocks = sess.Service.FailedUnlockCount(active.ID)

				locked, lerr := sess.Service.IsLocked(ctx, active.ID)
				if lerr != nil {
					return lerr
				}
				view.Locked = locked
			}

			rendered, err := formatterFor(cfg).Format(view)
			if err != nil {
				return err
			}

			fmt.Print(rendered)
			return nil
		},
	}
}

// NewAccountsCommand creates the accounts command group
func NewAccountsCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account management commands",
	}

	accountsCmd.AddCommand(newAccountsAddCmd(newSession))
	accountsCmd.AddCommand(newAccountsListCmd(getCfg, newSession))
	accountsCmd.AddCommand(newAccountsSwitchCmd(getCfg, newSession))

	return accountsCmd
}

func newAccountsListCmd(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()

			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()

			snapshot, err := sess.Dir.Snapshot(ctx)
			if err != nil {
				return err
			}

			views := make([]output.AccountView, 0, len(snapshot.Accounts))
			for _, account := range snapshot.Accounts {
				views = append(views, accountView(ctx, sess, account, snapshot.ActiveID))
			}

			rendered, err := formatterFor(cfg).FormatList(views)
			if err != nil {
				return err
			}

			fmt.Print(rendered)
			return nil
		},
	}
}

func newAccountsSwitchCmd(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <account>",
		Short: "Switch the active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()

			account, err := resolveAccount(ctx, sess.Dir, args[0])
			if err != nil {
				return err
			}

			if err := sess.Service.SetActive(ctx, account.ID); err != nil {
				return err
			}

			fmt.Printf("Active account is now %s\n", account.Email)
			return nil
		},
	}
}
