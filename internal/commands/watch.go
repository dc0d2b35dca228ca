package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/config"
)

// NewWatchCommand creates the watch command, a foreground session-timeout
// enforcer.
func NewWatchCommand(getCfg func() *config.Config, newSession SessionFactory) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the session-timeout enforcer",
		Long:  "Periodically check every account's idle time and lock or log out timed-out sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()
			if interval == 0 {
				interval = cfg.CheckInterval
			}

			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sess.Service.EnforceRestartTimeouts(ctx); err != nil {
				return err
			}

			logrus.Infof("Watching sessions every %s", interval)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					err := sess.Service.CheckSessionTimeouts(ctx, func(accountID string) {
						fmt.Printf("Active account %s has timed out\n", accountID)
					})
					if err != nil && ctx.Err() == nil {
						logrus.WithError(err).Warn("Session-timeout pass failed")
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Check interval (default: from config)")

	return cmd
}
