package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/commands"
	"github.com/akarpov/vaultkeeper/internal/config"
	"github.com/akarpov/vaultkeeper/internal/directory"
	"github.com/akarpov/vaultkeeper/internal/engine"
	"github.com/akarpov/vaultkeeper/internal/keyconnector"
	"github.com/akarpov/vaultkeeper/internal/keystore"
	"github.com/akarpov/vaultkeeper/internal/vault"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	cfg *config.Config

	configPath string
	verbose    bool
	format     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vaultkeeper",
	Short: "Vaultkeeper - multi-account vault session manager",
	Long: `Vaultkeeper manages the unlock state of end-to-end encrypted vaults
for multiple accounts on one device: master password, PIN, biometric,
and trusted-device unlock, with per-account session-timeout policies.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = verbose
		}
		if cmd.Flags().Changed("format") {
			cfg.Format = format
		}

		if err := cfg.ValidateFormat(); err != nil {
			return err
		}

		if cfg.Verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}

		logrus.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
			DisableColors:    false,
		})

		if err := cfg.EnsureDirectories(); err != nil {
			return fmt.Errorf("failed to create directories: %w", err)
		}

		logrus.Debugf("Configuration loaded: format=%s", cfg.Format)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $HOME/.vaultkeeper/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")

	rootCmd.PersistentFlags().Lookup("format").Usage = "Output format [env: VAULTKEEPER_FORMAT]"

	addCommands()
}

// addCommands adds all subcommands to the root command
func addCommands() {
	// Use closures to provide lazy access to cfg
	getCfg := func() *config.Config { return cfg }

	newSession := func() (*commands.Session, error) {
		dir, err := directory.NewSQLiteDirectory(cfg.DirectoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open account directory: %w", err)
		}

		keys, err := keystore.NewSQLiteStore(cfg.KeystorePath)
		if err != nil {
			dir.Close()
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}

		connector := keyconnector.NewWithHTTPClient(&http.Client{Timeout: cfg.KeyConnectorTimeout})

		svc := vault.New(dir, keys, engine.New(), vault.WithKeyConnector(connector))

		return &commands.Session{Service: svc, Dir: dir, Keys: keys}, nil
	}

	rootCmd.AddCommand(commands.NewUnlockCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewLockCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewLogoutCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewStatusCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewAccountsCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewTimeoutCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewPINCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewBiometricsCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewWatchCommand(getCfg, newSession))
	rootCmd.AddCommand(commands.NewVersionCommand(getCfg, version, commit, buildDate))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
