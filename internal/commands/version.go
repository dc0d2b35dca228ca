package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akarpov/vaultkeeper/internal/config"
)

// VersionInfo holds version information
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// NewVersionCommand creates the version command
func NewVersionCommand(getCfg func() *config.Config, version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()

			if cfg.Format == "text" {
				fmt.Printf("Vaultkeeper CLI\n")
				fmt.Printf("Version:    %s\n", version)
				fmt.Printf("Commit:     %s\n", commit)
				fmt.Printf("Build Date: %s\n", buildDate)
				return nil
			}

			rendered, err := formatterFor(cfg).Format(VersionInfo{
				Version:   version,
				Commit:    commit,
				BuildDate: buildDate,
			})
			if err != nil {
				return err
			}

			fmt.Println(rendered)
			return nil
		},
	}
}
