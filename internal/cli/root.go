// Package cli defines the issuebot command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/issuebot/core/buildinfo"
	corecmd "github.com/m3rciful/issuebot/core/cmd"
	"github.com/m3rciful/issuebot/internal/app"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yml"
)

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "issuebot",
		Short:        "Telegram bot that edits tracker issues through a guided dialog",
		SilenceUsage: true,
		Version:      buildinfo.Version + " (" + buildinfo.Commit + ")",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config (env: CONFIG_PATH, default: config.yml)")

	load := func() (*app.Config, error) {
		path, err := corecmd.ResolveConfigPath(configPath, configEnvVar, defaultConfigPath)
		if err != nil {
			return nil, err
		}
		return app.LoadConfig(path)
	}

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newCloseChatCmd(load))
	cmd.AddCommand(newKickLockedCmd(load))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.SetVersionTemplate("{{.Version}}\n")
	return cmd
}
