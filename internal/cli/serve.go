package cli

import (
	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/issuebot/core/cmd"
	"github.com/m3rciful/issuebot/internal/app"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(cmd.Context(), corecmd.Options{
				ConfigPath:        *configPath,
				ConfigEnvVar:      configEnvVar,
				DefaultConfigPath: defaultConfigPath,
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					cfg, err := app.LoadConfig(path)
					if err != nil {
						return nil, err
					}
					return cfg, nil
				},
				Bootstrap: app.Bootstrap,
			})
		},
	}
}
