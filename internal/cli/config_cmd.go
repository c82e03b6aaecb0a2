package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-port-bridge/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)

			if used := app.Viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# file: %s\n", used)
			}

			for _, o := range config.GetConfigOptions() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s = %v  # %s\n", o.Key, app.Viper.Get(o.Key), o.Comment); err != nil {
					return err
				}
			}

			return nil
		},
	}
}
