package cmd

import (
	"os"

	"github.com/habedi/gauth/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the root command and exits with the error's exit code.
func Execute() {
	rootCmd := createRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", err)
		os.Exit(clierr.ExitCode(err))
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gauth",
		Short:         "Obtain and use OAuth2 tokens for Google APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default $GAUTH_CONFIG or <config dir>/gauth/config.yaml)")
	rootCmd.PersistentFlags().String("name", "", "Name the token is stored under (overrides the config)")

	rootCmd.AddCommand(
		loginCmd(),
		tokenCmd(),
		meCmd(),
		peopleCmd(),
		translateCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}
