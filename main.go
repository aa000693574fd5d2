package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/trendgeo/pkg/config"
	logx "github.com/tanpawarit/trendgeo/pkg/logger"
	_ "github.com/tanpawarit/trendgeo/pkg/logger/autoload"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "trendgeo",
		Short:         "Location-aware store discovery agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configx.SetEnvFile(envFile)
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			logx.Init(*logCfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file (defaults to ./.env when present)")

	root.AddCommand(
		newGeoAgentCmd(),
		newStoreExtractorCmd(),
		newStructuredAgentCmd(),
		newDiscoverCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
