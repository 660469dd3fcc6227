package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	config string
	port   int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	serve := newServeCmd(flags)

	rootCmd := &cobra.Command{
		Use:          "voxroom",
		Short:        "Voxroom coordinates voice rooms: signaling, presence, shared media and an AI participant",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	rootCmd.PersistentFlags().IntVarP(&flags.port, "port", "p", 0, "listen port, overrides the config file")

	rootCmd.AddCommand(serve, newProvidersCmd(flags))
	return rootCmd
}

// configureLogging switches to JSON output outside debug mode.
func configureLogging(mode, level string) {
	if mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
