package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MrEthical07/deskauth/internal/config"
	"github.com/MrEthical07/deskauth/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  zerolog.Logger
)

// errNotValid makes validate exit with status 3 without printing usage.
var errNotValid = errors.New("session not valid")

var rootCmd = &cobra.Command{
	Use:   "deskauthctl",
	Short: "Operate the deskauth identity and session authority",
	Long: `deskauthctl signs identities in against the configured stores and
inspects the resulting sessions and tenant scopes.

Configuration is read from deskauth.yaml (or --config) and DESKAUTH_*
environment variables.

Example usage:
  deskauthctl hash-secret                      # read a secret from stdin, print its hash
  deskauthctl migrate                          # apply the Postgres schema
  deskauthctl login ana@acme.test              # sign in and print the session
  deskauthctl validate <token>                 # check a session token
  deskauthctl scope ana@acme.test              # print tenant visibility
  deskauthctl logout <token>                   # end one session`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./deskauth.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger = logging.New(level, cfg.Logging.Format, os.Stderr)
	logger.Debug().
		Str("backend", cfg.Backend).
		Str("session_store", cfg.Session.Store).
		Msg("configuration loaded")
	return nil
}

func exitCode(err error) int {
	if errors.Is(err, errNotValid) {
		return 3
	}
	return 1
}
