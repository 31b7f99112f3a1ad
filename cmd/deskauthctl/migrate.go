package main

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/deskauth/internal/config"
	"github.com/MrEthical07/deskauth/store/pgstore"
	"github.com/spf13/cobra"
)

var printSchema bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema",
	Long: `Create the tenant, identity, role and session tables if they do not
exist. Every statement is idempotent. --print writes the schema to stdout
without connecting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if printSchema {
			fmt.Fprint(cmd.OutOrStdout(), pgstore.Schema())
			return nil
		}
		if cfg.Backend != config.BackendPostgres {
			return errors.New("migrate requires backend: postgres")
		}

		pool, err := pgstore.Connect(cmd.Context(), cfg.Postgres.DSN, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pgstore.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		logger.Info().Msg("schema applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&printSchema, "print", false, "print the schema instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}
