package main

import (
	"errors"

	"github.com/MrEthical07/deskauth"
	"github.com/spf13/cobra"
)

type scopeOutput struct {
	Namespace    string   `json:"namespace"`
	IdentityID   string   `json:"identity_id"`
	Unrestricted bool     `json:"unrestricted"`
	DenyAll      bool     `json:"deny_all"`
	Tenants      []string `json:"tenants,omitempty"`
}

var scopeCmd = &cobra.Command{
	Use:   "scope EMAIL",
	Short: "Authenticate and print tenant visibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hint, err := deskauth.ParseNamespace(loginNamespace)
		if err != nil {
			return err
		}
		secret, err := secretFlagOrStdin()
		if err != nil {
			return err
		}

		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		auth, err := rt.engine.Authenticate(cmd.Context(), args[0], secret, hint)
		if err != nil {
			return errors.New(deskauth.PublicMessage(err))
		}

		scope := rt.engine.TenantScope(cmd.Context(), auth)
		return writeJSON(cmd.OutOrStdout(), scopeOutput{
			Namespace:    string(auth.Namespace),
			IdentityID:   auth.IdentityID,
			Unrestricted: scope.IsUnrestricted(),
			DenyAll:      scope.IsDenyAll(),
			Tenants:      scope.IDs(),
		})
	},
}

func init() {
	scopeCmd.Flags().StringVar(&loginSecret, "secret", "", "secret (read from stdin when empty)")
	scopeCmd.Flags().StringVar(&loginNamespace, "namespace", "", "search only this namespace")
	rootCmd.AddCommand(scopeCmd)
}
