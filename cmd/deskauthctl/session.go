package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/spf13/cobra"
)

var (
	loginSecret    string
	loginNamespace string
	logoutAll      bool
	logoutKeep     string
)

type loginOutput struct {
	Namespace    string    `json:"namespace"`
	IdentityID   string    `json:"identity_id"`
	Role         string    `json:"role"`
	Capabilities []string  `json:"capabilities"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Superseded   int       `json:"superseded"`
	Bearer       string    `json:"bearer,omitempty"`
}

var loginCmd = &cobra.Command{
	Use:   "login EMAIL",
	Short: "Sign in and print the new session",
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

		res, err := rt.engine.Login(cmd.Context(), args[0], secret, hint)
		if err != nil {
			return errors.New(deskauth.PublicMessage(err))
		}
		return writeJSON(cmd.OutOrStdout(), loginOutput{
			Namespace:    string(res.Auth.Namespace),
			IdentityID:   res.Auth.IdentityID,
			Role:         res.Auth.Role,
			Capabilities: res.Auth.Capabilities.Granted(),
			TenantID:     res.Auth.TenantID,
			Token:        res.Session.Token,
			ExpiresAt:    res.Session.ExpiresAt.UTC(),
			Superseded:   res.Session.Superseded,
			Bearer:       res.Bearer,
		})
	},
}

type validateOutput struct {
	Outcome      string     `json:"outcome"`
	Reason       string     `json:"reason,omitempty"`
	Namespace    string     `json:"namespace,omitempty"`
	IdentityID   string     `json:"identity_id,omitempty"`
	Role         string     `json:"role,omitempty"`
	TenantID     string     `json:"tenant_id,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate TOKEN",
	Short: "Check a session token",
	Long: `Validate a session token against the session store. Exits 0 when the
session is valid and 3 otherwise, including when the store cannot answer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		res := rt.engine.ValidateSession(cmd.Context(), args[0])
		out := validateOutput{
			Outcome:    res.Outcome.String(),
			Reason:     res.Reason,
			Namespace:  string(res.Namespace),
			IdentityID: res.IdentityID,
		}
		if res.Auth != nil {
			out.Role = res.Auth.Role
			out.TenantID = res.Auth.TenantID
			out.Capabilities = res.Auth.Capabilities.Granted()
		}
		if !res.ExpiresAt.IsZero() {
			exp := res.ExpiresAt.UTC()
			out.ExpiresAt = &exp
		}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !res.Valid() {
			return errNotValid
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout TOKEN",
	Short: "End a session",
	Long: `Delete the session behind TOKEN. With --all, every session of the
token's identity is removed instead; --keep spares one other token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		if !logoutAll {
			return rt.engine.Logout(cmd.Context(), args[0])
		}

		res := rt.engine.ValidateSession(cmd.Context(), args[0])
		if res.IdentityID == "" {
			return fmt.Errorf("%w: %s", errNotValid, res.Outcome)
		}
		n, err := rt.engine.InvalidateStaleSessions(cmd.Context(), res.Namespace, res.IdentityID, logoutKeep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s)\n", n)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginSecret, "secret", "", "secret (read from stdin when empty)")
	loginCmd.Flags().StringVar(&loginNamespace, "namespace", "", "search only this namespace: matrix, context or legacy")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every session of the identity")
	logoutCmd.Flags().StringVar(&logoutKeep, "keep", "", "with --all, a token to keep")

	rootCmd.AddCommand(loginCmd, validateCmd, logoutCmd)
}

func secretFlagOrStdin() (string, error) {
	if loginSecret != "" {
		return loginSecret, nil
	}
	return readSecret(nil)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
