package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/password"
	"github.com/spf13/cobra"
)

var bcryptCost int

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Hash a secret for an identity row",
	Long: `Hash a secret with the configured Argon2id parameters and print the
encoded hash. Without an argument the secret is read from the first line of
stdin. --bcrypt-cost produces a bcrypt hash instead, as found in legacy rows.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret(args)
		if err != nil {
			return err
		}

		var hasher interface{ Hash(string) (string, error) }
		if bcryptCost > 0 {
			hasher, err = password.NewBcrypt(bcryptCost)
		} else {
			hasher, err = password.NewArgon2(deskauth.DefaultConfig().Password.Params())
		}
		if err != nil {
			return err
		}

		hash, err := hasher.Hash(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashSecretCmd.Flags().IntVar(&bcryptCost, "bcrypt-cost", 0, "produce a bcrypt hash with this cost")
	rootCmd.AddCommand(hashSecretCmd)
}

func readSecret(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no secret on stdin")
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return secret, nil
}
