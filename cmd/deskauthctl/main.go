// Command deskauthctl operates a deskauth installation: hashing secrets,
// applying the Postgres schema, and signing in, validating and scoping
// against the configured stores.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
