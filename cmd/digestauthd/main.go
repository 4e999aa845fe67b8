// Command digestauthd runs the HTTP Digest Access Authentication
// daemon: an authenticating reverse gate that sits in front of an
// upstream handler and enforces RFC 2617/7616 digest verification.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "digestauthd",
		Short: "HTTP Digest Access Authentication daemon",
		Long: `digestauthd verifies RFC 2617/7616 HTTP Digest Authorization
headers against a credential store and emits WWW-Authenticate challenges
for requests that fail verification.`,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newGenUserCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
