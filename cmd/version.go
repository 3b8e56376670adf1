// File: cmd/version.go
package cmd

import (
	"fmt"
	"github.com/jarylc/go-recaptchabuster"
	"github.com/spf13/cobra"
)

// Version is the application version.
// It can be overridden at build time, e.g. go build -ldflags "-X github.com/jarylc/go-recaptchabuster/cmd.Version=1.0.0"
var Version = recaptchabuster.Version

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "recaptchabuster version %s\n", Version)
			return err
		},
	}
}
