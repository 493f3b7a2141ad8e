package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResolveCommand prints the path of a verified protoc
var ResolveCommand = &cobra.Command{
	Use:   "resolve [VERSION]",
	Short: "Download if needed and print the path to protoc",
	Long: `Resolves a protoc release from the catalog, downloading and verifying it on a
cache miss, and prints the absolute path of the executable.

Without VERSION the version from the config file or $PROTOCDL_VERSION is
used, falling back to the latest release in the catalog.`,
	Example: `  # Latest catalog release for this host
  protocdl resolve

  # Pin a version
  protocdl resolve 31.0

  # Binary for another platform
  protocdl resolve 31.0 --platform osx-aarch_64`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := resolveProtoc(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.BinaryPath)
		return nil
	},
}
