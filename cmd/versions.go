package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/spf13/cobra"
)

var versionsAll bool

// VersionsCommand lists the catalog
var VersionsCommand = &cobra.Command{
	Use:   "versions",
	Short: "List protoc versions in the catalog",
	Long: `Lists the protoc versions available for the target platform, oldest first.
With --all every catalog entry is printed with its platform and SHA-256.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionsAll {
			return writeCatalog(cmd.OutOrStdout(), catalog.Default())
		}

		p, err := targetPlatform()
		if err != nil {
			return err
		}
		if p == "" {
			p, err = platform.Identify()
			if err != nil {
				return err
			}
		}
		return writeVersions(cmd.OutOrStdout(), catalog.Default(), p)
	},
}

func init() {
	VersionsCommand.Flags().BoolVarP(&versionsAll, "all", "a", false, "List every platform with digests")
}

func writeVersions(w io.Writer, c *catalog.Catalog, p platform.Platform) error {
	versions := c.Versions(p)
	if len(versions) == 0 {
		return fmt.Errorf("no protoc releases in the catalog for %s", p)
	}
	for _, v := range versions {
		if _, err := fmt.Fprintln(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeCatalog(w io.Writer, c *catalog.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tPLATFORM\tSHA256")
	for _, e := range c.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Version, e.Platform, e.SHA256)
	}
	return tw.Flush()
}
