package cmd

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/binary-install/protocdl/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile   string
	cacheDir     string
	platformFlag string
	noIncludes   bool
	verbose      bool
	quiet        bool

	// cfg is loaded once per invocation by PersistentPreRunE
	cfg = &config.Config{}
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "protocdl",
	Short: "Download, verify and cache protoc for builds",
	Long: `protocdl provides a verified protoc (Protocol Buffers compiler) for build
scripts and code generators.

Every release it can install is pinned in a compiled-in catalog by version,
platform and SHA-256 digest. A download is only extracted after its digest
matches, and cached binaries are re-verified before they are reused.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetHandler(cli.New(cmd.ErrOrStderr()))
		if verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}

		loaded, path, err := config.LoadOrDiscover(configFile)
		if err != nil {
			return err
		}
		if path != "" {
			log.Debugf("Config file: %s", path)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	// Disable automatic command sorting to maintain semantic order
	cobra.EnableCommandSorting = false

	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: discovered .config/"+config.FileName+")")
	RootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache directory (default: $"+config.EnvCacheDir+", $OUT_DIR/protocdl or the user cache dir)")
	RootCmd.PersistentFlags().StringVar(&platformFlag, "platform", "", "Target platform instead of the host (e.g. linux-aarch_64)")
	RootCmd.PersistentFlags().BoolVar(&noIncludes, "no-includes", false, "Do not extract the well-known .proto include files")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Increase log verbosity")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress output")

	RootCmd.AddGroup(&cobra.Group{
		ID:    "build",
		Title: "Build Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "utility",
		Title: "Utility Commands:",
	})

	RootCmd.SetHelpCommandGroupID("utility")
	RootCmd.SetCompletionCommandGroupID("utility")

	ResolveCommand.GroupID = "build"
	EnvCommand.GroupID = "build"
	RunCommand.GroupID = "build"
	VersionsCommand.GroupID = "utility"
	HashesCommand.GroupID = "utility"

	RootCmd.AddCommand(ResolveCommand)
	RootCmd.AddCommand(EnvCommand)
	RootCmd.AddCommand(RunCommand)
	RootCmd.AddCommand(VersionsCommand)
	RootCmd.AddCommand(HashesCommand)
}
