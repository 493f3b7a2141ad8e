package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/binary-install/protocdl/pkg/resolve"
	"github.com/spf13/cobra"
)

var envExport bool

// EnvCommand prints environment assignments for build scripts
var EnvCommand = &cobra.Command{
	Use:   "env [VERSION]",
	Short: "Print PROTOC and PROTOC_INCLUDE for build scripts",
	Long: `Resolves protoc like the resolve command and prints PROTOC=<path> and,
when include files were extracted, PROTOC_INCLUDE=<dir>.

Plain output suits $GITHUB_ENV and dotenv files. With --export the values are
shell-quoted for eval.`,
	Example: `  eval "$(protocdl env --export 31.0)"
  protocdl env >> "$GITHUB_ENV"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := resolveProtoc(cmd.Context(), args)
		if err != nil {
			return err
		}
		return writeEnv(cmd.OutOrStdout(), result, envExport)
	},
}

func init() {
	EnvCommand.Flags().BoolVar(&envExport, "export", false, "Prefix assignments with export")
}

func writeEnv(w io.Writer, result *resolve.Result, export bool) error {
	vars := [][2]string{{"PROTOC", result.BinaryPath}}
	if result.IncludeDir != "" {
		vars = append(vars, [2]string{"PROTOC_INCLUDE", result.IncludeDir})
	}

	for _, v := range vars {
		line := v[0] + "=" + v[1]
		if export {
			line = "export " + v[0] + "=" + shellQuote(v[1])
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// shellQuote single-quotes s when it contains characters a POSIX shell would
// interpret
func shellQuote(s string) string {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '/', r == '.', r == '-', r == '_', r == ':', r == '+':
		default:
			return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
		}
	}
	return s
}
