package cmd

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/resolve"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// exitFunc ends the process with protoc's exit code
var exitFunc = os.Exit

// RunCommand executes protoc with the given arguments
var RunCommand = &cobra.Command{
	Use:   "run [VERSION] -- [PROTOC ARGS...]",
	Short: "Resolve protoc and run it",
	Long: `Resolves protoc and runs it with the arguments after --. When include files
were extracted, -I<include dir> is appended so imports of the well-known
types (google/protobuf/*.proto) resolve. protoc's exit code is propagated.`,
	Example: `  protocdl run -- --version
  protocdl run 31.0 -- -Iproto --go_out=gen proto/api.proto`,
	Args: func(cmd *cobra.Command, args []string) error {
		if dash := cmd.ArgsLenAtDash(); dash > 1 || (dash == -1 && len(args) > 1) {
			return errors.New("at most one VERSION may precede --")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		versionArgs, protocArgs := splitAtDash(args, cmd.ArgsLenAtDash())

		result, err := resolveProtoc(cmd.Context(), versionArgs)
		if err != nil {
			return err
		}

		if err := checkRunnable(result.Platform, runtime.GOOS); err != nil {
			return err
		}

		argv := protocArgv(result, protocArgs)
		log.WithField("protoc", result.BinaryPath).Debugf("running %v", argv)

		c := exec.CommandContext(cmd.Context(), result.BinaryPath, argv...)
		c.Stdin = cmd.InOrStdin()
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()
		if err := c.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
				exitFunc(exitErr.ExitCode())
				return nil
			}
			return errors.Wrap(err, "failed to run protoc")
		}
		return nil
	},
}

// checkRunnable refuses to exec a protoc built for another operating system,
// which can be resolved with --platform
func checkRunnable(p platform.Platform, goos string) error {
	if p.GOOS() != goos {
		return errors.Errorf("protoc for %s cannot run on %s", p, goos)
	}
	return nil
}

func splitAtDash(args []string, dash int) ([]string, []string) {
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

// protocArgv appends the include directory after the user's arguments so
// their own -I paths are searched first
func protocArgv(result *resolve.Result, args []string) []string {
	argv := append([]string{}, args...)
	if result.IncludeDir != "" {
		argv = append(argv, "-I"+result.IncludeDir)
	}
	return argv
}
