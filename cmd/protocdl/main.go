package main

import (
	"context"
	"os"
	"syscall"

	"github.com/binary-install/protocdl/cmd"
	"github.com/charmbracelet/fang"
)

var (
	// version and commit are set with -ldflags at build time
	version = "dev"
	commit  = "none"
)

func main() {
	if err := fang.Execute(
		context.Background(),
		cmd.RootCmd,
		fang.WithVersion(version),
		fang.WithCommit(commit),
		fang.WithNotifySignal(syscall.SIGINT, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
