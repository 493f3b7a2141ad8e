package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/config"
	"github.com/binary-install/protocdl/pkg/fetch"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/resolve"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/stretchr/testify/require"
)

const fakeProtoc = "#!/bin/sh\necho \"protoc $*\"\nexit ${FAKE_PROTOC_EXIT:-0}\n"

type cliFixture struct {
	cacheDir string
	fetches  atomic.Int32
}

// setupCLI points the commands at an in-memory release 1.0 for
// linux-x86_64 and an empty config file, and resets global flag state.
func setupCLI(t *testing.T) *cliFixture {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"bin/protoc":                          fakeProtoc,
		"include/google/protobuf/empty.proto": `syntax = "proto3";`,
	} {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(0755)
		w, err := zw.CreateHeader(header)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	data := buf.Bytes()

	c, err := catalog.New(catalog.Entry{
		Version:  "1.0",
		Platform: platform.LinuxX86_64,
		URL:      "https://example.com/protoc-1.0-linux-x86_64.zip",
		SHA256:   verify.Sum(data),
		Member:   "bin/protoc",
	})
	require.NoError(t, err)

	f := &cliFixture{cacheDir: t.TempDir()}
	testResolverOptions = []resolve.Option{
		resolve.WithCatalog(c),
		resolve.WithPlatform(platform.LinuxX86_64),
		resolve.WithFetcher(fetch.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
			f.fetches.Add(1)
			return data, nil
		})),
	}

	configPath := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(configPath, nil, 0644))

	for _, env := range []string{config.EnvVersion, config.EnvCacheDir, config.EnvIncludes} {
		t.Setenv(env, "")
	}

	configFile = configPath
	cacheDir = ""
	platformFlag = ""
	noIncludes = false
	verbose = false
	quiet = false
	envExport = false
	versionsAll = false
	hashesFormat = "go"
	hashesPlatforms = nil
	hashesChecksumFile = ""
	cfg = &config.Config{}

	t.Cleanup(func() {
		testResolverOptions = nil
		exitFunc = os.Exit
	})
	return f
}

// execute runs the root command and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	RootCmd.SetArgs(args)
	err := RootCmd.ExecuteContext(context.Background())
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}
