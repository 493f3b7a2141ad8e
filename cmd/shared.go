package cmd

import (
	"context"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/fetch"
	"github.com/binary-install/protocdl/pkg/httpclient"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/resolve"
	"github.com/pkg/errors"
)

// testResolverOptions are appended to every resolver; tests use them to
// swap the catalog and fetcher.
var testResolverOptions []resolve.Option

// requestedVersion picks the version from the first argument, then the
// config, then "" for the latest catalog release.
func requestedVersion(args []string) string {
	if len(args) > 0 && args[0] != "" && args[0] != "latest" {
		return args[0]
	}
	if len(args) > 0 && args[0] == "latest" {
		return ""
	}
	return cfg.Version
}

// targetPlatform returns the --platform override, or "" for the host
func targetPlatform() (platform.Platform, error) {
	if platformFlag == "" {
		return "", nil
	}
	p, err := platform.Parse(platformFlag)
	if err != nil {
		return "", errors.Wrap(err, "invalid --platform")
	}
	return p, nil
}

// resolverOptions turns flags and config into resolver options. Flags win
// over the config file and environment.
func resolverOptions() ([]resolve.Option, error) {
	dir := cfg.CacheDir
	if cacheDir != "" {
		dir = cacheDir
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpclient.DefaultTimeout
	}
	fetcher := fetch.NewHTTPFetcher(timeout)
	fetcher.Retries = cfg.Retries
	fetcher.Log = log.Log

	opts := []resolve.Option{
		resolve.WithCacheDir(dir),
		resolve.WithFetcher(fetcher),
		resolve.WithIncludes(cfg.IncludesEnabled() && !noIncludes),
		resolve.WithLogger(log.Log),
	}

	p, err := targetPlatform()
	if err != nil {
		return nil, err
	}
	if p != "" {
		opts = append(opts, resolve.WithPlatform(p))
	}

	return append(opts, testResolverOptions...), nil
}

// resolveProtoc runs a resolve for the command's arguments
func resolveProtoc(ctx context.Context, args []string) (*resolve.Result, error) {
	opts, err := resolverOptions()
	if err != nil {
		return nil, err
	}
	r, err := resolve.New(opts...)
	if err != nil {
		return nil, err
	}
	log.Debugf("Cache directory: %s", r.CacheDir())
	return r.Resolve(ctx, requestedVersion(args))
}
