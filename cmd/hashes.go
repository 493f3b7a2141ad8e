package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/checksums"
	"github.com/binary-install/protocdl/pkg/fetch"
	"github.com/binary-install/protocdl/pkg/httpclient"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	hashesFormat       string
	hashesPlatforms    []string
	hashesChecksumFile string
	hashesConcurrency  int
)

// HashesCommand computes catalog entries for a new release
var HashesCommand = &cobra.Command{
	Use:   "hashes VERSION|latest",
	Short: "Compute catalog entries for a protoc release",
	Long: `Downloads the protoc archives of a release for every platform, checks that
each contains the executable, and prints catalog entries with their SHA-256
digests. "latest" is looked up on GitHub.

The output is meant to be reviewed and added to the compiled-in catalog; it
is never trusted by resolve on its own.

With --checksum-file the digests are read from a sha256sum-style file instead
of downloading.`,
	Example: `  protocdl hashes latest
  protocdl hashes 31.0 --format yaml
  protocdl hashes 31.0 --checksum-file SHA256SUMS`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := checksums.Format(hashesFormat)
		if format != checksums.FormatGo && format != checksums.FormatYAML {
			return errors.Errorf("unknown format %q (want go or yaml)", hashesFormat)
		}

		platforms, err := parsePlatforms(hashesPlatforms)
		if err != nil {
			return err
		}

		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = httpclient.DefaultTimeout
		}

		client := checksums.NewGitHubClient(httpclient.NewGitHubClient(timeout))
		version, err := checksums.ResolveVersion(cmd.Context(), client, args[0])
		if err != nil {
			return errors.Wrap(err, "failed to resolve version")
		}
		log.Infof("Computing hashes for protoc %s", version)

		if hashesChecksumFile != "" {
			f, err := os.Open(hashesChecksumFile)
			if err != nil {
				return errors.Wrap(err, "failed to open checksum file")
			}
			defer f.Close()
			digests, err := checksums.ParseChecksumFile(f)
			if err != nil {
				return err
			}
			entries, err := checksums.EntriesFromChecksums(version, platforms, digests)
			if err != nil {
				return err
			}
			return checksums.Write(cmd.OutOrStdout(), format, entries)
		}

		fetcher := fetch.NewHTTPFetcher(timeout)
		fetcher.Retries = cfg.Retries
		calc := &checksums.Calculator{
			Fetcher:     fetcher,
			Platforms:   platforms,
			Concurrency: hashesConcurrency,
		}
		entries, err := calc.Calculate(cmd.Context(), version)
		if err != nil {
			return err
		}
		return checksums.Write(cmd.OutOrStdout(), format, entries)
	},
}

func init() {
	HashesCommand.Flags().StringVarP(&hashesFormat, "format", "f", string(checksums.FormatGo), "Output format: go or yaml")
	HashesCommand.Flags().StringSliceVarP(&hashesPlatforms, "platforms", "p", nil, "Platforms to include (default: all)")
	HashesCommand.Flags().StringVar(&hashesChecksumFile, "checksum-file", "", "Read digests from a sha256sum-style file instead of downloading")
	HashesCommand.Flags().IntVar(&hashesConcurrency, "concurrency", checksums.DefaultConcurrency, "Parallel downloads")
}

func parsePlatforms(tags []string) ([]platform.Platform, error) {
	if len(tags) == 0 {
		return platform.All(), nil
	}
	out := make([]platform.Platform, 0, len(tags))
	for _, tag := range tags {
		p, err := platform.Parse(tag)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
