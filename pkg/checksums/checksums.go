// Package checksums produces catalog entries for new protoc releases. It is a
// maintenance tool: its output is reviewed and pasted into the compiled-in
// catalog, and nothing it computes is trusted at resolve time.
package checksums

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/pkg/errors"
)

// AssetFilename returns the upstream archive name for a release
func AssetFilename(version string, p platform.Platform) (string, error) {
	url, err := catalog.ReleaseURL(version, p)
	if err != nil {
		return "", err
	}
	return path.Base(url), nil
}

// ParseChecksumFile reads sha256sum-style lines, "<hex> [*]<filename>", into
// a filename to digest map. Blank lines and # comments are skipped.
func ParseChecksumFile(r io.Reader) (map[string]verify.Digest, error) {
	checksums := make(map[string]verify.Digest)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			log.Warnf("Ignoring invalid checksum line: %s", line)
			continue
		}

		digest, err := verify.ParseDigest(parts[0])
		if err != nil {
			log.Warnf("Ignoring checksum line without a sha256 digest: %s", line)
			continue
		}
		checksums[strings.TrimPrefix(parts[1], "*")] = digest
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading checksum file")
	}
	if len(checksums) == 0 {
		return nil, fmt.Errorf("no checksums found in file")
	}
	return checksums, nil
}

// EntriesFromChecksums builds catalog entries for version from a parsed
// checksum file. Platforms without a matching archive name are skipped.
func EntriesFromChecksums(version string, platforms []platform.Platform, checksums map[string]verify.Digest) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	for _, p := range platforms {
		filename, err := AssetFilename(version, p)
		if err != nil {
			return nil, err
		}
		digest, ok := checksums[filename]
		if !ok {
			log.Debugf("No checksum for %s", filename)
			continue
		}
		entries = append(entries, catalog.Release(version, p, digest.String()))
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no checksums match protoc %s archives", version)
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []catalog.Entry) {
	slices.SortStableFunc(entries, func(a, b catalog.Entry) int {
		if c := catalog.CompareVersions(a.Version, b.Version); c != 0 {
			return c
		}
		return strings.Compare(a.Platform.String(), b.Platform.String())
	})
}
