package checksums

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/archive"
	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/fetch"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel downloads
const DefaultConcurrency = 4

// Calculator downloads release archives and hashes them
type Calculator struct {
	Fetcher     fetch.Fetcher
	Platforms   []platform.Platform
	Concurrency int
	Log         log.Interface
}

// Calculate downloads the archive of version for every platform and returns
// catalog entries for the ones that exist upstream. Each archive must contain
// the protoc executable. A missing archive is logged and skipped; any other
// failure aborts.
func (c *Calculator) Calculate(ctx context.Context, version string) ([]catalog.Entry, error) {
	platforms := c.Platforms
	if len(platforms) == 0 {
		platforms = platform.All()
	}
	limit := c.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var (
		mu      sync.Mutex
		entries []catalog.Entry
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range platforms {
		g.Go(func() error {
			entry, ok, err := c.calculateOne(ctx, version, p)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("failed to calculate any checksums for protoc %s", version)
	}
	sortEntries(entries)
	return entries, nil
}

func (c *Calculator) calculateOne(ctx context.Context, version string, p platform.Platform) (catalog.Entry, bool, error) {
	url, err := catalog.ReleaseURL(version, p)
	if err != nil {
		return catalog.Entry{}, false, err
	}
	logger := c.logger().WithFields(log.Fields{"platform": p, "url": url})

	logger.Info("downloading")
	data, err := c.Fetcher.Fetch(ctx, url)
	if err != nil {
		var fetchErr *fetch.Error
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == 404 {
			logger.Warn("no archive published for platform, skipping")
			return catalog.Entry{}, false, nil
		}
		return catalog.Entry{}, false, err
	}

	member := catalog.MemberPath(p)
	if err := checkMember(url, data, member); err != nil {
		return catalog.Entry{}, false, errors.Wrapf(err, "protoc %s (%s)", version, p)
	}

	digest := verify.Sum(data)
	logger.WithField("sha256", digest).Debug("hashed")
	return catalog.Release(version, p, digest.String()), true, nil
}

// checkMember makes sure the archive can be opened and holds the executable
func checkMember(url string, data []byte, member string) error {
	format, err := archive.DetectFormat(url)
	if err != nil {
		return err
	}
	r, err := archive.Open(format, data)
	if err != nil {
		return err
	}
	if err := archive.CheckNames(r); err != nil {
		return err
	}
	return archive.CheckMember(r, member)
}

func (c *Calculator) logger() log.Interface {
	if c.Log != nil {
		return c.Log
	}
	return log.Log
}
