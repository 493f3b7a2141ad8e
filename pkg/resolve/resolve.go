// Package resolve turns a requested protoc version into a verified executable
// on local disk. It ties together platform detection, the version catalog,
// download, hash verification, extraction and the cache.
package resolve

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/archive"
	"github.com/binary-install/protocdl/pkg/cache"
	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/fetch"
	"github.com/binary-install/protocdl/pkg/httpclient"
	"github.com/binary-install/protocdl/pkg/install"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/pkg/errors"
)

// Stage names the step of a resolve that failed
type Stage string

const (
	StagePlatform Stage = "platform"
	StageCatalog  Stage = "catalog"
	StageFetch    Stage = "fetch"
	StageVerify   Stage = "verify"
	StageExtract  Stage = "extract"
	StageCache    Stage = "cache"
)

// Error reports which stage of a resolve failed. It unwraps to the cause, so
// errors.Is matches the sentinel of the failing package.
type Error struct {
	Stage    Stage
	Version  string
	Platform platform.Platform
	Err      error
}

func (e *Error) Error() string {
	target := "protoc"
	if e.Version != "" {
		target += " " + e.Version
	}
	if e.Platform != "" {
		target += fmt.Sprintf(" (%s)", e.Platform)
	}
	return fmt.Sprintf("%s: %s: %v", target, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result describes a verified protoc on disk
type Result struct {
	BinaryPath string
	// IncludeDir holds the well-known .proto files; empty when includes
	// were not requested
	IncludeDir string
	Version    string
	Platform   platform.Platform
	Verified   bool
	// Cached is true when no download was needed
	Cached bool
}

// Resolver resolves protoc releases into a cache directory
type Resolver struct {
	catalog   *catalog.Catalog
	fetcher   fetch.Fetcher
	cache     *cache.Manager
	extractor *archive.Extractor
	detect    func() (platform.Platform, error)
	includes  bool
	log       log.Interface
}

// Option configures a Resolver
type Option func(*resolverOptions)

type resolverOptions struct {
	catalog  *catalog.Catalog
	fetcher  fetch.Fetcher
	cacheDir string
	detect   func() (platform.Platform, error)
	includes bool
	log      log.Interface
}

// WithCatalog replaces the compiled-in catalog
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *resolverOptions) { o.catalog = c }
}

// WithFetcher replaces the HTTP fetcher
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *resolverOptions) { o.fetcher = f }
}

// WithCacheDir sets the cache root. An empty dir falls back to
// install.ResolveCacheDir.
func WithCacheDir(dir string) Option {
	return func(o *resolverOptions) { o.cacheDir = dir }
}

// WithPlatform pins the target platform instead of detecting the host
func WithPlatform(p platform.Platform) Option {
	return func(o *resolverOptions) {
		o.detect = func() (platform.Platform, error) {
			if !p.Valid() {
				return "", errors.Wrap(platform.ErrUnsupportedPlatform, string(p))
			}
			return p, nil
		}
	}
}

// WithPlatformDetector replaces host detection
func WithPlatformDetector(detect func() (platform.Platform, error)) Option {
	return func(o *resolverOptions) { o.detect = detect }
}

// WithIncludes controls whether the bundled include/ tree is extracted.
// Enabled by default.
func WithIncludes(enabled bool) Option {
	return func(o *resolverOptions) { o.includes = enabled }
}

// WithLogger sets the logger used for stage transitions
func WithLogger(l log.Interface) Option {
	return func(o *resolverOptions) { o.log = l }
}

// New creates a resolver. Without options it uses the compiled-in catalog,
// downloads over HTTPS and caches under install.ResolveCacheDir("").
func New(opts ...Option) (*Resolver, error) {
	o := &resolverOptions{
		includes: true,
		detect:   platform.Identify,
		log:      log.Log,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.catalog == nil {
		o.catalog = catalog.Default()
	}
	if o.fetcher == nil {
		f := fetch.NewHTTPFetcher(httpclient.DefaultTimeout)
		f.Log = o.log
		o.fetcher = f
	}

	cacheDir, err := install.ResolveCacheDir(o.cacheDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to determine cache directory")
	}

	extractor := archive.NewExtractor()
	extractor.Log = o.log

	return &Resolver{
		catalog:   o.catalog,
		fetcher:   o.fetcher,
		cache:     &cache.Manager{Root: cacheDir, Log: o.log},
		extractor: extractor,
		detect:    o.detect,
		includes:  o.includes,
		log:       o.log,
	}, nil
}

// CacheDir returns the cache root in use
func (r *Resolver) CacheDir() string {
	return r.cache.Root
}

// Platform returns the platform this resolver targets
func (r *Resolver) Platform() (platform.Platform, error) {
	return r.detect()
}

// Resolve returns a verified protoc for version, downloading it on a cache
// miss. An empty version selects the latest catalog release for the
// platform. Nothing reaches the cache directory unless the downloaded
// archive matched the catalog digest.
func (r *Resolver) Resolve(ctx context.Context, version string) (*Result, error) {
	p, err := r.detect()
	if err != nil {
		return nil, &Error{Stage: StagePlatform, Version: version, Err: err}
	}

	if version == "" {
		version, err = r.catalog.Latest(p)
		if err != nil {
			return nil, &Error{Stage: StageCatalog, Platform: p, Err: err}
		}
	}

	entry, err := r.catalog.Lookup(version, p)
	if err != nil {
		return nil, &Error{Stage: StageCatalog, Version: version, Platform: p, Err: err}
	}

	logger := r.log.WithFields(log.Fields{"version": entry.Version, "platform": entry.Platform})

	if hit, ok := r.cache.Check(entry, r.includes); ok {
		logger.WithField("path", hit.BinaryPath).Debug("using cached protoc")
		return &Result{
			BinaryPath: hit.BinaryPath,
			IncludeDir: hit.IncludeDir,
			Version:    entry.Version,
			Platform:   entry.Platform,
			Verified:   true,
			Cached:     true,
		}, nil
	}

	logger.WithField("url", entry.URL).Info("downloading protoc")
	data, err := r.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return nil, r.fail(StageFetch, entry, err)
	}

	if err := verify.Verify(data, entry.SHA256); err != nil {
		return nil, r.fail(StageVerify, entry, err)
	}
	logger.WithField("sha256", entry.SHA256).Debug("archive verified")

	result, err := r.extract(entry, data)
	if err != nil {
		return nil, err
	}

	logger.WithField("path", result.BinaryPath).Info("protoc ready")
	return result, nil
}

// extract checks everything it can about the archive before touching the
// cache directory. Once writing starts the old record is gone, and a failure
// removes whatever was written.
func (r *Resolver) extract(entry catalog.Entry, data []byte) (*Result, error) {
	format, err := archive.DetectFormat(entry.URL)
	if err != nil {
		return nil, r.fail(StageExtract, entry, err)
	}
	ar, err := archive.Open(format, data)
	if err != nil {
		return nil, r.fail(StageExtract, entry, err)
	}
	if err := archive.CheckNames(ar); err != nil {
		return nil, r.fail(StageExtract, entry, err)
	}
	if err := archive.CheckMember(ar, entry.Member); err != nil {
		return nil, r.fail(StageExtract, entry, err)
	}
	var includeDigest verify.Digest
	if r.includes {
		tree, err := archive.TreeEntries(ar, catalog.IncludePrefix)
		if err != nil {
			return nil, r.fail(StageExtract, entry, err)
		}
		if hasFiles(tree) {
			if includeDigest, err = archive.TreeDigest(ar, catalog.IncludePrefix); err != nil {
				return nil, r.fail(StageExtract, entry, err)
			}
		}
	}

	if err := r.cache.Invalidate(entry); err != nil {
		return nil, r.fail(StageCache, entry, err)
	}

	result, err := r.write(entry, ar, includeDigest)
	if err != nil {
		if discardErr := r.cache.Discard(entry); discardErr != nil {
			r.log.WithError(discardErr).Warn("failed to clean up after extraction error")
		}
		return nil, err
	}
	return result, nil
}

func (r *Resolver) write(entry catalog.Entry, ar archive.Reader, includeDigest verify.Digest) (*Result, error) {
	dir := r.cache.Dir(entry)
	result := &Result{
		Version:  entry.Version,
		Platform: entry.Platform,
		Verified: true,
	}

	switch {
	case !includeDigest.IsZero():
		includeDir, err := r.extractor.ExtractTree(ar, catalog.IncludePrefix, dir)
		if err != nil {
			return nil, r.fail(StageExtract, entry, err)
		}
		result.IncludeDir = includeDir
	case r.includes:
		r.log.WithFields(log.Fields{"version": entry.Version, "platform": entry.Platform}).
			Warn("archive has no include files")
		if err := r.cache.RemoveIncludes(entry); err != nil {
			return nil, r.fail(StageCache, entry, err)
		}
	}

	binaryPath, err := r.extractor.ExtractFile(ar, entry.Member, dir)
	if err != nil {
		return nil, r.fail(StageExtract, entry, err)
	}
	result.BinaryPath = binaryPath

	if err := r.cache.Store(entry, r.includes, includeDigest); err != nil {
		return nil, r.fail(StageCache, entry, err)
	}
	return result, nil
}

func hasFiles(entries []archive.Entry) bool {
	for _, e := range entries {
		if e.IsRegular() {
			return true
		}
	}
	return false
}

func (r *Resolver) fail(stage Stage, entry catalog.Entry, err error) error {
	return &Error{Stage: stage, Version: entry.Version, Platform: entry.Platform, Err: err}
}

// ResolveAndExtract resolves version with the default catalog, the HTTPS
// fetcher and the default cache directory.
func ResolveAndExtract(ctx context.Context, version string) (*Result, error) {
	r, err := New()
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, version)
}
