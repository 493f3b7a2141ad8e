// Package catalog holds the table of protoc releases that are trusted to be
// downloaded, keyed by version and platform.
package catalog

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/buildkite/interpolate"
	"github.com/pkg/errors"
)

// ErrVersionNotFound is returned when no entry matches the requested version and platform.
var ErrVersionNotFound = errors.New("version not found")

// URLTemplate is the upstream release asset location. It is expanded when
// the catalog is built, never from runtime input.
const URLTemplate = "https://github.com/protocolbuffers/protobuf/releases/download/v${VERSION}/protoc-${VERSION}-${PLATFORM}.zip"

// IncludePrefix is the directory inside the release archive that holds the
// well-known .proto files.
const IncludePrefix = "include/"

// Entry is one known-good release artifact
type Entry struct {
	Version  string
	Platform platform.Platform
	URL      string
	SHA256   verify.Digest
	// Member is the path of the protoc executable inside the archive
	Member string
}

// Key identifies an entry
type Key struct {
	Version  string
	Platform platform.Platform
}

// Key returns the lookup key of the entry
func (e Entry) Key() Key {
	return Key{Version: e.Version, Platform: e.Platform}
}

func (e Entry) String() string {
	return fmt.Sprintf("protoc %s (%s)", e.Version, e.Platform)
}

// Catalog is an immutable set of entries. It is safe for concurrent use.
type Catalog struct {
	entries []Entry
	index   map[Key]int
}

// New validates entries and builds a catalog. Entry order is preserved.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[Key]int, len(entries)),
	}
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, errors.Wrapf(err, "catalog entry %d", i)
		}
		if _, dup := c.index[e.Key()]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate entry for %s", i, e)
		}
		c.index[e.Key()] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// MustNew is New for compiled-in tables
func MustNew(entries ...Entry) *Catalog {
	c, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return c
}

func validateEntry(e Entry) error {
	if e.Version == "" {
		return fmt.Errorf("empty version")
	}
	if strings.ContainsAny(e.Version, "/\\ ") || strings.Contains(e.Version, "..") {
		return fmt.Errorf("invalid version %q", e.Version)
	}
	if !e.Platform.Valid() {
		return fmt.Errorf("unknown platform %q", e.Platform)
	}
	if e.URL == "" {
		return fmt.Errorf("empty url for %s", e)
	}
	if e.SHA256.IsZero() {
		return fmt.Errorf("missing sha256 for %s", e)
	}
	if e.Member == "" {
		return fmt.Errorf("empty archive member for %s", e)
	}
	if path.IsAbs(e.Member) || path.Clean(e.Member) != e.Member || strings.HasPrefix(e.Member, "../") {
		return fmt.Errorf("archive member %q for %s is not a clean relative path", e.Member, e)
	}
	return nil
}

// Lookup returns the entry for an exact version and platform. There is no
// nearest-version fallback.
func (c *Catalog) Lookup(version string, p platform.Platform) (Entry, error) {
	i, ok := c.index[Key{Version: version, Platform: p}]
	if !ok {
		return Entry{}, errors.Wrapf(ErrVersionNotFound, "no protoc %q for %s", version, p)
	}
	return c.entries[i], nil
}

// Entries returns a copy of all entries in catalog order
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Versions returns the versions available for a platform, oldest first
func (c *Catalog) Versions(p platform.Platform) []string {
	var versions []string
	for _, e := range c.entries {
		if e.Platform == p {
			versions = append(versions, e.Version)
		}
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// Latest returns the newest version available for a platform
func (c *Catalog) Latest(p platform.Platform) (string, error) {
	versions := c.Versions(p)
	if len(versions) == 0 {
		return "", errors.Wrapf(ErrVersionNotFound, "no protoc releases for %s", p)
	}
	return versions[len(versions)-1], nil
}

// CompareVersions orders dotted numeric versions such as "27.10" and "27.9".
// Non-numeric components compare as strings.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareComponent(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareComponent(x, y string) int {
	xn, xok := atoi(x)
	yn, yok := atoi(y)
	if xok && yok {
		switch {
		case xn < yn:
			return -1
		case xn > yn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(x, y)
}

func atoi(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// ReleaseURL expands URLTemplate for a version and platform
func ReleaseURL(version string, p platform.Platform) (string, error) {
	env := interpolate.NewMapEnv(map[string]string{
		"VERSION":  version,
		"PLATFORM": p.String(),
	})
	return interpolate.Interpolate(env, URLTemplate)
}

// MemberPath returns the archive path of the protoc executable for a platform
func MemberPath(p platform.Platform) string {
	return "bin/" + p.ExecutableName()
}

// Release builds an entry for an upstream protoc release from its hex digest.
// It panics on a malformed digest.
func Release(version string, p platform.Platform, sha256Hex string) Entry {
	url, err := ReleaseURL(version, p)
	if err != nil {
		panic(errors.Wrapf(err, "expanding release url for %s %s", version, p))
	}
	return Entry{
		Version:  version,
		Platform: p,
		URL:      url,
		SHA256:   verify.MustParseDigest(sha256Hex),
		Member:   MemberPath(p),
	}
}
