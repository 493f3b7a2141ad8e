// Package cache manages extracted protoc releases on disk. A cached binary is
// only trusted when its integrity record matches the current catalog and the
// binary still hashes to the recorded digest.
package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/install"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RecordFile is the name of the integrity record inside an entry directory
const RecordFile = ".protocdl.yml"

// Record is written after a release has been verified and extracted
type Record struct {
	Version       string    `yaml:"version"`
	Platform      string    `yaml:"platform"`
	URL           string    `yaml:"url"`
	ArchiveSHA256 string    `yaml:"archive_sha256"`
	Binary        string    `yaml:"binary"`
	BinarySHA256  string    `yaml:"binary_sha256"`
	Includes      bool      `yaml:"includes"`
	// IncludeSHA256 digests the extracted include tree with verify.SumTree.
	// Empty when the archive had no include files.
	IncludeSHA256 string    `yaml:"include_sha256,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
}

// Hit is a verified cache entry
type Hit struct {
	BinaryPath string
	IncludeDir string
}

// Manager owns the layout below Root
type Manager struct {
	Root string
	Log  log.Interface
	Now  func() time.Time
}

// Dir returns the deterministic directory for a release
func (m *Manager) Dir(e catalog.Entry) string {
	return filepath.Join(m.Root, "protoc", e.Version, e.Platform.String())
}

// BinaryPath returns where the protoc executable of a release is extracted
func (m *Manager) BinaryPath(e catalog.Entry) string {
	return filepath.Join(m.Dir(e), filepath.FromSlash(e.Member))
}

// IncludeDir returns where the well-known .proto files of a release are extracted
func (m *Manager) IncludeDir(e catalog.Entry) string {
	return filepath.Join(m.Dir(e), "include")
}

// Check reports a hit only when the record matches the catalog entry and the
// binary on disk still has the recorded digest. Any doubt is a miss.
func (m *Manager) Check(e catalog.Entry, includes bool) (*Hit, bool) {
	logger := m.logger().WithFields(log.Fields{"version": e.Version, "platform": e.Platform})

	rec, err := m.readRecord(e)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			logger.WithError(err).Warn("ignoring unreadable cache record")
		}
		return nil, false
	}

	if rec.Version != e.Version || rec.Platform != e.Platform.String() || rec.Binary != e.Member {
		logger.Warn("cache record does not describe this release")
		return nil, false
	}
	if rec.ArchiveSHA256 != e.SHA256.String() {
		logger.WithFields(log.Fields{"recorded": rec.ArchiveSHA256, "catalog": e.SHA256.String()}).
			Warn("cache record was made for a different archive digest")
		return nil, false
	}

	binaryDigest, err := verify.ParseDigest(rec.BinarySHA256)
	if err != nil {
		logger.WithError(err).Warn("cache record has no usable binary digest")
		return nil, false
	}
	binaryPath := m.BinaryPath(e)
	if err := verify.VerifyFile(binaryPath, binaryDigest); err != nil {
		logger.WithError(err).Warn("cached binary failed verification")
		return nil, false
	}

	hit := &Hit{BinaryPath: binaryPath}
	if includes {
		if !rec.Includes {
			logger.Debug("cache entry has no include files")
			return nil, false
		}
		if rec.IncludeSHA256 != "" {
			includeDigest, err := verify.ParseDigest(rec.IncludeSHA256)
			if err != nil {
				logger.WithError(err).Warn("cache record has no usable include digest")
				return nil, false
			}
			includeDir := m.IncludeDir(e)
			actual, err := verify.SumTree(includeDir)
			if err != nil {
				logger.WithError(err).Warn("cached include files are unreadable")
				return nil, false
			}
			if !actual.Equal(includeDigest) {
				logger.WithFields(log.Fields{"recorded": rec.IncludeSHA256, "actual": actual.String()}).
					Warn("cached include files failed verification")
				return nil, false
			}
			hit.IncludeDir = includeDir
		}
	}

	logger.Debug("cache hit")
	return hit, true
}

// Store writes the record for an extracted release. It must only be called
// after the archive was verified and extracted; it is the commit point that
// makes the entry visible to Check. includeDigest is the digest of the include
// tree taken from the archive, or the zero digest when the archive had none.
func (m *Manager) Store(e catalog.Entry, includes bool, includeDigest verify.Digest) error {
	binaryDigest, err := verify.SumFile(m.BinaryPath(e))
	if err != nil {
		return errors.Wrap(err, "failed to hash extracted binary")
	}

	var includeSHA256 string
	if includes && !includeDigest.IsZero() {
		includeSHA256 = includeDigest.String()
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	rec := Record{
		Version:       e.Version,
		Platform:      e.Platform.String(),
		URL:           e.URL,
		ArchiveSHA256: e.SHA256.String(),
		Binary:        e.Member,
		BinarySHA256:  binaryDigest.String(),
		Includes:      includes,
		IncludeSHA256: includeSHA256,
		CreatedAt:     now().UTC(),
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode cache record")
	}
	return install.WriteFileAtomic(m.recordPath(e), bytes.NewReader(data), 0644)
}

// Invalidate removes the record so the next Check misses. Extracted files are
// left in place and replaced by the next resolve.
func (m *Manager) Invalidate(e catalog.Entry) error {
	err := os.Remove(m.recordPath(e))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove cache record")
	}
	return nil
}

// Discard removes the record and everything extracted for a release. It is
// used when an extraction fails part way, and keeps going after an error so
// as little as possible is left behind.
func (m *Manager) Discard(e catalog.Entry) error {
	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}
	if err := m.Invalidate(e); err != nil {
		keep(err)
	}
	if err := m.RemoveIncludes(e); err != nil {
		keep(err)
	}
	if err := os.Remove(m.BinaryPath(e)); err != nil && !os.IsNotExist(err) {
		keep(errors.Wrap(err, "failed to remove extracted binary"))
	}
	return first
}

// RemoveIncludes deletes the extracted include tree of a release
func (m *Manager) RemoveIncludes(e catalog.Entry) error {
	return errors.Wrap(os.RemoveAll(m.IncludeDir(e)), "failed to remove include files")
}

func (m *Manager) readRecord(e catalog.Entry) (*Record, error) {
	data, err := os.ReadFile(m.recordPath(e))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cache record")
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to parse cache record")
	}
	return &rec, nil
}

func (m *Manager) recordPath(e catalog.Entry) string {
	return filepath.Join(m.Dir(e), RecordFile)
}

func (m *Manager) logger() log.Interface {
	if m.Log != nil {
		return m.Log
	}
	return log.Log
}
