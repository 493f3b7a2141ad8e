package verify

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrHashMismatch is returned when fetched bytes do not match the catalog digest.
var ErrHashMismatch = errors.New("hash mismatch")

// Size is the length of a SHA-256 digest in bytes
const Size = sha256.Size

// Digest is a SHA-256 digest
type Digest [Size]byte

// String returns the lowercase hex encoding
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Equal compares two digests in constant time
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// ParseDigest decodes a 64 character hex string
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(Size) {
		return d, fmt.Errorf("sha256 digest must be %d hex characters, got %d", hex.EncodedLen(Size), len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, errors.Wrap(err, "invalid sha256 digest")
	}
	return d, nil
}

// MustParseDigest is ParseDigest for compiled-in literals; it panics on malformed input.
func MustParseDigest(s string) Digest {
	d, err := ParseDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Sum computes the SHA-256 of data
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// SumReader computes the SHA-256 of everything read from r
func SumReader(r io.Reader) (Digest, error) {
	var d Digest
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return d, errors.Wrap(err, "failed to compute checksum")
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}

// SumFile computes the SHA-256 of a file on disk
func SumFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return SumReader(file)
}

// SumManifest digests a set of files given by slash-separated relative path
// and content digest. Each file contributes a "<sha256>  <path>" line, in
// sorted path order, so renaming, adding or changing any file changes the
// result.
func SumManifest(files map[string]Digest) Digest {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(h, "%s  %s\n", files[p], p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// SumTree is SumManifest over the regular files below dir. Symlinks and
// other special files are rejected.
func SumTree(dir string) (Digest, error) {
	files := make(map[string]Digest)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("%s is not a regular file", path)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sum, err := SumFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = sum
		return nil
	})
	if err != nil {
		return Digest{}, errors.Wrap(err, "failed to hash directory")
	}
	if len(files) == 0 {
		return Digest{}, errors.Errorf("no files below %s", dir)
	}
	return SumManifest(files), nil
}

// MismatchError describes a digest that disagrees with the expected value.
type MismatchError struct {
	Expected Digest
	Actual   Digest
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrHashMismatch) hold for a *MismatchError.
func (e *MismatchError) Is(target error) bool {
	return target == ErrHashMismatch
}

// Verify checks data against the expected digest. It must be called on the
// exact bytes that will later be extracted.
func Verify(data []byte, expected Digest) error {
	actual := Sum(data)
	if !actual.Equal(expected) {
		return &MismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// VerifyFile checks a file on disk against the expected digest
func VerifyFile(path string, expected Digest) error {
	actual, err := SumFile(path)
	if err != nil {
		return err
	}
	if !actual.Equal(expected) {
		return &MismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
