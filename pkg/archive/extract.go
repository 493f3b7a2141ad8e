package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/install"
	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/pkg/errors"
)

// SafeJoin returns the on-disk path of an archive entry under destDir. Names
// that are absolute, carry a volume, contain ".." segments or backslashes, or
// otherwise resolve outside destDir are rejected.
func SafeJoin(destDir, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	base, err := filepath.Abs(destDir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve destination directory")
	}
	target := filepath.Join(base, filepath.FromSlash(name))
	if !within(base, target) || target == base {
		return "", &Error{Name: name, Err: fmt.Errorf("entry resolves outside %s", base)}
	}

	// Directories already on disk may be symlinks; compare where they lead
	realBase, err := resolveExisting(base)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve destination directory")
	}
	realParent, err := resolveExisting(filepath.Dir(target))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve entry directory")
	}
	if !within(realBase, realParent) {
		return "", &Error{Name: name, Err: fmt.Errorf("entry resolves outside %s through a symlink", base)}
	}
	return target, nil
}

// checkName rejects names that are unsafe wherever they are extracted
func checkName(name string) error {
	if name == "" {
		return &Error{Name: name, Err: fmt.Errorf("empty entry name")}
	}
	if strings.Contains(name, "\\") {
		return &Error{Name: name, Err: fmt.Errorf("backslash in entry name")}
	}
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return &Error{Name: name, Err: fmt.Errorf("absolute entry name")}
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return &Error{Name: name, Err: fmt.Errorf("path traversal in entry name")}
		}
	}
	if path.Clean(name) == "." {
		return &Error{Name: name, Err: fmt.Errorf("entry names the destination itself")}
	}
	return nil
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting evaluates symlinks in the longest existing prefix of p and
// appends the remaining components unchanged.
func resolveExisting(p string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(append([]string{p}, rest...)...), nil
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// CheckNames rejects an archive if any entry name is unsafe, even one that
// would not be extracted.
func CheckNames(r Reader) error {
	for _, e := range r.Entries() {
		if err := checkName(e.Name); err != nil {
			return err
		}
	}
	return nil
}

// Extractor writes archive members to disk
type Extractor struct {
	Log log.Interface
}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// CheckMember reports whether member is a regular file in the archive
func CheckMember(r Reader, member string) error {
	entry, ok := findEntry(r, member)
	if !ok {
		return &Error{Name: member, Err: fmt.Errorf("not found in archive")}
	}
	if !entry.IsRegular() {
		return &Error{Name: member, Err: fmt.Errorf("not a regular file (mode %s)", entry.Mode)}
	}
	return nil
}

// TreeEntries returns the entries below prefix. Every one of them must be a
// directory or a regular file. An archive without such entries yields an
// empty slice.
func TreeEntries(r Reader, prefix string) ([]Entry, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var out []Entry
	for _, entry := range r.Entries() {
		if !strings.HasPrefix(entry.Name, prefix) || entry.Name == prefix {
			continue
		}
		if !entry.IsDir() && !entry.IsRegular() {
			return nil, &Error{Name: entry.Name, Err: fmt.Errorf("not a regular file (mode %s)", entry.Mode)}
		}
		out = append(out, entry)
	}
	return out, nil
}

// TreeDigest reads every file below prefix and digests them the way
// verify.SumTree digests the extracted tree, with paths relative to prefix.
func TreeDigest(r Reader, prefix string) (verify.Digest, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	entries, err := TreeEntries(r, prefix)
	if err != nil {
		return verify.Digest{}, err
	}

	files := make(map[string]verify.Digest)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rc, err := r.Open(entry.Name)
		if err != nil {
			return verify.Digest{}, err
		}
		sum, err := verify.SumReader(rc)
		rc.Close()
		if err != nil {
			return verify.Digest{}, &Error{Name: entry.Name, Err: err}
		}
		files[path.Clean(strings.TrimPrefix(entry.Name, prefix))] = sum
	}
	if len(files) == 0 {
		return verify.Digest{}, &Error{Name: prefix, Err: fmt.Errorf("no files under prefix")}
	}
	return verify.SumManifest(files), nil
}

// ExtractFile writes the single member to destDir/member with executable
// permissions and returns its path. The write is atomic.
func (x *Extractor) ExtractFile(r Reader, member, destDir string) (string, error) {
	if err := CheckNames(r); err != nil {
		return "", err
	}

	target, err := SafeJoin(destDir, member)
	if err != nil {
		return "", err
	}
	if err := CheckMember(r, member); err != nil {
		return "", err
	}

	rc, err := r.Open(member)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := install.WriteFileAtomic(target, rc, 0755); err != nil {
		return "", err
	}

	x.logger().WithFields(log.Fields{"member": member, "path": target}).Debug("extracted")
	return target, nil
}

// ExtractTree extracts every entry under prefix into destDir, keeping the
// prefix as the top-level directory. Entries are written to a temporary
// sibling directory which then replaces any existing tree.
func (x *Extractor) ExtractTree(r Reader, prefix, destDir string) (string, error) {
	if err := CheckNames(r); err != nil {
		return "", err
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	entries, err := TreeEntries(r, prefix)
	if err != nil {
		return "", err
	}
	files := 0
	for _, entry := range entries {
		if entry.IsRegular() {
			files++
		}
	}
	if files == 0 {
		return "", &Error{Name: prefix, Err: fmt.Errorf("no files under prefix")}
	}

	target, err := SafeJoin(destDir, strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create destination directory")
	}
	tmpDir, err := os.MkdirTemp(filepath.Dir(target), "."+filepath.Base(target)+"-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary directory")
	}

	success := false
	defer func() {
		if !success {
			os.RemoveAll(tmpDir)
		}
	}()

	for _, entry := range entries {
		dest, err := SafeJoin(tmpDir, strings.TrimPrefix(entry.Name, prefix))
		if err != nil {
			return "", err
		}

		if entry.IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return "", errors.Wrap(err, "failed to create directory")
			}
			continue
		}
		if err := x.writeEntry(r, entry.Name, dest); err != nil {
			return "", err
		}
	}

	if err := install.ReplaceDir(tmpDir, target); err != nil {
		return "", err
	}
	success = true

	x.logger().WithFields(log.Fields{"prefix": prefix, "path": target, "files": files}).Debug("extracted tree")
	return target, nil
}

func (x *Extractor) writeEntry(r Reader, name, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	rc, err := r.Open(name)
	if err != nil {
		return err
	}
	defer rc.Close()

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if _, err := io.Copy(file, rc); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to extract file")
	}
	return errors.Wrap(file.Close(), "failed to close file")
}

func (x *Extractor) logger() log.Interface {
	if x.Log != nil {
		return x.Log
	}
	return log.Log
}

func findEntry(r Reader, name string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
