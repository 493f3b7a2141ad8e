// Package archive reads release archives and extracts files from them
// without letting an entry name escape the destination directory.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/pkg/errors"
)

// ErrArchive is matched by malformed archives, missing members and unsafe entry names.
var ErrArchive = errors.New("archive error")

// Format represents the archive format
type Format string

const (
	FormatTarGz Format = "tar.gz"
	FormatTarXz Format = "tar.xz"
	FormatZip   Format = "zip"
)

// DetectFormat detects the archive format based on the filename or URL
func DetectFormat(filename string) (Format, error) {
	lower := strings.ToLower(filename)

	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return FormatTarGz, nil
	}
	if strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz") {
		return FormatTarXz, nil
	}
	if strings.HasSuffix(lower, ".zip") {
		return FormatZip, nil
	}
	return "", &Error{Err: fmt.Errorf("unsupported archive format: %s", filename)}
}

// Entry describes one member of an archive
type Entry struct {
	Name string
	Size int64
	Mode fs.FileMode
}

// IsDir reports whether the entry is a directory
func (e Entry) IsDir() bool {
	return e.Mode.IsDir() || strings.HasSuffix(e.Name, "/")
}

// IsRegular reports whether the entry is a plain file
func (e Entry) IsRegular() bool {
	return !e.IsDir() && e.Mode.Type() == 0
}

// Reader is the capability the extractor needs from an archive format.
type Reader interface {
	// Entries lists every member in archive order
	Entries() []Entry
	// Open returns the decompressed content of the named member
	Open(name string) (io.ReadCloser, error)
}

// Open parses data in the given format
func Open(format Format, data []byte) (Reader, error) {
	switch format {
	case FormatZip:
		return OpenZip(data)
	case FormatTarGz:
		return OpenTarGz(data)
	case FormatTarXz:
		return OpenTarXz(data)
	default:
		return nil, &Error{Err: fmt.Errorf("unsupported archive format: %s", format)}
	}
}

// Error is an archive failure. It matches ErrArchive.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("archive entry %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("archive: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrArchive) hold
func (e *Error) Is(target error) bool {
	return target == ErrArchive
}

// entryReader tags decompression failures as archive errors so they are not
// mistaken for filesystem errors on the write side.
type entryReader struct {
	io.ReadCloser
	name string
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = &Error{Name: r.name, Err: err}
	}
	return n, err
}
