package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

type zipReader struct {
	entries []Entry
	files   map[string]*zip.File
}

// OpenZip reads a zip archive held in memory. Duplicate entry names are
// rejected because they make "the" member ambiguous.
func OpenZip(data []byte) (Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// With GODEBUG=zipinsecurepath=0 the reader is still usable; names are
	// checked by SafeJoin before anything is written.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &Error{Err: fmt.Errorf("failed to open zip archive: %w", err)}
	}

	r := &zipReader{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if _, dup := r.files[f.Name]; dup {
			return nil, &Error{Name: f.Name, Err: fmt.Errorf("duplicate entry")}
		}
		r.files[f.Name] = f
		r.entries = append(r.entries, Entry{
			Name: f.Name,
			Size: int64(f.UncompressedSize64),
			Mode: f.Mode(),
		})
	}
	return r, nil
}

func (r *zipReader) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *zipReader) Open(name string) (io.ReadCloser, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, &Error{Name: name, Err: fmt.Errorf("not found in archive")}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &Error{Name: name, Err: fmt.Errorf("failed to open file in archive: %w", err)}
	}
	return &entryReader{ReadCloser: rc, name: name}, nil
}
