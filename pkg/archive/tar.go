package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"

	"github.com/ulikunitz/xz"
)

type tarReader struct {
	entries []Entry
	data    map[string][]byte
}

// OpenTarGz reads a gzip-compressed tar archive held in memory
func OpenTarGz(data []byte) (Reader, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to create gzip reader: %w", err)}
	}
	defer gzReader.Close()
	return readTar(gzReader)
}

// OpenTarXz reads an xz-compressed tar archive held in memory
func OpenTarXz(data []byte) (Reader, error) {
	xzReader, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to create xz reader: %w", err)}
	}
	return readTar(xzReader)
}

func readTar(stream io.Reader) (Reader, error) {
	r := &tarReader{data: make(map[string][]byte)}
	tr := tar.NewReader(stream)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("failed to read tar header: %w", err)}
		}
		if _, dup := r.data[header.Name]; dup {
			return nil, &Error{Name: header.Name, Err: fmt.Errorf("duplicate entry")}
		}

		var content []byte
		if header.Typeflag == tar.TypeReg {
			content, err = io.ReadAll(tr)
			if err != nil {
				return nil, &Error{Name: header.Name, Err: fmt.Errorf("failed to read entry: %w", err)}
			}
		}
		r.data[header.Name] = content
		r.entries = append(r.entries, Entry{
			Name: header.Name,
			Size: header.Size,
			Mode: tarMode(header),
		})
	}
	return r, nil
}

func tarMode(header *tar.Header) fs.FileMode {
	perm := fs.FileMode(header.Mode).Perm()
	switch header.Typeflag {
	case tar.TypeReg:
		return perm
	case tar.TypeDir:
		return fs.ModeDir | perm
	case tar.TypeSymlink:
		return fs.ModeSymlink | perm
	default:
		return fs.ModeIrregular | perm
	}
}

func (r *tarReader) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *tarReader) Open(name string) (io.ReadCloser, error) {
	content, ok := r.data[name]
	if !ok {
		return nil, &Error{Name: name, Err: fmt.Errorf("not found in archive")}
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
