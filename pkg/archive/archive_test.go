package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/binary-install/protocdl/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type testFile struct {
	Name string
	Body string
	Mode fs.FileMode
}

func createTestZip(t *testing.T, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		header := &zip.FileHeader{Name: f.Name, Method: zip.Deflate}
		if f.Mode != 0 {
			header.SetMode(f.Mode)
		}
		w, err := zw.CreateHeader(header)
		require.NoError(t, err)
		if !strings.HasSuffix(f.Name, "/") {
			_, err = w.Write([]byte(f.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func createTestTar(t *testing.T, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		header := &tar.Header{Name: f.Name, Mode: 0644, Size: int64(len(f.Body)), Typeflag: tar.TypeReg}
		if strings.HasSuffix(f.Name, "/") {
			header.Typeflag = tar.TypeDir
			header.Mode = 0755
			header.Size = 0
		}
		require.NoError(t, tw.WriteHeader(header))
		if header.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(f.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func createTestTarGz(t *testing.T, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(createTestTar(t, files...))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func createTestTarXz(t *testing.T, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = xw.Write(createTestTar(t, files...))
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func createArchive(t *testing.T, format Format, files ...testFile) []byte {
	t.Helper()
	switch format {
	case FormatTarGz:
		return createTestTarGz(t, files...)
	case FormatTarXz:
		return createTestTarXz(t, files...)
	default:
		return createTestZip(t, files...)
	}
}

func protocDistribution() []testFile {
	return []testFile{
		{Name: "bin/", Mode: fs.ModeDir | 0755},
		{Name: "bin/protoc", Body: "#!/bin/sh\necho libprotoc 31.0\n", Mode: 0755},
		{Name: "include/", Mode: fs.ModeDir | 0755},
		{Name: "include/google/protobuf/duration.proto", Body: `syntax = "proto3";`},
		{Name: "include/google/protobuf/timestamp.proto", Body: `syntax = "proto3";`},
		{Name: "readme.txt", Body: "Protocol Buffers"},
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{filename: "https://github.com/x/protoc-31.0-linux-x86_64.zip", want: FormatZip},
		{filename: "PROTOC.ZIP", want: FormatZip},
		{filename: "tool.tar.gz", want: FormatTarGz},
		{filename: "tool.tgz", want: FormatTarGz},
		{filename: "tool.tar.xz", want: FormatTarXz},
		{filename: "tool.7z", wantErr: true},
		{filename: "protoc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrArchive))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFileRoundTrip(t *testing.T) {
	files := protocDistribution()
	payload := files[1].Body
	wantSum := sha256.Sum256([]byte(payload))

	for _, format := range []Format{FormatZip, FormatTarGz, FormatTarXz} {
		t.Run(string(format), func(t *testing.T) {
			r, err := Open(format, createArchive(t, format, files...))
			require.NoError(t, err)

			destDir := t.TempDir()
			path, err := NewExtractor().ExtractFile(r, "bin/protoc", destDir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(destDir, "bin", "protoc"), path)

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, wantSum, sha256.Sum256(content))

			if runtime.GOOS != "windows" {
				info, err := os.Stat(path)
				require.NoError(t, err)
				assert.Equal(t, fs.FileMode(0755), info.Mode().Perm())
			}
		})
	}
}

func TestExtractFileSetsExecutableBitWithoutArchiveMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit on windows")
	}
	data := createTestZip(t, testFile{Name: "bin/protoc", Body: "binary"})
	r, err := OpenZip(data)
	require.NoError(t, err)

	path, err := NewExtractor().ExtractFile(r, "bin/protoc", t.TempDir())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0111)
}

func TestExtractFileErrors(t *testing.T) {
	tests := []struct {
		name   string
		files  []testFile
		member string
	}{
		{
			name:   "member missing",
			files:  []testFile{{Name: "bin/protoc-gen-go", Body: "x"}},
			member: "bin/protoc",
		},
		{
			name:   "member is a directory",
			files:  []testFile{{Name: "bin/protoc/", Mode: fs.ModeDir | 0755}},
			member: "bin/protoc/",
		},
		{
			name:   "member is a symlink",
			files:  []testFile{{Name: "bin/protoc", Body: "/etc/passwd", Mode: fs.ModeSymlink | 0777}},
			member: "bin/protoc",
		},
		{
			name:   "traversal in member",
			files:  []testFile{{Name: "../../evil", Body: "x"}},
			member: "../../evil",
		},
		{
			name: "traversal in another entry",
			files: []testFile{
				{Name: "bin/protoc", Body: "ok"},
				{Name: "include/../../../escaped", Body: "x"},
			},
			member: "bin/protoc",
		},
		{
			name:   "absolute entry",
			files:  []testFile{{Name: "bin/protoc", Body: "ok"}, {Name: "/tmp/evil", Body: "x"}},
			member: "bin/protoc",
		},
		{
			name:   "backslash entry",
			files:  []testFile{{Name: "bin/protoc", Body: "ok"}, {Name: "..\\..\\evil", Body: "x"}},
			member: "bin/protoc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			destDir := filepath.Join(root, "dest")

			r, err := OpenZip(createTestZip(t, tt.files...))
			require.NoError(t, err)

			_, err = NewExtractor().ExtractFile(r, tt.member, destDir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrArchive), "error %v should match ErrArchive", err)

			// nothing was written, inside or outside the destination
			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestOpenZipErrors(t *testing.T) {
	_, err := OpenZip([]byte("definitely not a zip file"))
	assert.True(t, errors.Is(err, ErrArchive))

	data := createTestZip(t, testFile{Name: "bin/protoc", Body: "a"}, testFile{Name: "bin/protoc", Body: "b"})
	_, err = OpenZip(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchive))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestOpenTarErrors(t *testing.T) {
	_, err := OpenTarGz([]byte("not gzip"))
	assert.True(t, errors.Is(err, ErrArchive))

	_, err = OpenTarXz([]byte("not xz"))
	assert.True(t, errors.Is(err, ErrArchive))

	dup := testFile{Name: "bin/protoc", Body: "x"}
	_, err = OpenTarXz(createTestTarXz(t, dup, dup))
	assert.True(t, errors.Is(err, ErrArchive))

	_, err = Open(Format("rar"), nil)
	assert.True(t, errors.Is(err, ErrArchive))
}

func TestExtractFileCorruptedEntry(t *testing.T) {
	data := createTestZip(t, testFile{Name: "bin/protoc", Body: strings.Repeat("protoc ", 1000)})

	// Corrupt the compressed stream of the only entry, leaving the central
	// directory intact so the archive still opens.
	corrupted := append([]byte(nil), data...)
	for i := 40; i < 60; i++ {
		corrupted[i] ^= 0xff
	}

	r, err := OpenZip(corrupted)
	require.NoError(t, err)

	destDir := t.TempDir()
	_, err = NewExtractor().ExtractFile(r, "bin/protoc", destDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchive), "error %v should match ErrArchive", err)
	assert.NoFileExists(t, filepath.Join(destDir, "bin", "protoc"))

	entries, err := os.ReadDir(filepath.Join(destDir, "bin"))
	if err == nil {
		assert.Empty(t, entries, "temporary files must be removed")
	}
}

func TestExtractTree(t *testing.T) {
	r, err := OpenZip(createTestZip(t, protocDistribution()...))
	require.NoError(t, err)

	destDir := t.TempDir()
	x := NewExtractor()
	includeDir, err := x.ExtractTree(r, "include/", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "include"), includeDir)

	content, err := os.ReadFile(filepath.Join(includeDir, "google", "protobuf", "duration.proto"))
	require.NoError(t, err)
	assert.Equal(t, `syntax = "proto3";`, string(content))
	assert.FileExists(t, filepath.Join(includeDir, "google", "protobuf", "timestamp.proto"))
	assert.NoFileExists(t, filepath.Join(destDir, "readme.txt"))

	// A second extraction replaces whatever is on disk
	tampered := filepath.Join(includeDir, "google", "protobuf", "duration.proto")
	require.NoError(t, os.WriteFile(tampered, []byte("TAMPERED"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(includeDir, "stale.proto"), []byte("old"), 0644))

	again, err := x.ExtractTree(r, "include", destDir)
	require.NoError(t, err)
	assert.Equal(t, includeDir, again)

	content, err = os.ReadFile(tampered)
	require.NoError(t, err)
	assert.Equal(t, `syntax = "proto3";`, string(content))
	assert.NoFileExists(t, filepath.Join(includeDir, "stale.proto"))

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "temporary directory left behind: %s", e.Name())
	}
}

func TestExtractTreeErrors(t *testing.T) {
	t.Run("no files under prefix", func(t *testing.T) {
		r, err := OpenZip(createTestZip(t, testFile{Name: "bin/protoc", Body: "x"}))
		require.NoError(t, err)

		destDir := t.TempDir()
		_, err = NewExtractor().ExtractTree(r, "include/", destDir)
		assert.True(t, errors.Is(err, ErrArchive))

		entries, err := os.ReadDir(destDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("traversal under prefix", func(t *testing.T) {
		root := t.TempDir()
		destDir := filepath.Join(root, "dest")
		r, err := OpenZip(createTestZip(t,
			testFile{Name: "include/a.proto", Body: "x"},
			testFile{Name: "include/../../b.proto", Body: "x"},
		))
		require.NoError(t, err)

		_, err = NewExtractor().ExtractTree(r, "include/", destDir)
		assert.True(t, errors.Is(err, ErrArchive))
		assert.NoFileExists(t, filepath.Join(root, "b.proto"))
		assert.NoDirExists(t, destDir)
	})
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		entry   string
		want    string
		wantErr bool
	}{
		{name: "simple", entry: "bin/protoc", want: filepath.Join(base, "bin", "protoc")},
		{name: "directory", entry: "include/", want: filepath.Join(base, "include")},
		{name: "dot segment", entry: "./bin/protoc", want: filepath.Join(base, "bin", "protoc")},
		{name: "empty", entry: "", wantErr: true},
		{name: "parent", entry: "..", wantErr: true},
		{name: "leading parent", entry: "../evil", wantErr: true},
		{name: "nested parent", entry: "bin/../../evil", wantErr: true},
		{name: "harmless looking parent", entry: "bin/../protoc", wantErr: true},
		{name: "absolute", entry: "/etc/passwd", wantErr: true},
		{name: "backslash", entry: "bin\\..\\..\\evil", wantErr: true},
		{name: "destination itself", entry: ".", wantErr: true},
		{name: "dots in name are fine", entry: "bin/..protoc", want: filepath.Join(base, "bin", "..protoc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoin(base, tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrArchive))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeJoinRejectsSymlinkedDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on Windows")
	}
	root := t.TempDir()
	outside := filepath.Join(root, "outside")
	destDir := filepath.Join(root, "dest")
	require.NoError(t, os.MkdirAll(outside, 0755))
	require.NoError(t, os.MkdirAll(destDir, 0755))
	require.NoError(t, os.Symlink(outside, filepath.Join(destDir, "bin")))

	_, err := SafeJoin(destDir, "bin/protoc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchive))

	_, err = SafeJoin(destDir, "bin/nested/protoc")
	assert.True(t, errors.Is(err, ErrArchive))

	r, err := OpenZip(createTestZip(t, testFile{Name: "bin/protoc", Body: "x"}))
	require.NoError(t, err)
	_, err = NewExtractor().ExtractFile(r, "bin/protoc", destDir)
	assert.True(t, errors.Is(err, ErrArchive))
	assert.NoFileExists(t, filepath.Join(outside, "protoc"))
}

func TestSafeJoinFollowsSymlinkInsideDestination(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on Windows")
	}
	destDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(destDir, "real"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(destDir, "real"), filepath.Join(destDir, "bin")))

	got, err := SafeJoin(destDir, "bin/protoc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "bin", "protoc"), got)
}

func TestCheckMember(t *testing.T) {
	r, err := OpenZip(createTestZip(t, protocDistribution()...))
	require.NoError(t, err)

	assert.NoError(t, CheckMember(r, "bin/protoc"))
	assert.True(t, errors.Is(CheckMember(r, "bin/protoc.exe"), ErrArchive))
	assert.True(t, errors.Is(CheckMember(r, "include/"), ErrArchive))
}

func TestTreeEntries(t *testing.T) {
	r, err := OpenZip(createTestZip(t, protocDistribution()...))
	require.NoError(t, err)

	entries, err := TreeEntries(r, "include")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		"include/google/protobuf/duration.proto",
		"include/google/protobuf/timestamp.proto",
	}, names)

	binaryOnly, err := OpenZip(createTestZip(t, testFile{Name: "bin/protoc", Body: "x"}))
	require.NoError(t, err)
	entries, err = TreeEntries(binaryOnly, "include/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	withLink, err := OpenZip(createTestZip(t,
		testFile{Name: "include/a.proto", Body: "x"},
		testFile{Name: "include/b.proto", Body: "/etc/passwd", Mode: fs.ModeSymlink | 0777},
	))
	require.NoError(t, err)
	_, err = TreeEntries(withLink, "include/")
	assert.True(t, errors.Is(err, ErrArchive))
}

func TestTreeDigestMatchesExtractedTree(t *testing.T) {
	for _, format := range []Format{FormatZip, FormatTarGz, FormatTarXz} {
		t.Run(string(format), func(t *testing.T) {
			r, err := Open(format, createArchive(t, format, protocDistribution()...))
			require.NoError(t, err)

			want, err := TreeDigest(r, "include/")
			require.NoError(t, err)

			includeDir, err := NewExtractor().ExtractTree(r, "include/", t.TempDir())
			require.NoError(t, err)
			got, err := verify.SumTree(includeDir)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	binaryOnly, err := OpenZip(createTestZip(t, testFile{Name: "bin/protoc", Body: "x"}))
	require.NoError(t, err)
	_, err = TreeDigest(binaryOnly, "include/")
	assert.True(t, errors.Is(err, ErrArchive))
}
