package install

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const (
	// EnvCacheDir overrides the cache directory
	EnvCacheDir = "PROTOCDL_CACHE_DIR"
	// EnvOutDir is the build-script output directory, used when no cache
	// directory is configured
	EnvOutDir = "OUT_DIR"
)

// ResolveCacheDir resolves the directory protoc releases are cached under.
// An explicit dir wins, then PROTOCDL_CACHE_DIR, then OUT_DIR, then the
// user cache directory.
func ResolveCacheDir(dir string) (string, error) {
	if dir == "" {
		if envDir := os.Getenv(EnvCacheDir); envDir != "" {
			dir = envDir
		} else if outDir := os.Getenv(EnvOutDir); outDir != "" {
			dir = filepath.Join(outDir, "protocdl")
		} else if userCache, err := os.UserCacheDir(); err == nil && userCache != "" {
			dir = filepath.Join(userCache, "protocdl")
		} else {
			return "", fmt.Errorf("could not determine cache directory: set %s or %s", EnvCacheDir, EnvOutDir)
		}
	}

	// Expand path (handles ~ and environment variables)
	dir = expandPath(dir)

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve cache directory")
	}

	return absPath, nil
}

// WriteFileAtomic writes everything from r to targetPath. The content goes to
// a temporary file in the same directory which is renamed into place, so a
// concurrent reader sees either the old file or the complete new one.
func WriteFileAtomic(targetPath string, r io.Reader, perm os.FileMode) error {
	targetDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create target directory")
	}

	tmpFile, err := os.CreateTemp(targetDir, "."+filepath.Base(targetPath)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()

	// Clean up on error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to write file")
	}

	// CreateTemp uses 0600; the archive format does not carry a reliable mode
	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to set permissions")
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to flush file")
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary file")
	}

	if err := atomicInstall(tmpPath, targetPath); err != nil {
		return err
	}

	success = true
	return nil
}

// ReplaceDir moves a fully populated sourceDir to targetDir. An existing
// targetDir is renamed aside, replaced and then removed, so readers see either
// the old tree or the new one and never a mix.
func ReplaceDir(sourceDir, targetDir string) error {
	parent := filepath.Dir(targetDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	var err error
	// Another process may put a directory back between the two renames
	for attempt := 0; attempt < 3; attempt++ {
		if err = os.Rename(sourceDir, targetDir); err == nil {
			return nil
		}
		if _, statErr := os.Lstat(targetDir); statErr != nil {
			break
		}

		aside, tmpErr := os.MkdirTemp(parent, "."+filepath.Base(targetDir)+"-old-*")
		if tmpErr != nil {
			return errors.Wrap(tmpErr, "failed to create temporary directory")
		}
		if mvErr := os.Rename(targetDir, filepath.Join(aside, "old")); mvErr != nil && !os.IsNotExist(mvErr) {
			os.RemoveAll(aside)
			return errors.Wrap(mvErr, "failed to move existing directory aside")
		}
		err = os.Rename(sourceDir, targetDir)
		os.RemoveAll(aside)
		if err == nil {
			return nil
		}
	}
	return errors.Wrap(err, "failed to install directory")
}

// atomicInstall performs an atomic file replacement
func atomicInstall(sourcePath, targetPath string) error {
	// On Unix, rename is atomic
	if err := os.Rename(sourcePath, targetPath); err != nil {
		// On Windows or cross-device, fall back to remove + rename
		if runtime.GOOS == "windows" || os.IsExist(err) {
			if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, "failed to remove existing file")
			}
			if err := os.Rename(sourcePath, targetPath); err != nil {
				return errors.Wrap(err, "failed to install file")
			}
		} else {
			return errors.Wrap(err, "failed to install file")
		}
	}
	return nil
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	// Expand ~ to HOME
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			path = filepath.Join(home, path[2:])
		}
	}

	// Expand environment variables
	path = os.ExpandEnv(path)

	return path
}
