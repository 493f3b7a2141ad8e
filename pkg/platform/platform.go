package platform

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// ErrUnsupportedPlatform is returned when the host has no protoc release.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Platform is an operating system and CPU architecture pair, named the way
// protoc release assets name it.
type Platform string

const (
	LinuxX86_64   Platform = "linux-x86_64"
	LinuxAArch64  Platform = "linux-aarch_64"
	OSXX86_64     Platform = "osx-x86_64"
	OSXAArch64    Platform = "osx-aarch_64"
	WindowsX86_64 Platform = "win64"
)

var all = []Platform{LinuxX86_64, LinuxAArch64, OSXX86_64, OSXAArch64, WindowsX86_64}

// All returns every supported platform in a stable order
func All() []Platform {
	out := make([]Platform, len(all))
	copy(out, all)
	return out
}

// String returns the release tag
func (p Platform) String() string {
	return string(p)
}

// Valid reports whether p is one of the supported platforms
func (p Platform) Valid() bool {
	for _, candidate := range all {
		if p == candidate {
			return true
		}
	}
	return false
}

// ExecutableName returns the file name of the protoc binary on this platform
func (p Platform) ExecutableName() string {
	if p == WindowsX86_64 {
		return "protoc.exe"
	}
	return "protoc"
}

// GOOS returns the Go operating system name for the platform
func (p Platform) GOOS() string {
	switch p {
	case LinuxX86_64, LinuxAArch64:
		return "linux"
	case OSXX86_64, OSXAArch64:
		return "darwin"
	case WindowsX86_64:
		return "windows"
	default:
		return ""
	}
}

// Parse converts a release tag such as "osx-aarch_64" into a Platform
func Parse(tag string) (Platform, error) {
	p := Platform(tag)
	if !p.Valid() {
		return "", errors.Wrapf(ErrUnsupportedPlatform, "unknown platform tag %q", tag)
	}
	return p, nil
}

// Identify returns the platform of the running host
func Identify() (Platform, error) {
	return Detect(runtime.GOOS, runtime.GOARCH)
}

// Detect maps a GOOS/GOARCH pair to a Platform. There is no fallback:
// a host without an exact match is unsupported.
func Detect(goos, goarch string) (Platform, error) {
	switch goos {
	case "linux":
		switch goarch {
		case "amd64":
			return LinuxX86_64, nil
		case "arm64":
			return LinuxAArch64, nil
		}
	case "darwin":
		switch goarch {
		case "amd64":
			return OSXX86_64, nil
		case "arm64":
			return OSXAArch64, nil
		}
	case "windows":
		if goarch == "amd64" {
			return WindowsX86_64, nil
		}
	}
	return "", errors.Wrap(ErrUnsupportedPlatform, fmt.Sprintf("%s/%s", goos, goarch))
}
