package checksums

import (
	"fmt"
	"io"

	"github.com/binary-install/protocdl/pkg/catalog"
	"github.com/binary-install/protocdl/pkg/platform"
	"github.com/goccy/go-yaml"
)

// Format selects how entries are printed
type Format string

const (
	FormatGo   Format = "go"
	FormatYAML Format = "yaml"
)

var platformIdents = map[platform.Platform]string{
	platform.LinuxX86_64:   "platform.LinuxX86_64",
	platform.LinuxAArch64:  "platform.LinuxAArch64",
	platform.OSXX86_64:     "platform.OSXX86_64",
	platform.OSXAArch64:    "platform.OSXAArch64",
	platform.WindowsX86_64: "platform.WindowsX86_64",
}

type yamlEntry struct {
	Version  string `yaml:"version"`
	Platform string `yaml:"platform"`
	URL      string `yaml:"url"`
	SHA256   string `yaml:"sha256"`
}

// Write prints entries in the requested format
func Write(w io.Writer, format Format, entries []catalog.Entry) error {
	switch format {
	case FormatGo, "":
		return WriteGo(w, entries)
	case FormatYAML:
		return WriteYAML(w, entries)
	default:
		return fmt.Errorf("unknown format %q (want go or yaml)", format)
	}
}

// WriteGo prints entries as Release(...) lines ready for the catalog table
func WriteGo(w io.Writer, entries []catalog.Entry) error {
	for _, e := range entries {
		ident, ok := platformIdents[e.Platform]
		if !ok {
			return fmt.Errorf("unknown platform %q", e.Platform)
		}
		if _, err := fmt.Fprintf(w, "Release(%q, %s, %q),\n", e.Version, ident, e.SHA256.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML prints entries as a YAML sequence
func WriteYAML(w io.Writer, entries []catalog.Entry) error {
	out := make([]yamlEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, yamlEntry{
			Version:  e.Version,
			Platform: e.Platform.String(),
			URL:      e.URL,
			SHA256:   e.SHA256.String(),
		})
	}
	data, err := yaml.MarshalWithOptions(out, yaml.IndentSequence(true))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
