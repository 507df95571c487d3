package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigFileNames are the configuration file names searched for, in order
// of preference within a directory.
var ConfigFileNames = []string{"kestrel.toml", "kestrel.yaml", "kestrel.yml"}

// Format is the encoding of a configuration file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FileMeta describes a loaded configuration file.
type FileMeta struct {
	Path   string
	Format Format

	// UnknownKeys lists keys that did not map to any configuration field.
	// TOML keys are dotted paths; YAML entries carry the decoder's line
	// reference.
	UnknownKeys []string

	// Defined holds the dotted path of every key the file sets, such as
	// "server.max_concurrent_reviews", including keys set to a zero value.
	Defined map[string]bool
}

// IsDefined reports whether the file sets the key at the dotted path. It is
// false for a nil FileMeta.
func (m *FileMeta) IsDefined(path string) bool {
	return m != nil && m.Defined[path]
}

// FormatForPath picks the decoder from the file extension. Anything that is
// not .yaml or .yml is read as TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// FindConfigFile walks up from the given directory to find a configuration
// file. Returns the absolute path to the file, or an empty string if none
// was found. Stops at the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root.
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the file at path as TOML or YAML depending on its
// extension and returns the configuration and file metadata.
func LoadFromFile(path string) (*Config, *FileMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	meta := &FileMeta{Path: path, Format: FormatForPath(path)}
	var cfg *Config
	if meta.Format == FormatYAML {
		cfg, meta.UnknownKeys, err = decodeYAML(data)
		if err == nil {
			meta.Defined, err = yamlKeys(data)
		}
	} else {
		cfg, meta.UnknownKeys, meta.Defined, err = decodeTOML(data)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, meta, nil
}

func decodeTOML(data []byte) (*Config, []string, map[string]bool, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	defined := make(map[string]bool)
	for _, key := range md.Keys() {
		defined[key.String()] = true
	}
	return &cfg, unknown, defined, nil
}

// yamlKeys returns the dotted paths of every mapping key in the document.
func yamlKeys(data []byte) (map[string]bool, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	defined := make(map[string]bool)
	if len(doc.Content) > 0 {
		collectYAMLKeys(doc.Content[0], "", defined)
	}
	return defined, nil
}

func collectYAMLKeys(n *yaml.Node, prefix string, defined map[string]bool) {
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		path := n.Content[i].Value
		if prefix != "" {
			path = prefix + "." + path
		}
		defined[path] = true
		collectYAMLKeys(n.Content[i+1], path, defined)
	}
}

// decodeYAML decodes with KnownFields so that unknown keys are reported.
// yaml.v3 still fills every known field when it does, so the unknown-key
// messages are split out as warnings and only other type errors fail.
func decodeYAML(data []byte) (*Config, []string, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(&cfg)
	if errors.Is(err, io.EOF) {
		// Empty document.
		return &cfg, nil, nil
	}

	var typeErr *yaml.TypeError
	if err != nil && !errors.As(err, &typeErr) {
		return nil, nil, err
	}

	var unknown, problems []string
	if typeErr != nil {
		for _, msg := range typeErr.Errors {
			if strings.Contains(msg, "not found in type") {
				unknown = append(unknown, msg)
				continue
			}
			problems = append(problems, msg)
		}
	}
	if len(problems) > 0 {
		return nil, nil, fmt.Errorf("yaml: %s", strings.Join(problems, "; "))
	}
	return &cfg, unknown, nil
}
