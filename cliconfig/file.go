package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildkite/netbox-secrets/internal/osutil"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File is a key=value configuration file. Keys are flag names, e.g.
//
//	host="https://netbox.example.com"
//	private-key-file=~/.ssh/netbox_rsa
//	log-level=info
//
// Lines may be commented with #, quoted, and prefixed with export. Files
// ending in .yml or .yaml are read as a YAML mapping of the same keys.
type File struct {
	// The path to the file
	Path string

	// A map of key/values that was loaded from the file
	Config map[string]string
}

func (f *File) Load() error {
	absolutePath, err := f.AbsolutePath()
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", f.Path, err)
	}

	var config map[string]string
	switch strings.ToLower(filepath.Ext(absolutePath)) {
	case ".yml", ".yaml":
		config, err = readYAML(absolutePath)
	default:
		config, err = godotenv.Read(absolutePath)
	}
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", f.Path, err)
	}

	f.Config = config
	return nil
}

// readYAML reads a flat YAML mapping. Sequences become comma separated
// values, the same as a list in a key=value file.
func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	config := make(map[string]string, len(raw))
	for key, node := range raw {
		switch node.Kind {
		case yaml.ScalarNode:
			config[key] = node.Value
		case yaml.SequenceNode:
			items := make([]string, 0, len(node.Content))
			for _, item := range node.Content {
				if item.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("line %d: %s must be a list of scalars", node.Line, key)
				}
				items = append(items, item.Value)
			}
			config[key] = strings.Join(items, ",")
		default:
			return nil, fmt.Errorf("line %d: %s must be a scalar or a list", node.Line, key)
		}
	}
	return config, nil
}

func (f File) AbsolutePath() (string, error) {
	return osutil.NormalizeFilePath(f.Path)
}

func (f File) Exists() bool {
	absolutePath, err := f.AbsolutePath()
	if err != nil {
		return false
	}

	info, err := os.Stat(absolutePath)
	return err == nil && !info.IsDir()
}

// LoadEnvFile sets the variables in a dotenv file that aren't already set in
// the environment.
func LoadEnvFile(path string) error {
	absolutePath, err := osutil.NormalizeFilePath(path)
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", path, err)
	}

	if err := godotenv.Load(absolutePath); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
