package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DenyPathsEnvVar adds comma separated deny patterns on top of the config file
	DenyPathsEnvVar = "MODELMETA_DENY_PATHS"

	configDirName  = ".mcp-modelmeta"
	configFileName = "security.yaml"
)

// DefaultDenyFiles are credential locations no model inspection should ever need to read
var DefaultDenyFiles = []string{
	"~/.ssh",
	"~/.aws",
	"~/.gnupg",
	"~/.config/gcloud",
	"~/.kube/config",
	"~/.netrc",
	"/etc/shadow",
}

// Config is the on-disk access control configuration
type Config struct {
	Version       string        `yaml:"version"`
	AccessControl AccessControl `yaml:"access_control"`
}

// AccessControl defines file access restrictions
type AccessControl struct {
	// UseDefaults keeps DefaultDenyFiles in force alongside DenyFiles
	UseDefaults *bool    `yaml:"use_defaults,omitempty"`
	DenyFiles   []string `yaml:"deny_files"`
}

// DefaultConfigPath returns ~/.mcp-modelmeta/security.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, configDirName, configFileName), nil
}

// LoadConfig reads the config file at path. A missing file yields an empty config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read security config %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse security config %s: %w", path, err)
	}
	return &config, nil
}

// DenyPatterns merges the defaults, the config file and MODELMETA_DENY_PATHS
func (c *Config) DenyPatterns() []string {
	var patterns []string
	if c.AccessControl.UseDefaults == nil || *c.AccessControl.UseDefaults {
		patterns = append(patterns, DefaultDenyFiles...)
	}
	patterns = append(patterns, c.AccessControl.DenyFiles...)
	patterns = append(patterns, envDenyPatterns()...)
	return dedupe(patterns)
}

func envDenyPatterns() []string {
	value := os.Getenv(DenyPathsEnvVar)
	if value == "" {
		return nil
	}

	var patterns []string
	for pattern := range strings.SplitSeq(value, ",") {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}

func dedupe(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := patterns[:0]
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
