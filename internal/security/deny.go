package security

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DenyListChecker decides whether a file path falls under a denied location
type DenyListChecker struct {
	mutex    sync.RWMutex
	patterns []string
}

// NewDenyListChecker creates a checker for the given patterns. Patterns may be
// directories, files or filepath.Match globs, and may start with ~/.
func NewDenyListChecker(patterns []string) *DenyListChecker {
	d := &DenyListChecker{}
	d.UpdateDenyList(patterns)
	return d
}

// IsFileBlocked checks if a file path is blocked by deny rules
func (d *DenyListChecker) IsFileBlocked(filePath string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	// Expand and clean the requested path
	cleanPath := filepath.Clean(expandHomePath(filePath))
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		absPath = cleanPath
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}

	for _, pattern := range d.patterns {
		if pathMatches(absPath, pattern) || pathMatches(cleanPath, pattern) {
			return true
		}
	}
	return false
}

// UpdateDenyList replaces the deny patterns
func (d *DenyListChecker) UpdateDenyList(patterns []string) {
	compiled := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			compiled = append(compiled, filepath.Clean(expandHomePath(p)))
		}
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.patterns = compiled
}

// GetDenyList returns a copy of the expanded deny patterns
func (d *DenyListChecker) GetDenyList() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	patterns := make([]string, len(d.patterns))
	copy(patterns, d.patterns)
	return patterns
}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// pathMatches checks if a path is the pattern, lives under it or matches it as a glob
func pathMatches(path, pattern string) bool {
	if path == pattern {
		return true
	}

	// Check if the pattern is a parent directory of the path
	if strings.HasPrefix(path, pattern+string(filepath.Separator)) {
		return true
	}

	// Glob pattern match against the full path and the base name
	if matched, _ := filepath.Match(pattern, path); matched {
		return true
	}
	if !strings.ContainsRune(pattern, filepath.Separator) {
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}

	return false
}
