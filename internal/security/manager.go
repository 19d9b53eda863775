package security

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Global deny list instance
var (
	globalChecker      *DenyListChecker
	globalManagerMutex sync.RWMutex
)

// InitGlobalDenyList loads the security config and installs the global deny list.
// A broken config file is logged and replaced by the defaults so startup never fails.
func InitGlobalDenyList(logger *logrus.Logger) {
	config := &Config{}
	if path, err := DefaultConfigPath(); err == nil {
		loaded, err := LoadConfig(path)
		if err != nil {
			logger.WithError(err).Warn("Failed to load security config, using default deny list")
		} else {
			config = loaded
		}
	}

	patterns := config.DenyPatterns()
	SetGlobalDenyList(patterns)
	logger.WithField("patterns", len(patterns)).Debug("File access deny list initialised")
}

// SetGlobalDenyList replaces the global deny list
func SetGlobalDenyList(patterns []string) {
	globalManagerMutex.Lock()
	defer globalManagerMutex.Unlock()
	globalChecker = NewDenyListChecker(patterns)
}

// ResetGlobalDenyList removes the global deny list, allowing all paths
func ResetGlobalDenyList() {
	globalManagerMutex.Lock()
	defer globalManagerMutex.Unlock()
	globalChecker = nil
}

// CheckFileAccess checks file access via the global deny list
func CheckFileAccess(filePath string) error {
	globalManagerMutex.RLock()
	checker := globalChecker
	globalManagerMutex.RUnlock()

	if checker == nil {
		return nil
	}

	if checker.IsFileBlocked(filePath) {
		logrus.WithField("path", filePath).Debug("File access denied by deny list")
		return fmt.Errorf("access denied: %s is in the deny list. This is an access control policy that cannot be overridden by agents. The user may change this behaviour in ~/.mcp-modelmeta/security.yaml if required", filePath)
	}
	return nil
}
