package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sammcj/mcp-modelmeta/internal/tools"
	"github.com/sirupsen/logrus"
)

var (
	// toolRegistry is a map of tool names to tool implementations
	toolRegistry = make(map[string]tools.Tool) // Initialise here

	// disabledTools is a set of tool names to disable
	disabledTools = make(map[string]bool)

	// registryMutex guards both maps; tools register from init() but are read concurrently by the server
	registryMutex sync.RWMutex

	// logger is the shared logger instance
	logger *logrus.Logger
)

// Init initialises the registry and shared resources
func Init(l *logrus.Logger) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	logger = l

	// Parse DISABLED_TOOLS environment variable
	parseDisabledTools()
}

// parseDisabledTools parses the DISABLED_TOOLS environment variable
func parseDisabledTools() {
	// Clear the map first to ensure we start fresh
	disabledTools = make(map[string]bool)

	disabledEnv := os.Getenv("DISABLED_TOOLS")
	if disabledEnv == "" {
		return
	}

	for tool := range strings.SplitSeq(disabledEnv, ",") {
		tool = normaliseToolName(tool)
		if tool == "" {
			continue
		}
		disabledTools[tool] = true
		if logger != nil {
			logger.WithField("tool", tool).Debug("Tool disabled")
		}
	}

	if logger != nil && len(disabledTools) > 0 {
		logger.WithField("count", len(disabledTools)).Debug("Parsed disabled tools from environment")
	}
}

// normaliseToolName lowercases and trims a tool name, treating hyphens as underscores
func normaliseToolName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

func isDisabled(name string) bool {
	return disabledTools[normaliseToolName(name)]
}

// ShouldRegisterTool reports whether a tool is allowed by DISABLED_TOOLS
func ShouldRegisterTool(toolName string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return shouldRegister(toolName)
}

func shouldRegister(toolName string) bool {
	if isDisabled(toolName) {
		if logger != nil {
			logger.WithField("tool", toolName).Debug("Tool disabled via environment variable")
		}
		return false
	}
	return true
}

// Register adds a tool implementation to the registry. Disabled tools are still
// recorded so a later Init with a different DISABLED_TOOLS can expose them.
func Register(tool tools.Tool) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if toolRegistry == nil {
		toolRegistry = make(map[string]tools.Tool)
	}

	toolName := tool.Definition().Name
	toolRegistry[toolName] = tool

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"tool":     toolName,
			"disabled": isDisabled(toolName),
		}).Debug("Tool registered")
	}
}

// GetTool retrieves a tool by name, returns false if disabled
func GetTool(name string) (tools.Tool, bool) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	if isDisabled(name) {
		return nil, false
	}
	tool, ok := toolRegistry[name]
	return tool, ok
}

// GetTools returns all registered tools, excluding disabled ones
func GetTools() map[string]tools.Tool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	filteredTools := make(map[string]tools.Tool)
	for name, tool := range toolRegistry {
		if !shouldRegister(name) {
			continue
		}
		filteredTools[name] = tool
	}
	return filteredTools
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return logger
}

// GetEnabledToolNames returns a sorted list of enabled tool names
func GetEnabledToolNames() []string {
	names := make([]string, 0)
	for name := range GetTools() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolNamesWithExtendedHelp returns a sorted list of enabled tool names that provide extended help
func GetToolNamesWithExtendedHelp() []string {
	var names []string
	for name, tool := range GetTools() {
		if _, ok := tool.(tools.ExtendedHelpProvider); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DisplayNames maps each enabled tool name to its human readable title,
// falling back to the name when the tool sets no title annotation
func DisplayNames() map[string]string {
	names := make(map[string]string)
	for name, tool := range GetTools() {
		title := tool.Definition().Annotations.Title
		if title == "" {
			title = name
		}
		names[name] = title
	}
	return names
}
