package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ToolErrorLogEntry represents a logged tool error
type ToolErrorLogEntry struct {
	Timestamp string         `json:"timestamp"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Error     string         `json:"error"`
	Transport string         `json:"transport,omitempty"`
}

// ToolErrorLogger appends failed tool calls to a rotating JSON lines file
type ToolErrorLogger struct {
	enabled  bool
	out      io.WriteCloser
	logger   *logrus.Logger
	mu       sync.Mutex
	filePath string
}

var (
	globalErrorLogger *ToolErrorLogger
	errorLoggerMu     sync.RWMutex
)

const (
	// ToolErrorLogEnvVar enables tool error logging when set to "true"
	ToolErrorLogEnvVar = "LOG_TOOL_ERRORS"

	// DefaultLogRetentionDays is the default number of days to retain error logs
	DefaultLogRetentionDays = 60

	maxErrorLogSizeMB  = 10
	maxErrorLogBackups = 5
)

// NewToolErrorLogger creates an enabled error logger writing to filePath
func NewToolErrorLogger(filePath string, logger *logrus.Logger) (*ToolErrorLogger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &ToolErrorLogger{
		enabled: true,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    maxErrorLogSizeMB,
			MaxBackups: maxErrorLogBackups,
			MaxAge:     DefaultLogRetentionDays,
			Compress:   true,
		},
		logger:   logger,
		filePath: filePath,
	}, nil
}

// InitGlobalErrorLogger initialises the global error logger from LOG_TOOL_ERRORS.
// The log lives in ~/.mcp-modelmeta/logs/tool-errors.log.
func InitGlobalErrorLogger(logger *logrus.Logger) error {
	errorLoggerMu.Lock()
	defer errorLoggerMu.Unlock()

	if globalErrorLogger != nil {
		return nil
	}

	if os.Getenv(ToolErrorLogEnvVar) != "true" {
		globalErrorLogger = &ToolErrorLogger{logger: logger}
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	l, err := NewToolErrorLogger(filepath.Join(homeDir, ".mcp-modelmeta", "logs", "tool-errors.log"), logger)
	if err != nil {
		return err
	}
	globalErrorLogger = l

	logger.Infof("Tool error logging enabled: %s", l.filePath)
	return nil
}

// GetGlobalErrorLogger returns the global error logger instance
func GetGlobalErrorLogger() *ToolErrorLogger {
	errorLoggerMu.RLock()
	defer errorLoggerMu.RUnlock()

	if globalErrorLogger == nil {
		// Return a disabled logger if not initialised
		return &ToolErrorLogger{}
	}
	return globalErrorLogger
}

// IsEnabled reports whether errors are written anywhere
func (l *ToolErrorLogger) IsEnabled() bool {
	return l.enabled && l.out != nil
}

// FilePath returns the log file location, empty when disabled
func (l *ToolErrorLogger) FilePath() string {
	return l.filePath
}

// LogToolError logs a tool execution error
func (l *ToolErrorLogger) LogToolError(toolName string, args map[string]any, err error, transport string) {
	if !l.IsEnabled() || err == nil {
		return
	}

	entry := ToolErrorLogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		ToolName:  toolName,
		Arguments: args,
		Error:     err.Error(),
		Transport: transport,
	}

	line, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		if l.logger != nil {
			l.logger.WithError(marshalErr).Warn("Failed to marshal tool error log entry")
		}
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, writeErr := l.out.Write(line); writeErr != nil && l.logger != nil {
		l.logger.WithError(writeErr).Warn("Failed to write tool error log entry")
	}
}

// Close releases the underlying log file
func (l *ToolErrorLogger) Close() error {
	if l.out == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
