package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	modelcli "github.com/sammcj/mcp-modelmeta/internal/cli"
	"github.com/sammcj/mcp-modelmeta/internal/modelmeta"
	"github.com/sammcj/mcp-modelmeta/internal/registry"
	"github.com/sammcj/mcp-modelmeta/internal/security"
	"github.com/sammcj/mcp-modelmeta/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	// Import all tool packages to register them
	_ "github.com/sammcj/mcp-modelmeta/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
var (
	serverLogFile atomic.Pointer[lumberjack.Logger]
	isStdioMode   atomic.Bool
)

const (
	// DefaultMemoryLimit is the default memory limit for the Go application (2GB)
	DefaultMemoryLimit = 2 * 1024 * 1024 * 1024

	// MemoryLimitEnvVar overrides DefaultMemoryLimit
	MemoryLimitEnvVar = "MODELMETA_MEMORY_LIMIT"
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the appropriate logrus level.
// Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		return logrus.WarnLevel
	}

	switch strings.ToLower(strings.TrimSpace(logLevelStr)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// setMemoryLimit configures the Go runtime memory limit. Whole model files are
// read into memory, so the soft limit keeps large checkpoints from running away.
func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit

	if memLimitStr := os.Getenv(MemoryLimitEnvVar); memLimitStr != "" {
		if parsed, err := strconv.ParseInt(memLimitStr, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}

	debug.SetMemoryLimit(memLimit)
}

func main() {
	// A missing .env is the normal case
	_ = godotenv.Load()

	setMemoryLimit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discard output until the transport mode is known
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	registry.Init(logger)

	defer performCleanup(logger)

	app := &cli.Command{
		Name:    "mcp-modelmeta",
		Usage:   "MCP server for inspecting machine-learning model files",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
				Sources: cli.EnvVars("MODELMETA_TRANSPORT"),
			},
			&cli.StringFlag{
				Name:    "port",
				Value:   "18080",
				Usage:   "Port to use for HTTP transports (SSE and Streamable HTTP)",
				Sources: cli.EnvVars("MODELMETA_PORT"),
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "Authentication token for Streamable HTTP transport (optional)",
				Sources: cli.EnvVars("MODELMETA_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&cli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for Streamable HTTP transport",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("mcp-modelmeta version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			cliCommand(logger),
			extractCommand(logger),
			{
				Name:  "security-config-validate",
				Usage: "Validate the security configuration file and print the effective deny list",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config-path",
						Usage: "Path to security configuration file (default: ~/.mcp-modelmeta/security.yaml)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return handleSecurityConfigValidate(cmd)
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			port := cmd.String("port")
			baseURL := cmd.String("base-url")

			isStdioMode.Store(transport == "stdio")
			configureServerLogging(logger)

			if err := tools.InitGlobalErrorLogger(logger); err != nil {
				logger.WithError(err).Debug("Failed to initialise tool error logger")
				if transport != "stdio" {
					logger.WithError(err).Warn("Failed to initialise tool error logger")
				}
			}

			security.InitGlobalDenyList(logger)

			if transport != "stdio" {
				logger.Infof("Starting mcp-modelmeta version %s (commit: %s, built: %s)",
					Version, Commit, BuildDate)
			}

			mcpSrv := newMCPServer(logger, transport)

			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(mcpSrv)
			case "sse":
				logger.WithField("port", port).Debug("Starting SSE server")
				sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(baseURL+"/sse"))
				return sseServer.Start(":" + port)
			case "http":
				return startStreamableHTTPServer(cliCtx, cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// Nothing may reach stdout or stderr in stdio mode
		if !isStdioMode.Load() {
			logger.Fatalf("Error: %v", err)
		}
		os.Exit(1)
	}
}

// configureServerLogging sends server logs to a rotating file so stdio stays
// clean for the protocol. Without a home directory, stdio mode discards logs
// and the HTTP transports fall back to stderr.
func configureServerLogging(logger *logrus.Logger) {
	logLevel := parseLogLevel()
	if isStdioMode.Load() && logLevel < logrus.WarnLevel {
		logLevel = logrus.WarnLevel
	}
	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		var out io.Writer = os.Stderr
		if isStdioMode.Load() {
			out = io.Discard
		}
		logger.SetOutput(out)
		logrus.SetOutput(out)
		return
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(homeDir, ".mcp-modelmeta", "logs", "mcp-modelmeta.log"),
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     28,
	}
	serverLogFile.Store(file)
	logger.SetOutput(file)
	logrus.SetOutput(file)
	logger.WithField("level", logLevel.String()).Debug("Logging configured")
}

// newMCPServer registers every enabled tool with a new MCP server
func newMCPServer(logger *logrus.Logger, transport string) *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer("mcp-modelmeta", Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	enabledTools := registry.GetTools()
	logger.WithField("tool_count", len(enabledTools)).Debug("MCP server created, registering tools")

	for name, tool := range enabledTools {
		if transport != "stdio" {
			logger.Infof("Registering tool: %s", name)
		}
		mcpSrv.AddTool(tool.Definition(), toolHandler(name, transport, logger))
	}
	return mcpSrv
}

// toolHandler resolves the tool on every call so DISABLED_TOOLS is honoured consistently
func toolHandler(name, transport string, logger *logrus.Logger) mcpserver.ToolHandlerFunc {
	return func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		currentTool, ok := registry.GetTool(name)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}

		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid arguments type: expected map[string]any, got %T", request.Params.Arguments)
		}

		result, err := currentTool.Execute(toolCtx, registry.GetLogger(), args)
		if err != nil {
			if transport != "stdio" {
				logger.WithError(err).Errorf("Tool execution failed: %s", name)
			}

			if errorLogger := tools.GetGlobalErrorLogger(); errorLogger.IsEnabled() {
				errorLogger.LogToolError(name, args, err, transport)
			}

			return nil, fmt.Errorf("tool execution failed: %w", err)
		}

		return result, nil
	}
}

// cliCommand exposes the registered tools without a server
func cliCommand(logger *logrus.Logger) *cli.Command {
	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   string(modelcli.OutputText),
		Usage:   "Output format (text or json)",
	}

	runner := func(cmd *cli.Command) (*modelcli.Runner, error) {
		output, err := modelcli.ParseOutputFormat(cmd.String("output"))
		if err != nil {
			return nil, err
		}
		configureCLILogging(logger)
		security.InitGlobalDenyList(logger)
		return modelcli.NewRunner(logger, output), nil
	}

	return &cli.Command{
		Name:  "cli",
		Usage: "Run tools directly from the command line",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List available tools",
				Flags: []cli.Flag{outputFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.ListTools()
				},
			},
			{
				Name:      "help",
				Usage:     "Show parameters and usage for a tool",
				ArgsUsage: "<tool>",
				Flags:     []cli.Flag{outputFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("expected exactly one tool name")
					}
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.HelpTool(cmd.Args().First())
				},
			},
			{
				Name:      "run",
				Usage:     "Run a tool with JSON or --flag arguments",
				ArgsUsage: "<tool> [--param=value ...] ['{\"param\": \"value\"}']",
				Flags:     []cli.Flag{outputFlag},
				// Tool parameters are parsed against the tool's schema, not here
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					args := cmd.Args().Slice()
					output, rest := splitOutputFlag(args)
					if len(rest) == 0 {
						return fmt.Errorf("expected a tool name")
					}
					format, err := modelcli.ParseOutputFormat(output)
					if err != nil {
						return err
					}
					configureCLILogging(logger)
					security.InitGlobalDenyList(logger)
					if err := tools.InitGlobalErrorLogger(logger); err != nil {
						logger.WithError(err).Debug("Failed to initialise tool error logger")
					}
					err = modelcli.NewRunner(logger, format).RunTool(ctx, rest[0], rest[1:])
					if err != nil {
						tools.GetGlobalErrorLogger().LogToolError(rest[0], map[string]any{"args": rest[1:]}, err, "cli")
					}
					return err
				},
			},
		},
	}
}

// extractCommand runs the extraction engine over files without the tool layer
func extractCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract metadata and text from one or more model files",
		ArgsUsage: "<path> [path ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "variant",
				Value: string(modelmeta.VariantStrict),
				Usage: "Extraction variant (strict, data, or enhanced)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   string(modelcli.OutputText),
				Usage:   "Output format (text or json)",
			},
			&cli.IntFlag{
				Name:    "preview-limit",
				Usage:   "Maximum preview length in characters",
				Sources: cli.EnvVars(modelmeta.PreviewLimitEnvVar),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			variant, err := modelmeta.ParseVariant(cmd.String("variant"))
			if err != nil {
				return err
			}
			output, err := modelcli.ParseOutputFormat(cmd.String("output"))
			if err != nil {
				return err
			}

			opts := modelmeta.OptionsFromEnv()
			if limit := cmd.Int("preview-limit"); limit > 0 {
				opts.PreviewLimit = int(limit)
			}

			configureCLILogging(logger)
			return modelcli.NewRunner(logger, output).Extract(ctx, variant, opts, cmd.Args().Slice())
		},
	}
}

// configureCLILogging logs to stderr so stdout carries only results
func configureCLILogging(logger *logrus.Logger) {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(parseLogLevel())
}

// splitOutputFlag pulls --output/-o out of unparsed run arguments
func splitOutputFlag(args []string) (string, []string) {
	output := string(modelcli.OutputText)
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--output" || arg == "-o":
			if i+1 < len(args) {
				output = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--output="):
			output = strings.TrimPrefix(arg, "--output=")
		default:
			rest = append(rest, arg)
		}
	}
	return output, rest
}

// performCleanup handles cleanup of resources on shutdown
func performCleanup(logger *logrus.Logger) {
	if errorLogger := tools.GetGlobalErrorLogger(); errorLogger != nil {
		if err := errorLogger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close tool error logger")
		}
	}

	// Silently close, the logger may be writing to this file
	if file := serverLogFile.Load(); file != nil {
		_ = file.Close()
	}
}

// startStreamableHTTPServer configures and starts the Streamable HTTP server
func startStreamableHTTPServer(ctx context.Context, cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	authToken := cmd.String("auth-token")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	}

	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		opts = append(opts, mcpserver.WithSessionIdManager(NewTimeoutSessionManager(sessionTimeout, logger)))
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))
	logger.Infof("Heartbeat interval: %v", heartbeatInterval)

	if authToken != "" {
		logger.Info("Token authentication enabled")
	}

	streamable := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newHTTPHandler(streamable, endpointPath, authToken, logger),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case serverErr <- err:
			case <-ctx.Done():
			}
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}

	logger.Info("HTTP server stopped gracefully")
	return nil
}

// newHTTPHandler mounts the MCP endpoint, behind bearer authentication when a
// token is configured
func newHTTPHandler(mcpHandler http.Handler, endpointPath, authToken string, logger *logrus.Logger) http.Handler {
	handler := mcpHandler
	if authToken != "" {
		handler = requireBearerToken(authToken, logger, handler)
	}

	mux := http.NewServeMux()
	mux.Handle(endpointPath, logRequestHeaders(logger, handler))
	return mux
}

// requireBearerToken rejects requests without the expected Authorization
// header before they reach the MCP server
func requireBearerToken(expectedToken string, logger *logrus.Logger, next http.Handler) http.Handler {
	const bearerPrefix = "Bearer "
	expected := []byte(expectedToken)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		switch {
		case authHeader == "":
			logger.Warn("Request missing Authorization header")
		case !strings.HasPrefix(authHeader, bearerPrefix):
			logger.Warn("Invalid authorization format, expected Bearer token")
		case subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(authHeader, bearerPrefix)), expected) != 1:
			logger.Warn("Invalid authentication token")
		default:
			logger.Debug("Request authenticated successfully")
			next.ServeHTTP(w, req)
			return
		}

		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp-modelmeta"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func logRequestHeaders(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if protocolVersion := req.Header.Get("MCP-Protocol-Version"); protocolVersion != "" {
			if !isValidProtocolVersion(protocolVersion) {
				logger.Warnf("Unsupported MCP Protocol Version: %s", protocolVersion)
			} else {
				logger.Debugf("MCP Protocol Version: %s", protocolVersion)
			}
		}

		if origin := req.Header.Get("Origin"); origin != "" && !isValidOrigin(origin) {
			logger.Warnf("Invalid Origin header: %s", origin)
		}

		next.ServeHTTP(w, req)
	})
}

func isValidProtocolVersion(version string) bool {
	return slices.Contains([]string{"2025-06-18", "2025-03-26", "2024-11-05"}, version)
}

func isValidOrigin(origin string) bool {
	for _, allowed := range []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	} {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// TimeoutSessionManager issues session IDs for the Streamable HTTP transport
// and expires sessions idle for longer than timeout.
type TimeoutSessionManager struct {
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewTimeoutSessionManager(timeout time.Duration, logger *logrus.Logger) *TimeoutSessionManager {
	return &TimeoutSessionManager{
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

func (t *TimeoutSessionManager) Generate() string {
	sessionID := uuid.New().String()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)
	t.lastSeen[sessionID] = now
	return sessionID
}

// Validate reports unknown and idle sessions as terminated so clients start a
// new one, and refreshes the idle timer of live sessions
func (t *TimeoutSessionManager) Validate(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	seen, ok := t.lastSeen[sessionID]
	if !ok {
		return true, nil
	}
	if now.Sub(seen) > t.timeout {
		delete(t.lastSeen, sessionID)
		t.logger.Debugf("Session expired: %s", sessionID)
		return true, nil
	}
	t.lastSeen[sessionID] = now
	return false, nil
}

func (t *TimeoutSessionManager) Terminate(sessionID string) (bool, error) {
	t.mu.Lock()
	delete(t.lastSeen, sessionID)
	t.mu.Unlock()

	t.logger.Debugf("Session terminated: %s", sessionID)
	return false, nil
}

func (t *TimeoutSessionManager) pruneLocked(now time.Time) {
	for id, seen := range t.lastSeen {
		if now.Sub(seen) > t.timeout {
			delete(t.lastSeen, id)
		}
	}
}

// logrusAdapter satisfies the mcp-go server logger
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Debugf(format string, args ...any) {
	l.logger.Debugf(format, args...)
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Warnf(format string, args ...any) {
	l.logger.Warnf(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}

func handleSecurityConfigValidate(cmd *cli.Command) error {
	configPath := cmd.String("config-path")
	if configPath == "" {
		defaultPath, err := security.DefaultConfigPath()
		if err != nil {
			return err
		}
		configPath = defaultPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("No security config at %s, the default deny list applies\n", configPath)
	}

	config, err := security.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return err
	}

	fmt.Printf("✅ Security configuration is valid: %s\n", configPath)
	fmt.Println("Denied paths:")
	for _, pattern := range config.DenyPatterns() {
		fmt.Printf("  - %s\n", pattern)
	}
	return nil
}
