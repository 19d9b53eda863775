package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-modelmeta/internal/registry"
	"github.com/sammcj/mcp-modelmeta/internal/testutils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  logrus.Level
	}{
		{"", logrus.WarnLevel},
		{"debug", logrus.DebugLevel},
		{" INFO ", logrus.InfoLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"verbose", logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			defer testutils.WithEnv(t, "LOG_LEVEL", tt.value)()
			assert.Equal(t, tt.want, parseLogLevel())
		})
	}
}

func TestSplitOutputFlag(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantOutput string
		wantRest   []string
	}{
		{"none", []string{"model_metadata_reader", "--model-path=/m.pt"}, "text", []string{"model_metadata_reader", "--model-path=/m.pt"}},
		{"equals", []string{"--output=json", "model_metadata_reader"}, "json", []string{"model_metadata_reader"}},
		{"separate", []string{"model_metadata_reader", "-o", "json", "/m.pt"}, "json", []string{"model_metadata_reader", "/m.pt"}},
		{"dangling", []string{"model_metadata_reader", "--output"}, "text", []string{"model_metadata_reader"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, rest := splitOutputFlag(tt.args)
			assert.Equal(t, tt.wantOutput, output)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestIsValidOrigin(t *testing.T) {
	assert.True(t, isValidOrigin("http://localhost:3000"))
	assert.True(t, isValidOrigin("https://127.0.0.1"))
	assert.False(t, isValidOrigin("https://example.com"))
}

func TestIsValidProtocolVersion(t *testing.T) {
	assert.True(t, isValidProtocolVersion("2025-06-18"))
	assert.False(t, isValidProtocolVersion("1999-01-01"))
}

func TestNewHTTPHandler_BearerToken(t *testing.T) {
	var served int
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	})
	handler := newHTTPHandler(mcpHandler, "/http", "secret", testutils.CreateTestLogger())

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer guess", http.StatusUnauthorized},
		{"token prefix only", "Bearer secre", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			served = 0
			req := httptest.NewRequest(http.MethodPost, "/http", strings.NewReader(`{}`))
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, 0, served)
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			} else {
				assert.Equal(t, 1, served)
			}
		})
	}
}

func TestNewHTTPHandler_NoToken(t *testing.T) {
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	handler := newHTTPHandler(mcpHandler, "/http", "", testutils.CreateTestLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/http", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/elsewhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimeoutSessionManager(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)
	manager := NewTimeoutSessionManager(time.Minute, testutils.CreateTestLogger())
	manager.now = func() time.Time { return now }

	t.Run("generates unique uuids", func(t *testing.T) {
		first, second := manager.Generate(), manager.Generate()
		assert.NotEqual(t, first, second)
		_, err := uuid.Parse(first)
		assert.NoError(t, err)
	})

	t.Run("empty id is an error", func(t *testing.T) {
		_, err := manager.Validate("")
		assert.Error(t, err)
	})

	t.Run("unknown id is terminated", func(t *testing.T) {
		terminated, err := manager.Validate(uuid.New().String())
		require.NoError(t, err)
		assert.True(t, terminated)
	})

	t.Run("activity refreshes the idle timer", func(t *testing.T) {
		id := manager.Generate()
		for range 3 {
			now = now.Add(45 * time.Second)
			terminated, err := manager.Validate(id)
			require.NoError(t, err)
			assert.False(t, terminated)
		}
	})

	t.Run("idle session expires", func(t *testing.T) {
		id := manager.Generate()
		now = now.Add(time.Minute + time.Second)

		terminated, err := manager.Validate(id)
		require.NoError(t, err)
		assert.True(t, terminated)
	})

	t.Run("terminate is allowed and forgets the session", func(t *testing.T) {
		id := manager.Generate()

		notAllowed, err := manager.Terminate(id)
		require.NoError(t, err)
		assert.False(t, notAllowed)

		terminated, err := manager.Validate(id)
		require.NoError(t, err)
		assert.True(t, terminated)
	})
}

func TestToolHandler(t *testing.T) {
	logger := testutils.CreateTestLogger()
	registry.Init(logger)

	mock := testutils.NewMockTool("handler_test_tool").WithResult(mcp.NewToolResultText("ok"))
	registry.Register(mock)

	handler := toolHandler("handler_test_tool", "http", logger)

	t.Run("passes arguments to the tool", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"model_path": "/models/a.pt"}

		result, err := handler(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "ok", testutils.GetTextContent(result))
		calls := mock.Calls()
		require.NotEmpty(t, calls)
		assert.Equal(t, "/models/a.pt", calls[len(calls)-1]["model_path"])
	})

	t.Run("rejects non-object arguments", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = []any{"x"}

		_, err := handler(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid arguments type")
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := toolHandler("missing_tool", "http", logger)(context.Background(), mcp.CallToolRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool not found")
	})
}
