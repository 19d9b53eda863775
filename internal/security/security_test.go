package security_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sammcj/mcp-modelmeta/internal/security"
	"github.com/sammcj/mcp-modelmeta/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenyListChecker_IsFileBlocked(t *testing.T) {
	root := t.TempDir()
	secrets := filepath.Join(root, "secrets")
	require.NoError(t, os.MkdirAll(secrets, 0o700))

	checker := security.NewDenyListChecker([]string{
		secrets,
		filepath.Join(root, "private.ckpt"),
		"*.pem",
	})

	tests := []struct {
		name    string
		path    string
		blocked bool
	}{
		{"denied directory itself", secrets, true},
		{"file under denied directory", filepath.Join(secrets, "model.safetensors"), true},
		{"unclean path into denied directory", filepath.Join(root, "models", "..", "secrets", "x.pt"), true},
		{"denied file", filepath.Join(root, "private.ckpt"), true},
		{"base name glob", filepath.Join(root, "certs", "server.pem"), true},
		{"sibling with shared prefix", filepath.Join(root, "secrets-public", "model.pt"), false},
		{"unrelated file", filepath.Join(root, "models", "model.gguf"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, checker.IsFileBlocked(tt.path))
		})
	}
}

func TestDenyListChecker_HomeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	checker := security.NewDenyListChecker([]string{"~/.ssh"})
	assert.Equal(t, []string{filepath.Join(home, ".ssh")}, checker.GetDenyList())
	assert.True(t, checker.IsFileBlocked("~/.ssh/id_ed25519"))
	assert.True(t, checker.IsFileBlocked(filepath.Join(home, ".ssh", "config")))
	assert.False(t, checker.IsFileBlocked(filepath.Join(home, "models", "model.pt")))
}

func TestDenyListChecker_UpdateDenyList(t *testing.T) {
	checker := security.NewDenyListChecker([]string{"/data/a"})
	assert.True(t, checker.IsFileBlocked("/data/a/model.pt"))

	checker.UpdateDenyList([]string{"/data/b", "  ", ""})
	assert.False(t, checker.IsFileBlocked("/data/a/model.pt"))
	assert.True(t, checker.IsFileBlocked("/data/b/model.pt"))
	assert.Equal(t, []string{"/data/b"}, checker.GetDenyList())
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		config, err := security.LoadConfig(filepath.Join(t.TempDir(), "security.yaml"))
		require.NoError(t, err)
		assert.Empty(t, config.AccessControl.DenyFiles)
	})

	t.Run("deny files", func(t *testing.T) {
		path := testutils.WriteFile(t, "security.yaml", []byte(`version: "1"
access_control:
  deny_files:
    - /srv/private
    - "*.key"
`))
		config, err := security.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "1", config.Version)
		assert.Equal(t, []string{"/srv/private", "*.key"}, config.AccessControl.DenyFiles)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := testutils.WriteFile(t, "security.yaml", []byte("access_control: [unclosed"))
		_, err := security.LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestConfig_DenyPatterns(t *testing.T) {
	defer testutils.WithEnv(t, security.DenyPathsEnvVar, " /env/one, ,/srv/private ")()

	config := &security.Config{AccessControl: security.AccessControl{DenyFiles: []string{"/srv/private"}}}
	patterns := config.DenyPatterns()
	assert.Subset(t, patterns, security.DefaultDenyFiles)
	assert.Contains(t, patterns, "/srv/private")
	assert.Contains(t, patterns, "/env/one")
	assert.Len(t, patterns, len(security.DefaultDenyFiles)+2)

	useDefaults := false
	config.AccessControl.UseDefaults = &useDefaults
	assert.Equal(t, []string{"/srv/private", "/env/one"}, config.DenyPatterns())
}

func TestCheckFileAccess(t *testing.T) {
	defer security.ResetGlobalDenyList()
	root := t.TempDir()

	security.ResetGlobalDenyList()
	assert.NoError(t, security.CheckFileAccess(filepath.Join(root, "anything.pt")))

	security.SetGlobalDenyList([]string{filepath.Join(root, "blocked")})
	err := security.CheckFileAccess(filepath.Join(root, "blocked", "model.pt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.NoError(t, security.CheckFileAccess(filepath.Join(root, "open", "model.pt")))
}

func TestInitGlobalDenyList(t *testing.T) {
	defer security.ResetGlobalDenyList()
	defer testutils.WithEnv(t, "HOME", t.TempDir())()
	defer testutils.WithEnv(t, security.DenyPathsEnvVar, "/from/env")()

	security.InitGlobalDenyList(testutils.CreateTestLogger())

	assert.Error(t, security.CheckFileAccess("/from/env/model.safetensors"))
	assert.Error(t, security.CheckFileAccess("~/.ssh/id_rsa"))
}
