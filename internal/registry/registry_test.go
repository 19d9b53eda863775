package registry_test

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-modelmeta/internal/registry"
	"github.com/sammcj/mcp-modelmeta/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Init(t *testing.T) {
	logger := testutils.CreateTestLogger()
	registry.Init(logger)
	assert.Same(t, logger, registry.GetLogger())
}

func TestRegistry_RegisterAndGetTool(t *testing.T) {
	registry.Init(testutils.CreateTestLogger())
	registry.Register(testutils.NewMockTool("test_tool"))

	tool, ok := registry.GetTool("test_tool")
	require.True(t, ok)
	assert.Equal(t, "test_tool", tool.Definition().Name)

	_, ok = registry.GetTool("non_existent_tool")
	assert.False(t, ok)
}

func TestRegistry_DisabledTools(t *testing.T) {
	defer testutils.WithEnv(t, "DISABLED_TOOLS", " disabled_tool , Another-Disabled ")()
	registry.Init(testutils.CreateTestLogger())

	registry.Register(testutils.NewMockTool("enabled_tool"))
	registry.Register(testutils.NewMockTool("disabled_tool"))
	registry.Register(testutils.NewMockTool("another_disabled"))

	_, ok := registry.GetTool("enabled_tool")
	assert.True(t, ok)
	_, ok = registry.GetTool("disabled_tool")
	assert.False(t, ok)
	_, ok = registry.GetTool("another_disabled")
	assert.False(t, ok, "hyphens and case are normalised")

	assert.False(t, registry.ShouldRegisterTool("disabled_tool"))
	assert.True(t, registry.ShouldRegisterTool("enabled_tool"))

	tools := registry.GetTools()
	assert.Contains(t, tools, "enabled_tool")
	assert.NotContains(t, tools, "disabled_tool")
	assert.NotContains(t, registry.GetEnabledToolNames(), "disabled_tool")
}

func TestRegistry_ReInitReenablesTools(t *testing.T) {
	restore := testutils.WithEnv(t, "DISABLED_TOOLS", "toggled_tool")
	registry.Init(testutils.CreateTestLogger())
	registry.Register(testutils.NewMockTool("toggled_tool"))

	_, ok := registry.GetTool("toggled_tool")
	assert.False(t, ok)

	restore()
	registry.Init(testutils.CreateTestLogger())
	_, ok = registry.GetTool("toggled_tool")
	assert.True(t, ok)
}

func TestRegistry_GetEnabledToolNamesSorted(t *testing.T) {
	registry.Init(testutils.CreateTestLogger())
	registry.Register(testutils.NewMockTool("zz_tool"))
	registry.Register(testutils.NewMockTool("aa_tool"))

	names := registry.GetEnabledToolNames()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "aa_tool")
	assert.Contains(t, names, "zz_tool")
}

type titledTool struct {
	*testutils.MockTool
	def mcp.Tool
}

func (t titledTool) Definition() mcp.Tool { return t.def }

func TestRegistry_DisplayNames(t *testing.T) {
	registry.Init(testutils.CreateTestLogger())
	registry.Register(testutils.NewMockTool("untitled_tool"))
	registry.Register(titledTool{
		MockTool: testutils.NewMockTool("titled_tool"),
		def:      mcp.NewTool("titled_tool", mcp.WithTitleAnnotation("Titled Tool")),
	})

	names := registry.DisplayNames()
	assert.Equal(t, "Titled Tool", names["titled_tool"])
	assert.Equal(t, "untitled_tool", names["untitled_tool"])
}

func BenchmarkShouldRegisterTool(b *testing.B) {
	registry.Init(nil)
	toolNames := []string{"model_metadata_reader", "model_data_extractor", "enhanced_model_metadata_reader"}

	b.ReportAllocs()
	for b.Loop() {
		for _, name := range toolNames {
			_ = registry.ShouldRegisterTool(name)
		}
	}
}
