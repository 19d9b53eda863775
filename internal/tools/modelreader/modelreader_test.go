package modelreader_test

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sammcj/mcp-modelmeta/internal/modelmeta"
	"github.com/sammcj/mcp-modelmeta/internal/registry"
	"github.com/sammcj/mcp-modelmeta/internal/security"
	"github.com/sammcj/mcp-modelmeta/internal/testutils"
	"github.com/sammcj/mcp-modelmeta/internal/tools"
	"github.com/sammcj/mcp-modelmeta/internal/tools/modelreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitions(t *testing.T) {
	expected := []struct {
		name    string
		title   string
		variant modelmeta.Variant
	}{
		{"model_metadata_reader", "Model Metadata Reader", modelmeta.VariantStrict},
		{"model_data_extractor", "Advanced Model Data Extractor", modelmeta.VariantData},
		{"enhanced_model_metadata_reader", "Enhanced Model Metadata Reader", modelmeta.VariantEnhanced},
	}

	all := modelreader.All()
	require.Len(t, all, len(expected))

	for i, tt := range expected {
		t.Run(tt.name, func(t *testing.T) {
			tool := all[i]
			def := tool.Definition()

			assert.Equal(t, tt.name, def.Name)
			assert.Equal(t, tt.variant, tool.Variant())
			assert.NotEmpty(t, def.Description)
			assert.Equal(t, []string{"model_path"}, def.InputSchema.Required)
			assert.Contains(t, def.InputSchema.Properties, "model_path")

			ann := def.Annotations
			assert.Equal(t, tt.title, ann.Title)
			require.NotNil(t, ann.ReadOnlyHint)
			assert.True(t, *ann.ReadOnlyHint)
			require.NotNil(t, ann.DestructiveHint)
			assert.False(t, *ann.DestructiveHint)
			require.NotNil(t, ann.IdempotentHint)
			assert.True(t, *ann.IdempotentHint)
			require.NotNil(t, ann.OpenWorldHint)
			assert.False(t, *ann.OpenWorldHint)
		})
	}
}

func TestToolsRegisterThemselves(t *testing.T) {
	registry.Init(testutils.CreateTestLogger())

	for _, name := range []string{"model_metadata_reader", "model_data_extractor", "enhanced_model_metadata_reader"} {
		_, ok := registry.GetTool(name)
		assert.True(t, ok, name)
	}
	assert.Equal(t, "Advanced Model Data Extractor", registry.DisplayNames()["model_data_extractor"])
}

func TestExecute_Report(t *testing.T) {
	security.ResetGlobalDenyList()
	path := testutils.WriteFile(t, "model.safetensors", testutils.SafetensorsFile(
		`{"__metadata__":{"format":"pt","license":"mit"}}`, nil))

	result, err := modelreader.NewMetadataReader().Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		map[string]any{"model_path": path})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := testutils.GetTextContent(result)
	assert.True(t, strings.HasPrefix(text, "📌 Starting Metadata Extraction: "))
	assert.Contains(t, text, "📂 Metadata extraction method: Safetensors")

	parsed, ok := modelmeta.ParseReportMetadata(text)
	require.True(t, ok)
	assert.Equal(t, "mit", parsed.Get("license").String())
}

func TestExecute_DataPreview(t *testing.T) {
	security.ResetGlobalDenyList()
	path := testutils.WriteFile(t, "notes.txt", []byte("A plain text licence file shipped with the model weights."))

	result, err := modelreader.NewDataExtractor().Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		map[string]any{"model_path": path})
	require.NoError(t, err)

	preview, ok := modelmeta.ReportPreview(testutils.GetTextContent(result))
	require.True(t, ok)
	assert.NotEmpty(t, preview)
}

func TestExecute_ModelNotFound(t *testing.T) {
	security.ResetGlobalDenyList()
	missing := filepath.Join(t.TempDir(), "missing.ckpt")

	result, err := modelreader.NewEnhancedReader().Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		map[string]any{"model_path": missing})
	require.NoError(t, err)

	text := testutils.GetTextContent(result)
	assert.True(t, strings.HasSuffix(text, "❌ Error: Model not found."))
}

func TestExecute_InvalidArguments(t *testing.T) {
	tool := modelreader.NewMetadataReader()

	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"missing", map[string]any{}, "missing required parameter"},
		{"wrong type", map[string]any{"model_path": 42}, "must be a string"},
		{"empty", map[string]any{"model_path": "  "}, "must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(), tt.args)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestExecute_DeniedPath(t *testing.T) {
	dir := t.TempDir()
	security.SetGlobalDenyList([]string{dir})
	defer security.ResetGlobalDenyList()

	path := testutils.WriteFile(t, "model.pt", testutils.PickleDict("a"))
	_, err := modelreader.NewMetadataReader().Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		map[string]any{"model_path": filepath.Join(dir, "model.pt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	_, err = modelreader.NewMetadataReader().Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		map[string]any{"model_path": path})
	assert.NoError(t, err)
}

func TestExecute_Concurrent(t *testing.T) {
	security.ResetGlobalDenyList()
	path := testutils.WriteFile(t, "model.pth", testutils.PickleOrderedDict("w", "b"))
	tool := modelreader.NewMetadataReader()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	texts := make([]string, 8)
	for i := range errs {
		wg.Go(func() {
			result, err := tool.Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
				map[string]any{"model_path": path})
			errs[i] = err
			texts[i] = testutils.GetTextContent(result)
		})
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		parsed, ok := modelmeta.ParseReportMetadata(texts[i])
		require.True(t, ok)
		assert.Equal(t, int64(2), parsed.Get("metadata_keys.#").Int())
		assert.Equal(t, "w", parsed.Get("metadata_keys.0").String())
		assert.Equal(t, "b", parsed.Get("metadata_keys.1").String())
	}
}

func TestProvideExtendedInfo(t *testing.T) {
	for _, tool := range modelreader.All() {
		var provider tools.ExtendedHelpProvider = tool
		help := provider.ProvideExtendedInfo()
		require.NotNil(t, help)
		assert.NotEmpty(t, help.Examples, tool.Definition().Name)
		assert.NotEmpty(t, help.WhenToUse)
		assert.Contains(t, help.ParameterDetails, "model_path")
	}
}
