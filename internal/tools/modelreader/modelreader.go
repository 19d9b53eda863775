package modelreader

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-modelmeta/internal/modelmeta"
	"github.com/sammcj/mcp-modelmeta/internal/registry"
	"github.com/sammcj/mcp-modelmeta/internal/security"
	"github.com/sammcj/mcp-modelmeta/internal/tools"
	"github.com/sirupsen/logrus"
)

const modelPathParam = "model_path"

// ExtractorTool exposes one extraction variant as an MCP tool
type ExtractorTool struct {
	name        string
	title       string
	description string
	variant     modelmeta.Variant
}

// NewMetadataReader returns the strict reader: safetensors and torch checkpoints only
func NewMetadataReader() *ExtractorTool {
	return &ExtractorTool{
		name:    "model_metadata_reader",
		title:   "Model Metadata Reader",
		variant: modelmeta.VariantStrict,
		description: `Read embedded metadata from a local machine learning model file without loading any weights.

Supported formats:
- .safetensors: returns the __metadata__ block verbatim
- .ckpt, .pth, .pt, .bin: returns the top-level keys of the checkpoint (metadata_keys)

Any other extension is reported as an unsupported format. The result is a status log followed by the metadata as indented JSON.`,
	}
}

// NewDataExtractor returns the data reader, which also previews decoded raw text
func NewDataExtractor() *ExtractorTool {
	return &ExtractorTool{
		name:    "model_data_extractor",
		title:   "Advanced Model Data Extractor",
		variant: modelmeta.VariantData,
		description: `Extract metadata and a raw text preview from a local machine learning model file.

Works like model_metadata_reader, additionally passing .gguf and .onnx files to the checkpoint reader, then detects the file's text encoding and returns the first 2000 characters of decoded text. Files with no structured reader still get a raw text preview.`,
	}
}

// NewEnhancedReader returns the heuristic reader for any binary file
func NewEnhancedReader() *ExtractorTool {
	return &ExtractorTool{
		name:    "enhanced_model_metadata_reader",
		title:   "Enhanced Model Metadata Reader",
		variant: modelmeta.VariantEnhanced,
		description: `Scan any local model file (ONNX, GGUF, safetensors, checkpoints or opaque binaries) for printable text and report fragments that look like metadata (author, description, license, version, model_name), plus a preview of all printable text.

This is a heuristic: fragments are reported as found, so expect some false positives. Prefer model_metadata_reader for safetensors and torch checkpoints.`,
	}
}

// All returns one tool per extraction variant
func All() []*ExtractorTool {
	return []*ExtractorTool{NewMetadataReader(), NewDataExtractor(), NewEnhancedReader()}
}

// init registers the model extraction tools
func init() {
	for _, tool := range All() {
		registry.Register(tool)
	}
}

// Variant returns the extraction variant the tool runs
func (t *ExtractorTool) Variant() modelmeta.Variant {
	return t.variant
}

// Definition returns the tool's definition for MCP registration
func (t *ExtractorTool) Definition() mcp.Tool {
	return mcp.NewTool(
		t.name,
		mcp.WithDescription(t.description),
		mcp.WithString(modelPathParam,
			mcp.Required(),
			mcp.Description("Path to the model file on the local filesystem"),
		),
		mcp.WithTitleAnnotation(t.title),
		mcp.WithReadOnlyHintAnnotation(true),     // Only reads the model file
		mcp.WithDestructiveHintAnnotation(false), // Never modifies anything
		mcp.WithIdempotentHintAnnotation(true),   // Same file produces the same report
		mcp.WithOpenWorldHintAnnotation(false),   // Local files only
	)
}

// Execute runs the extraction and returns the rendered report
func (t *ExtractorTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	modelPath, err := parseModelPath(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if err := security.CheckFileAccess(modelPath); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	extractor, err := modelmeta.New(t.variant, modelmeta.OptionsFromEnv(), logger)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"tool":    t.name,
		"variant": t.variant,
		"path":    modelPath,
	}).Debug("Extracting model metadata")

	result := extractor.Extract(ctx, modelPath)
	return mcp.NewToolResultText(result.String()), nil
}

func parseModelPath(args map[string]any) (string, error) {
	raw, exists := args[modelPathParam]
	if !exists {
		return "", fmt.Errorf("missing required parameter: %s", modelPathParam)
	}
	modelPath, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", modelPathParam, raw)
	}
	if strings.TrimSpace(modelPath) == "" {
		return "", fmt.Errorf("%s must not be empty", modelPathParam)
	}
	return modelPath, nil
}

// ProvideExtendedInfo provides detailed usage information for the model tools
func (t *ExtractorTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	help := &tools.ExtendedHelp{
		ParameterDetails: map[string]string{
			modelPathParam: "Path to the model file (required). The file is read once and never modified. Paths in the configured deny list are refused.",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Report only says 'Error: Model not found.'",
				Solution: "The path does not exist from the server's point of view. Use an absolute path; relative paths resolve against the server's working directory.",
			},
			{
				Problem:  "access denied: ... is in the deny list",
				Solution: "The path matches ~/.mcp-modelmeta/security.yaml or MODELMETA_DENY_PATHS. Only the user can change this.",
			},
			{
				Problem:  "model file exceeds size limit",
				Solution: "MODELMETA_MAX_FILE_SIZE is set below the file's size. Raise or unset it.",
			},
		},
	}

	switch t.variant {
	case modelmeta.VariantStrict:
		help.Examples = []tools.ToolExample{
			{
				Description:    "Read safetensors metadata",
				Arguments:      map[string]any{modelPathParam: "/models/llama/model.safetensors"},
				ExpectedResult: "Log lines ending in 'Extraction Complete' followed by the __metadata__ mapping, e.g. {\"format\": \"pt\"}",
			},
			{
				Description:    "List checkpoint keys",
				Arguments:      map[string]any{modelPathParam: "/models/sd/v1-5.ckpt"},
				ExpectedResult: "{\"metadata_keys\": [\"state_dict\", \"global_step\", ...]}",
			},
		}
		help.WhenToUse = "Use to read the authoritative metadata of safetensors files or the top-level structure of torch checkpoints."
		help.WhenNotToUse = "Don't use for ONNX, GGUF or unknown formats; use enhanced_model_metadata_reader instead."
	case modelmeta.VariantData:
		help.Examples = []tools.ToolExample{
			{
				Description:    "Inspect a GGUF file and preview its text",
				Arguments:      map[string]any{modelPathParam: "/models/qwen/model.gguf"},
				ExpectedResult: "Metadata (or an extraction error) followed by '🔍 Extracted Raw Text:' and up to 2000 characters of decoded text",
			},
		}
		help.CommonPatterns = []string{
			"Set MODELMETA_PREVIEW_LIMIT to change the preview length",
			"Raise MODELMETA_MIN_CONFIDENCE if binary files produce noisy decoded previews",
		}
		help.WhenToUse = "Use when you also want to see readable text embedded in the file, such as tokenizer vocabularies or licence text."
		help.WhenNotToUse = "Don't use when only structured metadata is needed; the preview adds noise for binary weights."
	case modelmeta.VariantEnhanced:
		help.Examples = []tools.ToolExample{
			{
				Description:    "Find author and licence strings in an ONNX model",
				Arguments:      map[string]any{modelPathParam: "/models/resnet50.onnx"},
				ExpectedResult: "A mapping of matching text fragments (each fragment is both key and value) plus every printable fragment, one per line",
			},
		}
		help.WhenToUse = "Use for formats without a dedicated reader, or to double check what text a model file carries."
		help.WhenNotToUse = "Don't rely on it for exact metadata values; matches are substring based and may include false positives."
	}

	return help
}
