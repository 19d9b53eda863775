package modelmeta

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// Variant selects which readers an extraction uses and whether it previews text
type Variant string

const (
	// VariantStrict reads safetensors and torch checkpoints and rejects everything else
	VariantStrict Variant = "strict"
	// VariantData adds ONNX/GGUF to the checkpoint reader and always previews decoded text
	VariantData Variant = "data"
	// VariantEnhanced runs the binary text heuristic on any file and previews scanned text
	VariantEnhanced Variant = "enhanced"
)

// Variants lists every supported variant
var Variants = []Variant{VariantStrict, VariantData, VariantEnhanced}

// ParseVariant converts a variant name into a Variant
func ParseVariant(name string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Variants {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown variant %q (expected one of strict, data, enhanced)", name)
}

type formatClass int

const (
	formatUnknown formatClass = iota
	formatTensorContainer
	formatCheckpoint
	formatGraphBinary
)

// Extensions are matched case-sensitively, as written by the tools producing them
var extensionClasses = map[string]formatClass{
	".safetensors": formatTensorContainer,
	".ckpt":        formatCheckpoint,
	".pth":         formatCheckpoint,
	".pt":          formatCheckpoint,
	".bin":         formatCheckpoint,
	".gguf":        formatGraphBinary,
	".onnx":        formatGraphBinary,
}

func classify(modelPath string) formatClass {
	if class, ok := extensionClasses[filepath.Ext(modelPath)]; ok {
		return class
	}
	return formatUnknown
}

// profile is the reader table and presentation of one variant
type profile struct {
	title    string
	readers  map[formatClass]Reader
	fallback Reader
	// unsupported is used when neither readers nor fallback match
	unsupported func() (*Metadata, string)
	preview     previewer
	logRawText  bool
}

func newProfile(variant Variant, opts Options) (profile, error) {
	safetensors := &SafetensorsReader{}
	checkpoint := &CheckpointReader{}
	graph := &GraphBinaryReader{MinRunLength: opts.MinRunLength}

	switch variant {
	case VariantStrict:
		return profile{
			title: "Metadata",
			readers: map[formatClass]Reader{
				formatTensorContainer: safetensors,
				formatCheckpoint:      checkpoint,
			},
			unsupported: func() (*Metadata, string) {
				return ErrorRecord("Unsupported model format"), logUnsupported
			},
		}, nil
	case VariantData:
		return profile{
			title: "Data",
			readers: map[formatClass]Reader{
				formatTensorContainer: safetensors,
				formatCheckpoint:      checkpoint,
				formatGraphBinary:     checkpoint,
			},
			unsupported: func() (*Metadata, string) {
				return WarningRecord("No structured metadata reader for this format."), logNoReader
			},
			preview:    decodedPreview,
			logRawText: true,
		}, nil
	case VariantEnhanced:
		return profile{
			title:    "Metadata",
			fallback: graph,
			preview:  scannedPreview,
		}, nil
	}
	return profile{}, fmt.Errorf("unknown variant %q", variant)
}

func (p profile) readerFor(modelPath string) Reader {
	if reader, ok := p.readers[classify(modelPath)]; ok {
		return reader
	}
	return p.fallback
}

// Extractor runs one variant of the extraction engine. It holds only immutable
// configuration, so a single Extractor can serve concurrent calls.
type Extractor struct {
	variant Variant
	opts    Options
	profile profile
	logger  *logrus.Logger
}

// New creates an Extractor for the given variant
func New(variant Variant, opts Options, logger *logrus.Logger) (*Extractor, error) {
	opts = opts.withDefaults()
	p, err := newProfile(variant, opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Extractor{variant: variant, opts: opts, profile: p, logger: logger}, nil
}

// Variant returns the variant the extractor runs
func (e *Extractor) Variant() Variant {
	return e.variant
}

// Extract inspects the model file at modelPath. It never returns an error:
// every failure is reported inside the Result.
func (e *Extractor) Extract(ctx context.Context, modelPath string) *Result {
	logger := e.logger.WithFields(logrus.Fields{
		"variant": e.variant,
		"path":    modelPath,
	})
	logger.Debug("Starting model extraction")

	res := &Result{Variant: e.variant}
	res.Log = append(res.Log,
		fmt.Sprintf("📌 Starting %s Extraction: %s", e.profile.title, e.timestamp()),
		fmt.Sprintf("🔎 Checking model path: %s", modelPath),
	)

	if _, err := os.Stat(modelPath); err != nil {
		logger.WithError(err).Debug("Model path not found")
		res.Log = append(res.Log, logNotFound)
		return res
	}

	reader := e.profile.readerFor(modelPath)
	if reader == nil && e.profile.preview == nil {
		md, line := e.profile.unsupported()
		res.Metadata = md
		res.Log = append(res.Log, line)
		return e.complete(res, logger)
	}

	src, err := e.load(ctx, modelPath)
	if err != nil {
		logger.WithError(err).Debug("Failed to load model file")
		res.Log = append(res.Log, fmt.Sprintf("❌ Error: %v", err))
		res.Metadata = ErrorRecord("Failed to read model file: %v", err)
		if e.profile.preview != nil {
			res.HasPreview = true
			res.Preview = truncateRunes(previewFailure(err), e.opts.PreviewLimit)
			res.PreviewErr = err
		}
		return e.complete(res, logger)
	}
	res.Log = append(res.Log, fmt.Sprintf("📄 File details: %s", src.Describe()))

	if reader != nil {
		res.Metadata = safeRead(reader, src, e.logger)
		res.Log = append(res.Log, fmt.Sprintf("📂 Metadata extraction method: %s", reader.Method()))
	} else {
		md, line := e.profile.unsupported()
		res.Metadata = md
		res.Log = append(res.Log, line)
	}

	if e.profile.preview != nil {
		res.HasPreview = true
		res.Preview, res.PreviewErr = e.safePreview(src)
		if e.profile.logRawText {
			res.Log = append(res.Log, logRawText)
		}
	}

	return e.complete(res, logger)
}

func (e *Extractor) load(ctx context.Context, modelPath string) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	return loadSource(modelPath, e.opts.MaxFileSize)
}

func (e *Extractor) safePreview(src *Source) (preview string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"path":  src.Path,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Debug("Preview panicked")
			err = fmt.Errorf("%v", r)
			preview = truncateRunes(previewFailure(err), e.opts.PreviewLimit)
		}
	}()

	preview, err = e.profile.preview(src, e.opts)
	return truncateRunes(preview, e.opts.PreviewLimit), err
}

func (e *Extractor) complete(res *Result, logger *logrus.Entry) *Result {
	res.Log = append(res.Log, fmt.Sprintf("✅ Extraction Complete: %s", e.timestamp()))
	logger.WithFields(logrus.Fields{
		"metadata_kind": res.Metadata.Kind().String(),
		"preview_len":   len(res.Preview),
	}).Debug("Model extraction complete")
	return res
}

func (e *Extractor) timestamp() string {
	return e.opts.Clock().Format(timestampLayout)
}

// Extract is a convenience wrapper that builds an Extractor with default
// options and runs it once.
func Extract(ctx context.Context, variant Variant, modelPath string) (*Result, error) {
	ex, err := New(variant, DefaultOptions(), nil)
	if err != nil {
		return nil, err
	}
	return ex.Extract(ctx, modelPath), nil
}
