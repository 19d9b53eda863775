package modelmeta

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by OptionsFromEnv
const (
	PreviewLimitEnvVar  = "MODELMETA_PREVIEW_LIMIT"
	MaxFileSizeEnvVar   = "MODELMETA_MAX_FILE_SIZE"
	MinConfidenceEnvVar = "MODELMETA_MIN_CONFIDENCE"
)

// Options tunes an Extractor. Zero values fall back to the defaults.
type Options struct {
	// PreviewLimit caps the raw-text preview in characters
	PreviewLimit int
	// MinRunLength is the shortest printable run kept by the text scanner,
	// at least DefaultMinRunLength
	MinRunLength int
	// MinConfidence is the lowest charset detector confidence (1-100) accepted
	MinConfidence int
	// MaxFileSize rejects larger files before reading them; 0 disables the check
	MaxFileSize int64
	// Clock stamps the start and completion log lines
	Clock func() time.Time
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		PreviewLimit:  DefaultPreviewLimit,
		MinRunLength:  DefaultMinRunLength,
		MinConfidence: DefaultMinConfidence,
		Clock:         time.Now,
	}
}

// OptionsFromEnv returns DefaultOptions overridden by any valid MODELMETA_* variables
func OptionsFromEnv() Options {
	opts := DefaultOptions()

	if limitStr := os.Getenv(PreviewLimitEnvVar); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			opts.PreviewLimit = limit
		}
	}

	if sizeStr := os.Getenv(MaxFileSizeEnvVar); sizeStr != "" {
		if size, err := strconv.ParseInt(sizeStr, 10, 64); err == nil && size > 0 {
			opts.MaxFileSize = size
		}
	}

	if confStr := os.Getenv(MinConfidenceEnvVar); confStr != "" {
		if conf, err := strconv.Atoi(confStr); err == nil && conf >= 1 && conf <= 100 {
			opts.MinConfidence = conf
		}
	}

	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PreviewLimit <= 0 {
		o.PreviewLimit = def.PreviewLimit
	}
	if o.MinRunLength < DefaultMinRunLength {
		o.MinRunLength = def.MinRunLength
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = def.MinConfidence
	}
	if o.MaxFileSize < 0 {
		o.MaxFileSize = 0
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}
