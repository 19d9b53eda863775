package modelmeta

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultPreviewLimit is the maximum preview length in characters
	DefaultPreviewLimit = 2000

	encodingNotDetected = "Encoding not detected"
)

// ErrEncodingUndetermined is reported when no charset could be inferred
var ErrEncodingUndetermined = errors.New("encoding not detected")

// previewer produces the raw-text preview for a variant. The returned string is
// always what goes in the report; err is set when it holds a failure message.
type previewer func(src *Source, opts Options) (string, error)

// scannedPreview joins every printable fragment, one per line
func scannedPreview(src *Source, opts Options) (string, error) {
	return truncateRunes(strings.Join(ScanText(src.Data, opts.MinRunLength), "\n"), opts.PreviewLimit), nil
}

// decodedPreview decodes the whole buffer with the inferred encoding
func decodedPreview(src *Source, opts Options) (string, error) {
	resolver := EncodingResolver{MinConfidence: opts.MinConfidence}
	charset, ok := resolver.Detect(src.Data)
	if !ok {
		return encodingNotDetected, ErrEncodingUndetermined
	}

	text, err := DecodeText(src.Data, charset)
	if err != nil {
		return previewFailure(err), err
	}
	return truncateRunes(text, opts.PreviewLimit), nil
}

func previewFailure(err error) string {
	return fmt.Sprintf("Error extracting raw text: %v", err)
}

// truncateRunes cuts s to at most limit characters
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
