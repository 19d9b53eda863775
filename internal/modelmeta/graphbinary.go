package modelmeta

import "strings"

// NoMetadataWarning is reported when no scanned fragment looks like metadata
const NoMetadataWarning = "No structured metadata found."

// metadataIndicators are the substrings that mark a scanned fragment as metadata
var metadataIndicators = []string{"author", "description", "license", "version", "model_name"}

// GraphBinaryReader is a heuristic for formats with no metadata API (ONNX,
// GGUF, opaque blobs). It keeps every printable fragment that mentions one of
// the indicator words; the fragment serves as both key and value because the
// scan cannot tell a field name from its value. Any fragment containing e.g.
// "version" qualifies, so false positives are expected.
type GraphBinaryReader struct {
	MinRunLength int
}

func (r *GraphBinaryReader) Method() string { return "Direct Binary Parsing" }

func (r *GraphBinaryReader) FailurePrefix() string { return "Failed to extract metadata" }

func (r *GraphBinaryReader) Read(src *Source) *Metadata {
	md := NewMetadata()
	for _, fragment := range ScanText(src.Data, r.MinRunLength) {
		if _, ok := md.Get(fragment); ok {
			continue
		}
		if mentionsMetadata(fragment) {
			md.Set(fragment, fragment)
		}
	}

	if md.Len() == 0 {
		return WarningRecord(NoMetadataWarning)
	}
	return md
}

func mentionsMetadata(fragment string) bool {
	lower := strings.ToLower(fragment)
	for _, indicator := range metadataIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
