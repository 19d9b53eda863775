package modelmeta

import (
	"fmt"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultMinConfidence is the lowest chardet confidence (0-100) accepted as a detected encoding
const DefaultMinConfidence = 10

// chardet reports a few charsets under names the x/text indexes don't know
var charsetAliases = map[string]string{
	"gb-18030": "gb18030",
}

// EncodingResolver infers the text encoding of a byte buffer
type EncodingResolver struct {
	MinConfidence int
}

// Detect returns the most probable charset, or false when nothing is confident enough
func (r EncodingResolver) Detect(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Charset == "" {
		return "", false
	}
	if result.Confidence < r.MinConfidence {
		return "", false
	}

	return result.Charset, true
}

// DetectEncoding detects with the default confidence threshold
func DetectEncoding(data []byte) (string, bool) {
	return EncodingResolver{MinConfidence: DefaultMinConfidence}.Detect(data)
}

// DecodeText decodes data from the named charset, dropping undecodable bytes
func DecodeText(data []byte, charset string) (string, error) {
	if isUTF8(charset) {
		return strings.ToValidUTF8(string(data), ""), nil
	}

	enc, err := lookupEncoding(charset)
	if err != nil {
		return "", err
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s text: %w", charset, err)
	}

	// x/text substitutes U+FFFD for invalid input; drop it to match ignore semantics
	return strings.ReplaceAll(string(decoded), "\uFFFD", ""), nil
}

func isUTF8(charset string) bool {
	name := strings.ToLower(charset)
	return name == "utf-8" || name == "utf8" || name == "ascii" || name == "us-ascii"
}

func lookupEncoding(charset string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	if alias, ok := charsetAliases[name]; ok {
		name = alias
	}

	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", charset)
	}
	return enc, nil
}
