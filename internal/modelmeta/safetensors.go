package modelmeta

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

const (
	safetensorsLengthPrefix = 8
	// Same ceiling the reference safetensors loader applies to header size
	maxSafetensorsHeader = 100 * 1024 * 1024
	safetensorsMetadata  = "__metadata__"
)

var (
	ErrHeaderTooSmall = errors.New("header too small")
	ErrHeaderTooLarge = errors.New("header too large")
	ErrInvalidHeader  = errors.New("invalid header")
)

// SafetensorsReader returns the embedded __metadata__ mapping of a safetensors
// container verbatim, in header order.
type SafetensorsReader struct{}

func (r *SafetensorsReader) Method() string { return "Safetensors" }

func (r *SafetensorsReader) FailurePrefix() string { return "Safetensors extraction failed" }

func (r *SafetensorsReader) Read(src *Source) *Metadata {
	md, err := ParseSafetensorsMetadata(src.Data)
	if err != nil {
		return ErrorRecord("%s: %v", r.FailurePrefix(), err)
	}
	return md
}

// ParseSafetensorsMetadata validates the container header and returns its
// metadata. A header without __metadata__ yields an empty mapping.
func ParseSafetensorsMetadata(data []byte) (*Metadata, error) {
	if len(data) < safetensorsLengthPrefix {
		return nil, fmt.Errorf("%w: file is %d bytes", ErrHeaderTooSmall, len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:safetensorsLengthPrefix])
	if headerLen < 2 {
		return nil, fmt.Errorf("%w: declared header length %d", ErrHeaderTooSmall, headerLen)
	}
	if headerLen > maxSafetensorsHeader {
		return nil, fmt.Errorf("%w: declared header length %d", ErrHeaderTooLarge, headerLen)
	}
	available := uint64(len(data) - safetensorsLengthPrefix)
	if headerLen > available {
		return nil, fmt.Errorf("%w: declared header length %d but only %d bytes follow", ErrInvalidHeader, headerLen, available)
	}

	header := data[safetensorsLengthPrefix : safetensorsLengthPrefix+headerLen]
	if !json.Valid(header) {
		return nil, fmt.Errorf("%w: header is not valid JSON", ErrInvalidHeader)
	}
	bufferLen := available - headerLen

	md := NewMetadata()
	err := jsonparser.ObjectEach(header, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		// ObjectEach has already unescaped the key
		name := string(key)
		if name == safetensorsMetadata {
			return readMetadataBlock(value, dataType, md)
		}
		return checkTensorEntry(name, value, dataType, bufferLen)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidHeader) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	return md, nil
}

func readMetadataBlock(value []byte, dataType jsonparser.ValueType, md *Metadata) error {
	switch dataType {
	case jsonparser.Null:
		return nil
	case jsonparser.Object:
	default:
		return fmt.Errorf("%w: %s must be an object, got %s", ErrInvalidHeader, safetensorsMetadata, dataType)
	}

	return jsonparser.ObjectEach(value, func(key []byte, v []byte, vt jsonparser.ValueType, _ int) error {
		name := string(key)
		if vt != jsonparser.String {
			return fmt.Errorf("%w: metadata value for %q is a %s, expected string", ErrInvalidHeader, name, vt)
		}
		text, err := jsonparser.ParseString(v)
		if err != nil {
			return fmt.Errorf("%w: bad metadata value for %q: %v", ErrInvalidHeader, name, err)
		}
		md.Set(name, text)
		return nil
	})
}

// checkTensorEntry makes sure a tensor's byte range lies inside the data buffer
func checkTensorEntry(name string, value []byte, dataType jsonparser.ValueType, bufferLen uint64) error {
	if dataType != jsonparser.Object {
		return fmt.Errorf("%w: tensor %q is a %s, expected object", ErrInvalidHeader, name, dataType)
	}
	if _, err := jsonparser.GetString(value, "dtype"); err != nil {
		return fmt.Errorf("%w: tensor %q has no dtype", ErrInvalidHeader, name)
	}

	var offsets []int64
	var parseErr error
	_, err := jsonparser.ArrayEach(value, func(v []byte, vt jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		if vt != jsonparser.Number {
			parseErr = fmt.Errorf("%w: tensor %q has a non-numeric offset", ErrInvalidHeader, name)
			return
		}
		n, err := jsonparser.ParseInt(v)
		if err != nil {
			parseErr = fmt.Errorf("%w: tensor %q offset: %v", ErrInvalidHeader, name, err)
			return
		}
		offsets = append(offsets, n)
	}, "data_offsets")
	if err != nil {
		return fmt.Errorf("%w: tensor %q has no data_offsets", ErrInvalidHeader, name)
	}
	if parseErr != nil {
		return parseErr
	}
	if len(offsets) != 2 || offsets[0] < 0 || offsets[0] > offsets[1] {
		return fmt.Errorf("%w: tensor %q has malformed data_offsets %v", ErrInvalidHeader, name, offsets)
	}
	if uint64(offsets[1]) > bufferLen {
		return fmt.Errorf("%w: tensor %q ends at byte %d but the data buffer is %d bytes", ErrInvalidHeader, name, offsets[1], bufferLen)
	}

	return nil
}
