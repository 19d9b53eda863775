package modelmeta

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// ErrFileTooLarge is returned when a model file exceeds the configured size limit
var ErrFileTooLarge = errors.New("model file exceeds size limit")

// Source is a model file loaded fully into memory for a single extraction
type Source struct {
	Path string
	Data []byte
}

// loadSource reads the whole file through one handle that is released on every path
func loadSource(path string, maxSize int64) (src *Source, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close model file: %w", closeErr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat model file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("model path is a directory: %s", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %s", ErrFileTooLarge,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(maxSize)))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	return &Source{Path: path, Data: data}, nil
}

// Describe returns the human readable size and sniffed content type of the file
func (s *Source) Describe() string {
	return fmt.Sprintf("%s (%s)", humanize.Bytes(uint64(len(s.Data))), mimetype.Detect(s.Data).String())
}
