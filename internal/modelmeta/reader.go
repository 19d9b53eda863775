package modelmeta

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Reader extracts structured metadata from a loaded model file. Implementations
// must report every failure as an error record rather than returning an error.
type Reader interface {
	// Method is the extraction method name written to the log trail
	Method() string

	// Read maps the file contents to a metadata value
	Read(src *Source) *Metadata
}

// failurePrefixer is implemented by readers that word their own error records
type failurePrefixer interface {
	FailurePrefix() string
}

func failurePrefix(reader Reader) string {
	if fp, ok := reader.(failurePrefixer); ok {
		return fp.FailurePrefix()
	}
	return "Metadata extraction failed"
}

// safeRead runs a reader and converts a panic from an underlying parser into an
// error record, so a hostile file can never abort the caller.
func safeRead(reader Reader, src *Source, logger *logrus.Logger) (md *Metadata) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"method": reader.Method(),
				"path":   src.Path,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			}).Debug("Reader panicked, converting to error record")
			md = ErrorRecord("%s: %v", failurePrefix(reader), r)
		}
	}()

	md = reader.Read(src)
	if md == nil {
		md = ErrorRecord("%s: reader returned no metadata", failurePrefix(reader))
	}
	return md
}
