package modelmeta

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	previewBanner   = "🔍 Extracted Raw Text:"
	timestampLayout = "2006-01-02 15:04:05"

	logNotFound    = "❌ Error: Model not found."
	logUnsupported = "⚠ Unsupported model format detected."
	logNoReader    = "⚠ No structured metadata reader for this format."
	logRawText     = "📂 Attempting raw text extraction."
)

// Result is everything one extraction call produced
type Result struct {
	Variant Variant

	// Log is the ordered status trail of the call
	Log []string

	// Metadata is nil only when the model path does not exist
	Metadata *Metadata

	// Preview is the bounded raw text, or the inline failure message
	Preview    string
	PreviewErr error
	HasPreview bool
}

// String renders the report: log trail, indented metadata JSON and, for
// variants that extract text, the raw-text preview, separated by blank lines.
func (r *Result) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Log, "\n"))

	if r.Metadata == nil {
		return b.String()
	}

	b.WriteString("\n\n")
	data, err := r.Metadata.IndentedJSON()
	if err != nil {
		data, _ = ErrorRecord("%v", err).IndentedJSON()
	}
	b.Write(data)

	if r.HasPreview {
		b.WriteString("\n\n")
		b.WriteString(previewBanner)
		b.WriteString("\n")
		b.WriteString(r.Preview)
	}

	return b.String()
}

// ParseReportMetadata pulls the serialised metadata back out of a rendered
// report. It returns false for not-found reports, which carry no JSON.
func ParseReportMetadata(report string) (gjson.Result, bool) {
	_, rest, found := strings.Cut(report, "\n\n")
	if !found {
		return gjson.Result{}, false
	}

	segment, _, _ := strings.Cut(rest, "\n\n"+previewBanner)
	if !gjson.Valid(segment) {
		return gjson.Result{}, false
	}
	return gjson.Parse(segment), true
}

// ReportPreview returns the raw-text section of a rendered report
func ReportPreview(report string) (string, bool) {
	_, preview, found := strings.Cut(report, "\n\n"+previewBanner+"\n")
	return preview, found
}
