package modelmeta

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies which of the three metadata shapes a Metadata value holds
type Kind int

const (
	// KindValues is a mapping of recovered metadata keys to values
	KindValues Kind = iota
	// KindError is a single {"error": message} record
	KindError
	// KindWarning is a single {"warning": message} record
	KindWarning
)

const (
	errorKey   = "error"
	warningKey = "warning"
)

// String returns the kind name used in debug logs
func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	default:
		return "values"
	}
}

// Metadata is the structured result of a reader. It is exactly one of a values
// mapping, an error record or a warning record, never a mix.
type Metadata struct {
	kind    Kind
	values  *orderedmap.OrderedMap[string, any]
	message string
}

// NewMetadata creates an empty values mapping that preserves insertion order
func NewMetadata() *Metadata {
	return &Metadata{
		kind:   KindValues,
		values: orderedmap.New[string, any](),
	}
}

// ErrorRecord creates an {"error": ...} record
func ErrorRecord(format string, args ...any) *Metadata {
	return &Metadata{kind: KindError, message: fmt.Sprintf(format, args...)}
}

// WarningRecord creates a {"warning": ...} record
func WarningRecord(message string) *Metadata {
	return &Metadata{kind: KindWarning, message: message}
}

// Kind reports the shape of the metadata
func (m *Metadata) Kind() Kind {
	return m.kind
}

// Message returns the error or warning text, empty for a values mapping
func (m *Metadata) Message() string {
	return m.message
}

// Set stores a value, keeping the position of the first insertion of key.
// It is a no-op on error and warning records.
func (m *Metadata) Set(key string, value any) {
	if m.kind != KindValues {
		return
	}
	m.values.Set(key, value)
}

// Get returns the value stored under key
func (m *Metadata) Get(key string) (any, bool) {
	switch m.kind {
	case KindError:
		return m.message, key == errorKey
	case KindWarning:
		return m.message, key == warningKey
	}
	return m.values.Get(key)
}

// Keys returns the keys in serialisation order
func (m *Metadata) Keys() []string {
	switch m.kind {
	case KindError:
		return []string{errorKey}
	case KindWarning:
		return []string{warningKey}
	}
	keys := make([]string, 0, m.values.Len())
	for pair := m.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of top-level keys
func (m *Metadata) Len() int {
	if m.kind != KindValues {
		return 1
	}
	return m.values.Len()
}

// MarshalJSON renders the metadata as a JSON object in insertion order
func (m *Metadata) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case KindError:
		return json.Marshal(map[string]string{errorKey: m.message})
	case KindWarning:
		return json.Marshal(map[string]string{warningKey: m.message})
	}
	return m.values.MarshalJSON()
}

// IndentedJSON renders the metadata with four-space indentation for the report
func (m *Metadata) IndentedJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
