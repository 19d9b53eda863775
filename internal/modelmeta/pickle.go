package modelmeta

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
)

// torchLegacyMagic is the number pickled at the start of pre-1.6 torch.save files
var torchLegacyMagic, _ = new(big.Int).SetString("1950a86a20f9469cfc6c", 16)

var zipSignature = []byte("PK\x03\x04")

// Python classes whose instances behave as mappings once populated.
// collections.OrderedDict is resolved by gopickle itself.
var mappingClasses = map[string]bool{
	"collections.defaultdict": true,
}

// pyClass stands in for any Python global a pickle references. Nothing is
// imported or executed, the class only records what was asked for.
type pyClass struct {
	Module string
	Name   string
}

func (c *pyClass) qualifiedName() string {
	return c.Module + "." + c.Name
}

// Call is invoked by REDUCE
func (c *pyClass) Call(args ...any) (any, error) {
	return &pyObject{class: c, args: args}, nil
}

// PyNew is invoked by NEWOBJ
func (c *pyClass) PyNew(args ...any) (any, error) {
	return &pyObject{class: c, args: args}, nil
}

// pyObject is an inert instance of a pyClass. It remembers keys set on it so
// mapping-style checkpoints can still report their top-level keys.
type pyObject struct {
	class *pyClass
	args  []any
	keys  []any
	seen  map[string]bool
	items int
	state any
}

func (o *pyObject) Set(key, _ any) {
	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	id := fmt.Sprintf("%T:%v", key, key)
	if o.seen[id] {
		return
	}
	o.seen[id] = true
	o.keys = append(o.keys, key)
}

func (o *pyObject) Append(_ any) {
	o.items++
}

func (o *pyObject) PySetState(state any) error {
	o.state = state
	return nil
}

func (o *pyObject) PyDictSet(key, value any) error {
	o.Set(key, value)
	return nil
}

func (o *pyObject) PyAttrSet(_ string, _ any) error {
	return nil
}

func (o *pyObject) isMapping() bool {
	return len(o.keys) > 0 || mappingClasses[o.class.qualifiedName()]
}

// storageRef replaces a persistent tensor storage so tensor data is never read
type storageRef struct {
	id any
}

func findPlaceholderClass(module, name string) (any, error) {
	return &pyClass{Module: module, Name: name}, nil
}

func loadPlaceholderStorage(pid any) (any, error) {
	return &storageRef{id: pid}, nil
}

func unpickle(r io.Reader) (any, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findPlaceholderClass
	u.PersistentLoad = loadPlaceholderStorage
	return u.Load()
}

// loadObjectGraph deserialises a torch zip archive, a legacy torch stream or a
// plain pickle into its top-level object.
func loadObjectGraph(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	if bytes.HasPrefix(data, zipSignature) {
		return loadTorchArchive(data)
	}
	return loadPickleStream(data)
}

func loadTorchArchive(data []byte) (any, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint archive: %w", err)
	}

	var record *zip.File
	for _, f := range archive.File {
		if path.Base(f.Name) != "data.pkl" {
			continue
		}
		if record == nil || len(f.Name) < len(record.Name) {
			record = f
		}
	}
	if record == nil {
		return nil, errors.New("checkpoint archive has no data.pkl record")
	}

	rc, err := record.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", record.Name, err)
	}
	defer func() { _ = rc.Close() }()

	obj, err := unpickle(bufio.NewReader(rc))
	if err != nil {
		return nil, fmt.Errorf("failed to unpickle %s: %w", record.Name, err)
	}
	return obj, nil
}

func loadPickleStream(data []byte) (any, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	first, err := unpickle(r)
	if err != nil {
		return nil, fmt.Errorf("failed to unpickle: %w", err)
	}
	if !isTorchLegacyMagic(first) {
		return first, nil
	}

	// protocol version and system info precede the object itself
	for _, part := range []string{"protocol version", "system info"} {
		if _, err := unpickle(r); err != nil {
			return nil, fmt.Errorf("failed to read legacy checkpoint %s: %w", part, err)
		}
	}

	obj, err := unpickle(r)
	if err != nil {
		return nil, fmt.Errorf("failed to unpickle legacy checkpoint: %w", err)
	}
	return obj, nil
}

func isTorchLegacyMagic(v any) bool {
	switch n := v.(type) {
	case *big.Int:
		return n != nil && n.Cmp(torchLegacyMagic) == 0
	case big.Int:
		return n.Cmp(torchLegacyMagic) == 0
	}
	return false
}

// topLevelKeys lists the keys of a deserialised mapping without touching values
func topLevelKeys(obj any) ([]string, error) {
	switch v := obj.(type) {
	case *pyObject:
		if !v.isMapping() {
			return nil, fmt.Errorf("'%s' object has no attribute 'keys'", v.class.Name)
		}
		return stringKeys(v.keys), nil
	case *types.OrderedDict:
		return stringKeys(orderedDictKeys(v)), nil
	case *types.Dict:
		if v == nil {
			break
		}
		return stringKeys(v.Keys()), nil
	}
	return nil, fmt.Errorf("'%s' object has no attribute 'keys'", pythonTypeName(obj))
}

// orderedDictKeys walks an OrderedDict in insertion order
func orderedDictKeys(od *types.OrderedDict) []any {
	if od == nil || od.List == nil {
		return nil
	}
	keys := make([]any, 0, od.List.Len())
	for e := od.List.Front(); e != nil; e = e.Next() {
		if entry, ok := e.Value.(*types.OrderedDictEntry); ok {
			keys = append(keys, entry.Key)
		}
	}
	return keys
}

func stringKeys(keys []any) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprint(k))
	}
	return out
}

func pythonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case *types.List:
		return "list"
	case *types.Tuple:
		return "tuple"
	case *types.OrderedDict:
		return "OrderedDict"
	case string:
		return "str"
	case bool:
		return "bool"
	case int, int64, *big.Int:
		return "int"
	case float64:
		return "float"
	case *storageRef:
		return "Storage"
	}
	return fmt.Sprintf("%T", v)
}
