package testutils

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"
)

// Pickle protocol 2 opcodes used by the fixture builders
const (
	opProto      = 0x80
	opStop       = '.'
	opMark       = '('
	opEmptyDict  = '}'
	opEmptyList  = ']'
	opEmptyTuple = ')'
	opGlobal     = 'c'
	opReduce     = 'R'
	opSetItems   = 'u'
	opAppends    = 'e'
	opBinInt1    = 'K'
	opBinInt2    = 'M'
	opBinUnicode = 'X'
	opBinPersID  = 'Q'
	opLong1      = 0x8a
)

// legacyTorchMagic is 0x1950a86a20f9469cfc6c as little-endian two's complement
var legacyTorchMagic = []byte{0x6c, 0xfc, 0x9c, 0x46, 0xf9, 0x20, 0x6a, 0xa8, 0x50, 0x19}

type pickleWriter struct {
	bytes.Buffer
}

func newPickle() *pickleWriter {
	p := &pickleWriter{}
	p.WriteByte(opProto)
	p.WriteByte(2)
	return p
}

func (p *pickleWriter) str(s string) {
	p.WriteByte(opBinUnicode)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	p.Write(n[:])
	p.WriteString(s)
}

func (p *pickleWriter) small(i int) {
	p.WriteByte(opBinInt1)
	p.WriteByte(byte(i))
}

func (p *pickleWriter) items(keys []string, value func(i int)) {
	if len(keys) == 0 {
		return
	}
	p.WriteByte(opMark)
	for i, k := range keys {
		p.str(k)
		value(i)
	}
	p.WriteByte(opSetItems)
}

func (p *pickleWriter) done() []byte {
	p.WriteByte(opStop)
	return p.Bytes()
}

// PickleDict pickles a builtin dict mapping each key to its index
func PickleDict(keys ...string) []byte {
	p := newPickle()
	p.WriteByte(opEmptyDict)
	p.items(keys, p.small)
	return p.done()
}

// PickleOrderedDict pickles a collections.OrderedDict the way torch state
// dicts are saved
func PickleOrderedDict(keys ...string) []byte {
	p := newPickle()
	p.WriteByte(opGlobal)
	p.WriteString("collections\nOrderedDict\n")
	p.WriteByte(opEmptyTuple)
	p.WriteByte(opReduce)
	p.items(keys, p.small)
	return p.done()
}

// PickleStateDict pickles a dict whose values are persistent storage
// references, as torch does for tensors
func PickleStateDict(keys ...string) []byte {
	p := newPickle()
	p.WriteByte(opEmptyDict)
	p.items(keys, func(i int) {
		p.str("storage" + string(rune('0'+i%10)))
		p.WriteByte(opBinPersID)
	})
	return p.done()
}

// PickleList pickles a list of n small integers
func PickleList(n int) []byte {
	p := newPickle()
	p.WriteByte(opEmptyList)
	if n > 0 {
		p.WriteByte(opMark)
		for i := range n {
			p.small(i)
		}
		p.WriteByte(opAppends)
	}
	return p.done()
}

// TorchLegacyFile wraps a pickled object in the pre-zip torch.save layout:
// magic number, protocol version and system info pickles, then the object
func TorchLegacyFile(object []byte) []byte {
	var buf bytes.Buffer

	magic := newPickle()
	magic.WriteByte(opLong1)
	magic.WriteByte(byte(len(legacyTorchMagic)))
	magic.Write(legacyTorchMagic)
	buf.Write(magic.done())

	version := newPickle()
	version.WriteByte(opBinInt2)
	version.Write([]byte{0xe9, 0x03})
	buf.Write(version.done())

	sysInfo := newPickle()
	sysInfo.WriteByte(opEmptyDict)
	sysInfo.items([]string{"little_endian"}, sysInfo.small)
	buf.Write(sysInfo.done())

	buf.Write(object)
	return buf.Bytes()
}

// TorchZipFile wraps a pickled object in the zip layout used by torch.save
func TorchZipFile(t *testing.T, object []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	records := []struct {
		name string
		data []byte
	}{
		{"archive/data.pkl", object},
		{"archive/version", []byte("3\n")},
		{"archive/data/0", make([]byte, 16)},
	}
	for _, rec := range records {
		w, err := zw.Create(rec.name)
		if err != nil {
			t.Fatalf("failed to create zip record %s: %v", rec.name, err)
		}
		if _, err := w.Write(rec.data); err != nil {
			t.Fatalf("failed to write zip record %s: %v", rec.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// SafetensorsFile builds a safetensors container from a JSON header and data buffer
func SafetensorsFile(header string, buffer []byte) []byte {
	out := make([]byte, 8, 8+len(header)+len(buffer))
	binary.LittleEndian.PutUint64(out, uint64(len(header)))
	out = append(out, header...)
	return append(out, buffer...)
}

// GraphBinaryFile interleaves printable fragments with non-printable filler
func GraphBinaryFile(fragments ...string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x08, 0x01, 0x12, 0x00})
	for _, f := range fragments {
		buf.WriteString(f)
		buf.Write([]byte{0x00, 0x1a, 0xff})
	}
	return buf.Bytes()
}
