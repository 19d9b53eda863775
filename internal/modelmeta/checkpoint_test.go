package modelmeta_test

import (
	"testing"

	"github.com/sammcj/mcp-modelmeta/internal/modelmeta"
	"github.com/sammcj/mcp-modelmeta/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Streams written by CPython's pickle module for
// OrderedDict([("model", 1), ("optimizer", 2)]).
const (
	pythonOrderedDictProto2 = "\x80\x02ccollections\nOrderedDict\nq\x00)Rq\x01(X\x05\x00\x00\x00modelq\x02K\x01" +
		"X\t\x00\x00\x00optimizerq\x03K\x02u."
	pythonOrderedDictProto4 = "\x80\x04\x95<\x00\x00\x00\x00\x00\x00\x00\x8c\x0bcollections\x94\x8c\x0bOrderedDict\x94" +
		"\x93\x94)R\x94(\x8c\x05model\x94K\x01\x8c\toptimizer\x94K\x02u."
)

// pythonStateDict is the data.pkl torch.save writes for a two-tensor state_dict
const pythonStateDict = "\x80\x02ccollections\nOrderedDict\nq\x00)Rq\x01(X\t\x00\x00\x00fc.weightq\x02" +
	"ctorch._utils\n_rebuild_tensor_v2\nq\x03((X\x07\x00\x00\x00storageq\x04X\x0c\x00\x00\x00FloatStorageq\x05" +
	"X\x01\x00\x00\x000q\x06X\x03\x00\x00\x00cpuq\x07K\x02tq\x08QK\x00K\x02\x85q\tK\x01\x85q\n\x89h\x00)Rq\x0btq\x0cRq\r" +
	"X\x07\x00\x00\x00fc.biasq\x0eh\x03((h\x04h\x05X\x01\x00\x00\x001q\x0fh\x07K\x02tq\x10QK\x00h\th\n\x89h\x00)Rq\x11tq\x12Rq\x13u."

func TestCheckpointReader_Read(t *testing.T) {
	tests := []struct {
		name     string
		data     func(t *testing.T) []byte
		expected []string
	}{
		{
			name:     "plain dict",
			data:     func(*testing.T) []byte { return testutils.PickleDict("epoch", "state_dict", "optimizer") },
			expected: []string{"epoch", "state_dict", "optimizer"},
		},
		{
			name:     "ordered dict",
			data:     func(*testing.T) []byte { return testutils.PickleOrderedDict("conv.weight", "conv.bias") },
			expected: []string{"conv.weight", "conv.bias"},
		},
		{
			name:     "empty ordered dict",
			data:     func(*testing.T) []byte { return testutils.PickleOrderedDict() },
			expected: []string{},
		},
		{
			name:     "persistent tensor storage is not loaded",
			data:     func(*testing.T) []byte { return testutils.PickleStateDict("fc.weight", "fc.bias") },
			expected: []string{"fc.weight", "fc.bias"},
		},
		{
			name: "zip archive",
			data: func(t *testing.T) []byte {
				return testutils.TorchZipFile(t, testutils.PickleOrderedDict("encoder.weight", "decoder.weight"))
			},
			expected: []string{"encoder.weight", "decoder.weight"},
		},
		{
			name:     "python ordered dict protocol 2",
			data:     func(*testing.T) []byte { return []byte(pythonOrderedDictProto2) },
			expected: []string{"model", "optimizer"},
		},
		{
			name:     "python ordered dict protocol 4",
			data:     func(*testing.T) []byte { return []byte(pythonOrderedDictProto4) },
			expected: []string{"model", "optimizer"},
		},
		{
			name: "python state dict in zip archive",
			data: func(t *testing.T) []byte {
				return testutils.TorchZipFile(t, []byte(pythonStateDict))
			},
			expected: []string{"fc.weight", "fc.bias"},
		},
		{
			name:     "legacy stream",
			data:     func(*testing.T) []byte { return testutils.TorchLegacyFile(testutils.PickleDict("model", "args")) },
			expected: []string{"model", "args"},
		},
	}

	reader := &modelmeta.CheckpointReader{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := reader.Read(&modelmeta.Source{Data: tt.data(t)})
			require.Equal(t, modelmeta.KindValues, md.Kind(), md.Message())
			assert.Equal(t, []string{"metadata_keys"}, md.Keys())

			keys, ok := md.Get("metadata_keys")
			require.True(t, ok)
			assert.Equal(t, tt.expected, keys)
		})
	}
}

func TestCheckpointReader_Failures(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		contains string
	}{
		{"empty file", nil, "file is empty"},
		{"not a pickle", []byte("\x00\x01\x02 definitely not a pickle"), "Torch model extraction failed: "},
		{"top-level list", testutils.PickleList(3), "has no attribute 'keys'"},
		{"broken zip", []byte("PK\x03\x04 truncated archive"), "Torch model extraction failed: "},
	}

	reader := &modelmeta.CheckpointReader{}
	assert.Equal(t, "Checkpoint/Torch", reader.Method())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := reader.Read(&modelmeta.Source{Data: tt.data})
			require.Equal(t, modelmeta.KindError, md.Kind())
			assert.Contains(t, md.Message(), "Torch model extraction failed: ")
			assert.Contains(t, md.Message(), tt.contains)
		})
	}
}
