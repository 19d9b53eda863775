package modelmeta

// CheckpointReader deserialises torch-family checkpoints and reports only the
// names of the top-level keys. Values, tensors included, are never surfaced.
type CheckpointReader struct{}

func (r *CheckpointReader) Method() string { return "Checkpoint/Torch" }

func (r *CheckpointReader) FailurePrefix() string { return "Torch model extraction failed" }

func (r *CheckpointReader) Read(src *Source) *Metadata {
	obj, err := loadObjectGraph(src.Data)
	if err != nil {
		return ErrorRecord("%s: %v", r.FailurePrefix(), err)
	}

	keys, err := topLevelKeys(obj)
	if err != nil {
		return ErrorRecord("%s: %v", r.FailurePrefix(), err)
	}

	md := NewMetadata()
	md.Set("metadata_keys", keys)
	return md
}
