package artifact

import (
	"github.com/multiversx/wasmer/internal/platform"
	"github.com/multiversx/wasmer/internal/wasm"
)

// Artifact is the serializable unit produced by compilation. Its three parts
// were produced together and must round-trip together: the module metadata,
// an opaque blob only the generating backend interprets, and the executable
// code region.
type Artifact struct {
	Info            *wasm.ModuleInfo
	BackendMetadata []byte
	CompiledCode    *platform.Memory
}

// FromParts assembles an artifact.
func FromParts(info *wasm.ModuleInfo, backendMetadata []byte, compiledCode *platform.Memory) *Artifact {
	return &Artifact{
		Info:            info,
		BackendMetadata: backendMetadata,
		CompiledCode:    compiledCode,
	}
}

// Consume dismantles the artifact into its parts.
func (a *Artifact) Consume() (*wasm.ModuleInfo, []byte, *platform.Memory) {
	return a.Info, a.BackendMetadata, a.CompiledCode
}

// Close releases the executable region.
func (a *Artifact) Close() error {
	if a.CompiledCode == nil {
		return nil
	}
	err := a.CompiledCode.Unmap()
	a.CompiledCode = nil
	return err
}

// Serialize encodes the artifact with the process-global scheme, prefixed by
// the cache header.
func (a *Artifact) Serialize() ([]byte, error) {
	var body []byte
	var err error
	switch CurrentScheme() {
	case SchemeArchival:
		body, err = encodeArchivalBody(a)
	default:
		body, err = encodeSequentialBody(a)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, HeaderSize+len(body))
	out = AppendHeader(out, uint64(len(body)))
	return append(out, body...), nil
}

// Deserialize validates the header and decodes the body with the
// process-global scheme. The compiled code lands in a fresh page-aligned
// mapping carrying its original protection.
func Deserialize(buffer []byte) (*Artifact, error) {
	_, body, err := ReadHeader(buffer)
	if err != nil {
		return nil, err
	}
	switch CurrentScheme() {
	case SchemeArchival:
		return decodeArchivalBody(body)
	default:
		return decodeSequentialBody(body)
	}
}

// restoreCompiledCode maps contents into a fresh ReadWrite region of at
// least len(contents) bytes, then applies the captured protection. This is
// the shared tail of both body decoders.
func restoreCompiledCode(contents []byte, protection platform.Protect) (*platform.Memory, error) {
	mem, err := platform.WithContentSizeProtect(uint32(len(contents)), platform.ProtectReadWrite)
	if err != nil {
		return nil, &DeserializeError{Msg: err.Error()}
	}
	copy(mem.AsSliceMut(), contents)
	if protection != platform.ProtectReadWrite {
		if err = mem.ProtectAll(protection); err != nil {
			_ = mem.Unmap()
			return nil, &DeserializeError{Msg: err.Error()}
		}
	}
	return mem, nil
}
