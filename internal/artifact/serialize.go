package artifact

import (
	"bytes"
	"encoding/binary"

	"github.com/golang/snappy"

	"github.com/multiversx/wasmer/internal/platform"
	"github.com/multiversx/wasmer/internal/u32"
	"github.com/multiversx/wasmer/internal/wasm"
)

// The sequential body encoding:
//
//	u32 infoLen  | snappy-compressed module info
//	u32 metaLen  | backend metadata
//	u32 contentSize | u8 protection | code contents
//
// The module info block dominates small modules and compresses well; the
// code contents are stored raw because they are what the loader copies
// straight into the fresh mapping.

func encodeSequentialBody(a *Artifact) ([]byte, error) {
	buf := bytes.NewBuffer(nil)

	infoBlob := snappy.Encode(nil, wasm.EncodeModuleInfo(a.Info))
	buf.Write(u32.LeBytes(uint32(len(infoBlob))))
	buf.Write(infoBlob)

	buf.Write(u32.LeBytes(uint32(len(a.BackendMetadata))))
	buf.Write(a.BackendMetadata)

	contents := a.CompiledCode.AsSliceContents()
	buf.Write(u32.LeBytes(uint32(len(contents))))
	buf.WriteByte(byte(a.CompiledCode.Protection()))
	buf.Write(contents)

	return buf.Bytes(), nil
}

func decodeSequentialBody(body []byte) (*Artifact, error) {
	infoBlob, body, err := takeBlock(body, "module info")
	if err != nil {
		return nil, err
	}
	infoBytes, err := snappy.Decode(nil, infoBlob)
	if err != nil {
		return nil, &DeserializeError{Msg: "decompressing module info: " + err.Error()}
	}
	info, err := wasm.DecodeModuleInfo(infoBytes)
	if err != nil {
		return nil, &DeserializeError{Msg: err.Error()}
	}

	meta, body, err := takeBlock(body, "backend metadata")
	if err != nil {
		return nil, err
	}
	metadata := make([]byte, len(meta))
	copy(metadata, meta)

	if len(body) < 5 {
		return nil, &DeserializeError{Msg: "compiled code block truncated"}
	}
	contentSize := binary.LittleEndian.Uint32(body[:4])
	protection := platform.Protect(body[4])
	body = body[5:]
	if uint64(len(body)) < uint64(contentSize) {
		return nil, &DeserializeError{Msg: "compiled code contents truncated"}
	}

	code, err := restoreCompiledCode(body[:contentSize], protection)
	if err != nil {
		return nil, err
	}
	return FromParts(info, metadata, code), nil
}

// takeBlock reads one u32-length-prefixed block.
func takeBlock(body []byte, what string) (block, rest []byte, err error) {
	if len(body) < 4 {
		return nil, nil, &DeserializeError{Msg: what + " length truncated"}
	}
	n := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]
	if uint64(len(body)) < uint64(n) {
		return nil, nil, &DeserializeError{Msg: what + " contents truncated"}
	}
	return body[:n], body[n:], nil
}
