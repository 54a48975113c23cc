package artifact

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/multiversx/wasmer/internal/platform"
	"github.com/multiversx/wasmer/internal/wasm"
)

// The archival body encoding trades compactness for a layout equal to the
// in-memory artifact: a fixed table of offsets and lengths, then the raw
// sections, with the code section placed so that its file offset is
// page-aligned. A consumer that maps the whole file can therefore hand the
// code section to the CPU in place, after restoring its protection.
//
//	u64 infoOff | u64 infoLen
//	u64 metaOff | u64 metaLen
//	u64 codeOff | u64 codeLen
//	u64 protection
//
// Offsets are relative to the body; no absolute pointers appear anywhere,
// so archives are valid across processes.

const archiveTOCSize = 7 * 8

func encodeArchivalBody(a *Artifact) ([]byte, error) {
	infoBytes := wasm.EncodeModuleInfo(a.Info)
	contents := a.CompiledCode.AsSliceContents()

	infoOff := uint64(archiveTOCSize)
	metaOff := infoOff + uint64(len(infoBytes))
	// Align the code section's *file* offset (header + body offset) to the
	// page size so file-mapped consumers can protect it in place.
	pageSize := uint64(os.Getpagesize())
	codeFileOff := (HeaderSize + metaOff + uint64(len(a.BackendMetadata)) + pageSize - 1) &^ (pageSize - 1)
	codeOff := codeFileOff - HeaderSize

	body := make([]byte, codeOff+uint64(len(contents)))
	toc := body[:archiveTOCSize]
	binary.LittleEndian.PutUint64(toc[0:], infoOff)
	binary.LittleEndian.PutUint64(toc[8:], uint64(len(infoBytes)))
	binary.LittleEndian.PutUint64(toc[16:], metaOff)
	binary.LittleEndian.PutUint64(toc[24:], uint64(len(a.BackendMetadata)))
	binary.LittleEndian.PutUint64(toc[32:], codeOff)
	binary.LittleEndian.PutUint64(toc[40:], uint64(len(contents)))
	binary.LittleEndian.PutUint64(toc[48:], uint64(a.CompiledCode.Protection()))

	copy(body[infoOff:], infoBytes)
	copy(body[metaOff:], a.BackendMetadata)
	copy(body[codeOff:], contents)
	return body, nil
}

// archiveSections validates the table of contents against the body length
// and returns the three sections.
func archiveSections(body []byte) (infoBytes, meta, code []byte, protection platform.Protect, err error) {
	if len(body) < archiveTOCSize {
		err = &DeserializeError{Msg: "archive table of contents truncated"}
		return
	}
	read := func(off int) uint64 { return binary.LittleEndian.Uint64(body[off:]) }
	infoOff, infoLen := read(0), read(8)
	metaOff, metaLen := read(16), read(24)
	codeOff, codeLen := read(32), read(40)
	protection = platform.Protect(read(48))

	bodyLen := uint64(len(body))
	for _, section := range [][2]uint64{{infoOff, infoLen}, {metaOff, metaLen}, {codeOff, codeLen}} {
		if section[0] > bodyLen || section[0]+section[1] > bodyLen {
			err = &DeserializeError{Msg: "archive section outside body"}
			return
		}
	}
	infoBytes = body[infoOff : infoOff+infoLen]
	meta = body[metaOff : metaOff+metaLen]
	code = body[codeOff : codeOff+codeLen]
	return
}

func decodeArchivalBody(body []byte) (*Artifact, error) {
	infoBytes, meta, codeBytes, protection, err := archiveSections(body)
	if err != nil {
		return nil, err
	}
	info, err := wasm.DecodeModuleInfo(infoBytes)
	if err != nil {
		return nil, &DeserializeError{Msg: err.Error()}
	}
	metadata := make([]byte, len(meta))
	copy(metadata, meta)

	code, err := restoreCompiledCode(codeBytes, protection)
	if err != nil {
		return nil, err
	}
	return FromParts(info, metadata, code), nil
}

// LoadArchivedFile maps an archival cache file and reconstructs its artifact
// without copying the code section: the file is mapped privately, the code
// pages are re-protected in place, and the mapping is split so the artifact
// owns exactly the code region.
func LoadArchivedFile(path string) (*Artifact, error) {
	mapping, err := platform.FromFilePath(path, platform.ProtectReadWrite)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping archive %s", path)
	}

	fail := func(e error) (*Artifact, error) {
		_ = mapping.Unmap()
		return nil, e
	}

	_, body, err := ReadHeader(mapping.AsSlice())
	if err != nil {
		return fail(err)
	}
	infoBytes, meta, codeBytes, protection, err := archiveSections(body)
	if err != nil {
		return fail(err)
	}
	info, err := wasm.DecodeModuleInfo(infoBytes)
	if err != nil {
		return fail(&DeserializeError{Msg: err.Error()})
	}
	metadata := make([]byte, len(meta))
	copy(metadata, meta)

	if len(codeBytes) == 0 {
		_ = mapping.Unmap()
		code, err := platform.WithContentSizeProtect(0, protection)
		if err != nil {
			return nil, &DeserializeError{Msg: err.Error()}
		}
		return FromParts(info, metadata, code), nil
	}

	// The encoder page-aligned the code section's file offset, so the
	// mapping splits exactly there; the head (header + metadata pages) is
	// released and the artifact keeps the code pages.
	codeFileOff := uintptr(HeaderSize + archiveCodeOff(body))
	code := mapping.SplitAt(codeFileOff)
	if err = mapping.Unmap(); err != nil {
		_ = code.Unmap()
		return nil, errors.Wrap(err, "releasing archive head")
	}
	code.SetContentSize(uint32(len(codeBytes)))
	if err = code.ProtectAll(protection); err != nil {
		_ = code.Unmap()
		return nil, errors.Wrap(err, "restoring code protection")
	}
	return FromParts(info, metadata, code), nil
}

func archiveCodeOff(body []byte) uint64 {
	return binary.LittleEndian.Uint64(body[32:])
}
