package artifact

import (
	"encoding/binary"
)

// The on-disk header of a cache binary:
//
//	offset 0  : magic    : 8 bytes, "WASMER\0\0"
//	offset 8  : version  : uint64 little-endian
//	offset 16 : data_len : uint64 little-endian
//	offset 24 : body     : data_len bytes, scheme-encoded artifact

// CacheMagic is the literal at the start of every cache binary.
var CacheMagic = [8]byte{'W', 'A', 'S', 'M', 'E', 'R', 0, 0}

// CurrentCacheVersion is the version written into produced caches; loading
// rejects any other value with ErrInvalidatedCache.
const CurrentCacheVersion uint64 = 0

// HeaderSize is the packed size of the header.
const HeaderSize = 24

// Header is the decoded form of the cache header.
type Header struct {
	Magic   [8]byte
	Version uint64
	DataLen uint64
}

// ReadHeader validates buffer and splits it into header and body. The checks
// run in order: size, magic, version.
func ReadHeader(buffer []byte) (*Header, []byte, error) {
	if len(buffer) < HeaderSize {
		return nil, nil, ErrInvalidSize
	}
	var h Header
	copy(h.Magic[:], buffer[:8])
	if h.Magic != CacheMagic {
		return nil, nil, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint64(buffer[8:16])
	if h.Version != CurrentCacheVersion {
		return nil, nil, ErrInvalidatedCache
	}
	h.DataLen = binary.LittleEndian.Uint64(buffer[16:24])
	body := buffer[HeaderSize:]
	if uint64(len(body)) < h.DataLen {
		return nil, nil, ErrInvalidSize
	}
	return &h, body[:h.DataLen], nil
}

// AppendHeader appends a header with the given body length to dst.
func AppendHeader(dst []byte, dataLen uint64) []byte {
	dst = append(dst, CacheMagic[:]...)
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], CurrentCacheVersion)
	binary.LittleEndian.PutUint64(b[8:], dataLen)
	return append(dst, b[:]...)
}
