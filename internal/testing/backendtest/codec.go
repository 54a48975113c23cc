package backendtest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/wasm"
)

// The compiled form of a module under this backend is the instrumented event
// stream itself, flattened to a fixed binary encoding. Breakpoint handlers
// are closures and cannot cross processes, so they are encoded as a bare tag
// and re-bound at load time to the one behavior every injected breakpoint in
// this runtime has: surface the breakpoint field's value as a typed error.

const (
	tagFunctionBegin byte = iota
	tagFunctionEnd
	tagGetInternal
	tagSetInternal
	tagBreakpoint
	tagWasmOp
)

type instr struct {
	tag   byte
	field uint32
	op    wasm.Operator
}

func appendEvent(dst []byte, ev middleware.Event) []byte {
	switch ev.Kind {
	case middleware.EventFunctionBegin:
		dst = append(dst, tagFunctionBegin)
		dst = appendU32(dst, ev.FunctionIndex)
	case middleware.EventFunctionEnd:
		dst = append(dst, tagFunctionEnd)
	case middleware.EventGetInternal:
		dst = append(dst, tagGetInternal)
		dst = appendU32(dst, uint32(ev.Field))
	case middleware.EventSetInternal:
		dst = append(dst, tagSetInternal)
		dst = appendU32(dst, uint32(ev.Field))
	case middleware.EventBreakpoint:
		dst = append(dst, tagBreakpoint)
	case middleware.EventWasmOp:
		dst = append(dst, tagWasmOp)
		dst = appendOperator(dst, ev.Op)
	}
	return dst
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func appendOperator(dst []byte, op *wasm.Operator) []byte {
	dst = append(dst, byte(op.Opcode), byte(op.Opcode>>8))
	dst = appendU32(dst, op.U32)
	dst = appendU64(dst, op.U64)
	dst = appendU32(dst, uint32(op.I32))
	dst = appendU64(dst, uint64(op.I64))
	dst = appendU32(dst, math.Float32bits(op.F32))
	dst = appendU64(dst, math.Float64bits(op.F64))
	dst = appendU32(dst, uint32(int32(op.Block)))
	dst = appendU32(dst, uint32(len(op.Depths)))
	for _, d := range op.Depths {
		dst = appendU32(dst, d)
	}
	return dst
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) u8() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, fmt.Errorf("program truncated at %d", d.off)
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.off+4 > len(d.buf) {
		return 0, fmt.Errorf("program truncated at %d", d.off)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.off+8 > len(d.buf) {
		return 0, fmt.Errorf("program truncated at %d", d.off)
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) instr() (instr, error) {
	tag, err := d.u8()
	if err != nil {
		return instr{}, err
	}
	in := instr{tag: tag}
	switch tag {
	case tagFunctionBegin, tagGetInternal, tagSetInternal:
		in.field, err = d.u32()
	case tagWasmOp:
		err = d.operator(&in.op)
	case tagFunctionEnd, tagBreakpoint:
	default:
		err = fmt.Errorf("unknown instruction tag %d", tag)
	}
	return in, err
}

func (d *decoder) operator(op *wasm.Operator) error {
	lo, err := d.u8()
	if err != nil {
		return err
	}
	hi, err := d.u8()
	if err != nil {
		return err
	}
	op.Opcode = wasm.Opcode(lo) | wasm.Opcode(hi)<<8

	if op.U32, err = d.u32(); err != nil {
		return err
	}
	if op.U64, err = d.u64(); err != nil {
		return err
	}
	u, err := d.u32()
	if err != nil {
		return err
	}
	op.I32 = int32(u)
	v, err := d.u64()
	if err != nil {
		return err
	}
	op.I64 = int64(v)
	if u, err = d.u32(); err != nil {
		return err
	}
	op.F32 = math.Float32frombits(u)
	if v, err = d.u64(); err != nil {
		return err
	}
	op.F64 = math.Float64frombits(v)
	if u, err = d.u32(); err != nil {
		return err
	}
	op.Block = wasm.BlockType(int32(u))
	n, err := d.u32()
	if err != nil {
		return err
	}
	if n > 0 {
		op.Depths = make([]uint32, n)
		for i := range op.Depths {
			if op.Depths[i], err = d.u32(); err != nil {
				return err
			}
		}
	}
	return nil
}
