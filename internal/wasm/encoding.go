package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// ModuleInfo's serialized form is a sequential little-endian encoding: every
// slice and map is length-prefixed, strings are byte-length-prefixed, and
// map keys are written in sorted order so the encoding is deterministic.

type infoWriter struct {
	buf bytes.Buffer
}

func (w *infoWriter) u8(v byte)    { w.buf.WriteByte(v) }
func (w *infoWriter) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}
func (w *infoWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}
func (w *infoWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}
func (w *infoWriter) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.buf.Write(v)
}
func (w *infoWriter) str(v string) { w.bytes([]byte(v)) }
func (w *infoWriter) valueTypes(v []ValueType) {
	w.u32(uint32(len(v)))
	for _, t := range v {
		w.u8(byte(t))
	}
}
func (w *infoWriter) u32s(v []uint32) {
	w.u32(uint32(len(v)))
	for _, x := range v {
		w.u32(x)
	}
}
func (w *infoWriter) constExpr(e ConstExpr) {
	w.u8(byte(e.Kind))
	w.u64(e.Value)
}
func (w *infoWriter) importName(n ImportName) {
	w.str(n.Module)
	w.str(n.Name)
}
func (w *infoWriter) memoryDesc(d MemoryDescriptor) {
	w.u32(d.Minimum)
	w.u32(d.Maximum)
	w.bool(d.HasMax)
	w.bool(d.Shared)
}
func (w *infoWriter) tableDesc(d TableDescriptor) {
	w.u8(byte(d.ElementType))
	w.u32(d.Minimum)
	w.u32(d.Maximum)
	w.bool(d.HasMax)
}
func (w *infoWriter) globalDesc(d GlobalDescriptor) {
	w.u8(byte(d.Type))
	w.bool(d.Mutable)
}

// EncodeModuleInfo serializes info into its artifact form.
func EncodeModuleInfo(info *ModuleInfo) []byte {
	w := &infoWriter{}

	w.u32(uint32(len(info.Signatures)))
	for i := range info.Signatures {
		w.valueTypes(info.Signatures[i].Params)
		w.valueTypes(info.Signatures[i].Results)
	}
	w.u32s(info.FuncAssoc)

	w.u32(uint32(len(info.ImportedFunctions)))
	for _, n := range info.ImportedFunctions {
		w.importName(n)
	}
	w.u32(uint32(len(info.ImportedMemories)))
	for _, m := range info.ImportedMemories {
		w.importName(m.Name)
		w.memoryDesc(m.Desc)
	}
	w.u32(uint32(len(info.ImportedTables)))
	for _, t := range info.ImportedTables {
		w.importName(t.Name)
		w.tableDesc(t.Desc)
	}
	w.u32(uint32(len(info.ImportedGlobals)))
	for _, g := range info.ImportedGlobals {
		w.importName(g.Name)
		w.globalDesc(g.Desc)
	}

	w.u32(uint32(len(info.Memories)))
	for _, m := range info.Memories {
		w.memoryDesc(m)
	}
	w.u32(uint32(len(info.Tables)))
	for _, t := range info.Tables {
		w.tableDesc(t)
	}
	w.u32(uint32(len(info.Globals)))
	for _, g := range info.Globals {
		w.globalDesc(g.Desc)
		w.constExpr(g.Init)
	}

	exportNames := make([]string, 0, len(info.Exports))
	for name := range info.Exports {
		exportNames = append(exportNames, name)
	}
	sort.Strings(exportNames)
	w.u32(uint32(len(exportNames)))
	for _, name := range exportNames {
		e := info.Exports[name]
		w.str(name)
		w.u8(byte(e.Kind))
		w.u32(e.Index)
	}

	w.u32(uint32(len(info.DataInitializers)))
	for _, d := range info.DataInitializers {
		w.u32(d.MemoryIndex)
		w.constExpr(d.Base)
		w.bool(d.Passive)
		w.bytes(d.Data)
	}
	w.u32(uint32(len(info.ElemInitializers)))
	for _, e := range info.ElemInitializers {
		w.u32(e.TableIndex)
		w.constExpr(e.Base)
		w.bool(e.Passive)
		w.u32s(e.FuncIndices)
	}

	w.bool(info.HasStartFunc)
	w.u32(info.StartFunc)

	nameIndices := make([]uint32, 0, len(info.FunctionNames))
	for idx := range info.FunctionNames {
		nameIndices = append(nameIndices, idx)
	}
	sort.Slice(nameIndices, func(i, j int) bool { return nameIndices[i] < nameIndices[j] })
	w.u32(uint32(len(nameIndices)))
	for _, idx := range nameIndices {
		w.u32(idx)
		w.str(info.FunctionNames[idx])
	}

	sectionNames := make([]string, 0, len(info.CustomSections))
	for name := range info.CustomSections {
		sectionNames = append(sectionNames, name)
	}
	sort.Strings(sectionNames)
	w.u32(uint32(len(sectionNames)))
	for _, name := range sectionNames {
		w.str(name)
		w.bytes(info.CustomSections[name])
	}

	w.str(info.Backend)
	w.bool(info.GenerateDebugInfo)

	return w.buf.Bytes()
}

type infoReader struct {
	buf []byte
	off int
	err error
}

func (r *infoReader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *infoReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("module info truncated at offset %d (+%d)", r.off, n)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *infoReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}
func (r *infoReader) bool() bool { return r.u8() != 0 }
func (r *infoReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
func (r *infoReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// count reads a length prefix, bounding it by the remaining bytes so a
// corrupt length cannot force a huge allocation.
func (r *infoReader) count(elemSize int) int {
	n := int(r.u32())
	if r.err != nil {
		return 0
	}
	if elemSize > 0 && n > (len(r.buf)-r.off)/elemSize+1 {
		r.fail("module info length %d exceeds remaining %d bytes", n, len(r.buf)-r.off)
		return 0
	}
	return n
}

func (r *infoReader) bytes() []byte {
	n := r.count(1)
	if n == 0 {
		return nil
	}
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
func (r *infoReader) str() string { return string(r.bytes()) }
func (r *infoReader) valueTypes() []ValueType {
	n := r.count(1)
	if n == 0 {
		return nil
	}
	out := make([]ValueType, n)
	for i := range out {
		out[i] = ValueType(r.u8())
	}
	return out
}
func (r *infoReader) u32s() []uint32 {
	n := r.count(4)
	if n == 0 {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.u32()
	}
	return out
}
func (r *infoReader) constExpr() ConstExpr {
	return ConstExpr{Kind: ConstExprKind(r.u8()), Value: r.u64()}
}
func (r *infoReader) importName() ImportName {
	return ImportName{Module: r.str(), Name: r.str()}
}
func (r *infoReader) memoryDesc() MemoryDescriptor {
	return MemoryDescriptor{Minimum: r.u32(), Maximum: r.u32(), HasMax: r.bool(), Shared: r.bool()}
}
func (r *infoReader) tableDesc() TableDescriptor {
	return TableDescriptor{ElementType: ValueType(r.u8()), Minimum: r.u32(), Maximum: r.u32(), HasMax: r.bool()}
}
func (r *infoReader) globalDesc() GlobalDescriptor {
	return GlobalDescriptor{Type: ValueType(r.u8()), Mutable: r.bool()}
}

// DecodeModuleInfo reconstructs a ModuleInfo from its artifact form.
func DecodeModuleInfo(buf []byte) (*ModuleInfo, error) {
	r := &infoReader{buf: buf}
	info := &ModuleInfo{
		Exports:        map[string]Export{},
		FunctionNames:  map[uint32]string{},
		CustomSections: map[string][]byte{},
	}

	if n := r.count(1); n > 0 {
		info.Signatures = make([]FunctionType, n)
		for i := range info.Signatures {
			info.Signatures[i].Params = r.valueTypes()
			info.Signatures[i].Results = r.valueTypes()
		}
	}
	info.FuncAssoc = r.u32s()

	if n := r.count(1); n > 0 {
		info.ImportedFunctions = make([]ImportName, n)
		for i := range info.ImportedFunctions {
			info.ImportedFunctions[i] = r.importName()
		}
	}
	if n := r.count(1); n > 0 {
		info.ImportedMemories = make([]ImportedMemory, n)
		for i := range info.ImportedMemories {
			info.ImportedMemories[i] = ImportedMemory{Name: r.importName(), Desc: r.memoryDesc()}
		}
	}
	if n := r.count(1); n > 0 {
		info.ImportedTables = make([]ImportedTable, n)
		for i := range info.ImportedTables {
			info.ImportedTables[i] = ImportedTable{Name: r.importName(), Desc: r.tableDesc()}
		}
	}
	if n := r.count(1); n > 0 {
		info.ImportedGlobals = make([]ImportedGlobal, n)
		for i := range info.ImportedGlobals {
			info.ImportedGlobals[i] = ImportedGlobal{Name: r.importName(), Desc: r.globalDesc()}
		}
	}

	if n := r.count(1); n > 0 {
		info.Memories = make([]MemoryDescriptor, n)
		for i := range info.Memories {
			info.Memories[i] = r.memoryDesc()
		}
	}
	if n := r.count(1); n > 0 {
		info.Tables = make([]TableDescriptor, n)
		for i := range info.Tables {
			info.Tables[i] = r.tableDesc()
		}
	}
	if n := r.count(1); n > 0 {
		info.Globals = make([]GlobalInit, n)
		for i := range info.Globals {
			info.Globals[i].Desc = r.globalDesc()
			info.Globals[i].Init = r.constExpr()
		}
	}

	for i, n := 0, r.count(1); i < n; i++ {
		name := r.str()
		kind := ExportKind(r.u8())
		index := r.u32()
		info.Exports[name] = Export{Kind: kind, Index: index}
	}

	if n := r.count(1); n > 0 {
		info.DataInitializers = make([]DataInitializer, n)
		for i := range info.DataInitializers {
			d := &info.DataInitializers[i]
			d.MemoryIndex = r.u32()
			d.Base = r.constExpr()
			d.Passive = r.bool()
			d.Data = r.bytes()
		}
	}
	if n := r.count(1); n > 0 {
		info.ElemInitializers = make([]ElemInitializer, n)
		for i := range info.ElemInitializers {
			e := &info.ElemInitializers[i]
			e.TableIndex = r.u32()
			e.Base = r.constExpr()
			e.Passive = r.bool()
			e.FuncIndices = r.u32s()
		}
	}

	info.HasStartFunc = r.bool()
	info.StartFunc = r.u32()

	for i, n := 0, r.count(1); i < n; i++ {
		idx := r.u32()
		info.FunctionNames[idx] = r.str()
	}
	for i, n := 0, r.count(1); i < n; i++ {
		name := r.str()
		info.CustomSections[name] = r.bytes()
	}

	info.Backend = r.str()
	info.GenerateDebugInfo = r.bool()

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(r.buf) {
		return nil, fmt.Errorf("%d trailing bytes after module info", len(r.buf)-r.off)
	}
	return info, nil
}
