// Package wasm holds the static and runtime data model of a guest module:
// the metadata an artifact serializes, the per-instance mutable state, and
// the operator index space the instrumentation prices.
package wasm

// ValueType classifies a WebAssembly value.
type ValueType byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// FunctionType is a function signature.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// EqualsSignature returns true if the other signature has the same shape.
func (f *FunctionType) EqualsSignature(params, results []ValueType) bool {
	if len(f.Params) != len(params) || len(f.Results) != len(results) {
		return false
	}
	for i := range params {
		if f.Params[i] != params[i] {
			return false
		}
	}
	for i := range results {
		if f.Results[i] != results[i] {
			return false
		}
	}
	return true
}

// ImportName identifies one import as (module, name).
type ImportName struct {
	Module string
	Name   string
}

// MemoryDescriptor describes a linear memory's declared limits in pages.
type MemoryDescriptor struct {
	Minimum uint32
	Maximum uint32
	HasMax  bool
	Shared  bool
}

// TableDescriptor describes a table's element type and limits.
type TableDescriptor struct {
	ElementType ValueType
	Minimum     uint32
	Maximum     uint32
	HasMax      bool
}

// GlobalDescriptor describes a global's type and mutability.
type GlobalDescriptor struct {
	Type    ValueType
	Mutable bool
}

// GlobalInit pairs a global descriptor with its initializer expression.
type GlobalInit struct {
	Desc GlobalDescriptor
	Init ConstExpr
}

// ImportedMemory, ImportedTable and ImportedGlobal carry the descriptor the
// module declared for an import. Instantiation resolves imports by name only;
// the declared descriptor is not compared with the provided value.
type ImportedMemory struct {
	Name ImportName
	Desc MemoryDescriptor
}

type ImportedTable struct {
	Name ImportName
	Desc TableDescriptor
}

type ImportedGlobal struct {
	Name ImportName
	Desc GlobalDescriptor
}

// ExportKind classifies an export.
type ExportKind byte

const (
	ExportFunction ExportKind = iota
	ExportMemory
	ExportTable
	ExportGlobal
)

// Export is one exported entity, indexed into the corresponding index space.
type Export struct {
	Kind  ExportKind
	Index uint32
}

// DataInitializer is one data segment: a target memory, a base expression
// and the bytes to copy. Passive segments are applied by memory.init rather
// than at instantiation.
type DataInitializer struct {
	MemoryIndex uint32
	Base        ConstExpr
	Passive     bool
	Data        []byte
}

// ElemInitializer is one element segment: a target table, a base expression
// and function indices. Passive segments are applied by table.init.
type ElemInitializer struct {
	TableIndex  uint32
	Base        ConstExpr
	Passive     bool
	FuncIndices []uint32
}

// ModuleInfo is the full static description of a module. It is produced by
// the front-end at compile time, serialized into artifacts, and consulted at
// instantiation and reset.
type ModuleInfo struct {
	Signatures []FunctionType
	// FuncAssoc maps every function (imported first, then local) to its
	// signature index.
	FuncAssoc []uint32

	ImportedFunctions []ImportName
	ImportedMemories  []ImportedMemory
	ImportedTables    []ImportedTable
	ImportedGlobals   []ImportedGlobal

	Memories []MemoryDescriptor
	Tables   []TableDescriptor
	Globals  []GlobalInit

	Exports map[string]Export

	DataInitializers []DataInitializer
	ElemInitializers []ElemInitializer

	StartFunc    uint32
	HasStartFunc bool

	// FunctionNames holds the name-section entries when present.
	FunctionNames  map[uint32]string
	CustomSections map[string][]byte

	// Backend records which code generator produced the compiled code; a
	// loader refuses artifacts from a backend it does not know.
	Backend string

	GenerateDebugInfo bool
}

// NumImportedFunctions returns the count of imported functions, which is the
// offset of local function index zero in the function index space.
func (m *ModuleInfo) NumImportedFunctions() uint32 {
	return uint32(len(m.ImportedFunctions))
}

// ExportedFunction resolves name to a function index, when the export exists
// and is a function.
func (m *ModuleInfo) ExportedFunction(name string) (uint32, bool) {
	e, ok := m.Exports[name]
	if !ok || e.Kind != ExportFunction {
		return 0, false
	}
	return e.Index, true
}
