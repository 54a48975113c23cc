package wasm

import "fmt"

// Opcode is the dense index assigned to each operator variant the front-end
// can emit. The numbering groups operators by binary-format space (core
// single-byte space, then the 0xFC misc space, then the 0xFD vector space);
// within a space the order is that of the list below, not byte order (the
// reference-type operators, for one, follow f64.const). A cost table is a
// flat array indexed by Opcode.
type Opcode uint16

const (
	OpcodeUnreachable Opcode = iota
	OpcodeNop
	OpcodeBlock
	OpcodeLoop
	OpcodeIf
	OpcodeElse
	OpcodeEnd
	OpcodeBr
	OpcodeBrIf
	OpcodeBrTable
	OpcodeReturn
	OpcodeCall
	OpcodeCallIndirect
	OpcodeReturnCall
	OpcodeReturnCallIndirect
	OpcodeDrop
	OpcodeSelect
	OpcodeTypedSelect
	OpcodeLocalGet
	OpcodeLocalSet
	OpcodeLocalTee
	OpcodeGlobalGet
	OpcodeGlobalSet
	OpcodeTableGet
	OpcodeTableSet
	OpcodeI32Load
	OpcodeI64Load
	OpcodeF32Load
	OpcodeF64Load
	OpcodeI32Load8S
	OpcodeI32Load8U
	OpcodeI32Load16S
	OpcodeI32Load16U
	OpcodeI64Load8S
	OpcodeI64Load8U
	OpcodeI64Load16S
	OpcodeI64Load16U
	OpcodeI64Load32S
	OpcodeI64Load32U
	OpcodeI32Store
	OpcodeI64Store
	OpcodeF32Store
	OpcodeF64Store
	OpcodeI32Store8
	OpcodeI32Store16
	OpcodeI64Store8
	OpcodeI64Store16
	OpcodeI64Store32
	OpcodeMemorySize
	OpcodeMemoryGrow
	OpcodeI32Const
	OpcodeI64Const
	OpcodeF32Const
	OpcodeF64Const
	OpcodeRefNull
	OpcodeRefIsNull
	OpcodeRefFunc
	OpcodeI32Eqz
	OpcodeI32Eq
	OpcodeI32Ne
	OpcodeI32LtS
	OpcodeI32LtU
	OpcodeI32GtS
	OpcodeI32GtU
	OpcodeI32LeS
	OpcodeI32LeU
	OpcodeI32GeS
	OpcodeI32GeU
	OpcodeI64Eqz
	OpcodeI64Eq
	OpcodeI64Ne
	OpcodeI64LtS
	OpcodeI64LtU
	OpcodeI64GtS
	OpcodeI64GtU
	OpcodeI64LeS
	OpcodeI64LeU
	OpcodeI64GeS
	OpcodeI64GeU
	OpcodeF32Eq
	OpcodeF32Ne
	OpcodeF32Lt
	OpcodeF32Gt
	OpcodeF32Le
	OpcodeF32Ge
	OpcodeF64Eq
	OpcodeF64Ne
	OpcodeF64Lt
	OpcodeF64Gt
	OpcodeF64Le
	OpcodeF64Ge
	OpcodeI32Clz
	OpcodeI32Ctz
	OpcodeI32Popcnt
	OpcodeI32Add
	OpcodeI32Sub
	OpcodeI32Mul
	OpcodeI32DivS
	OpcodeI32DivU
	OpcodeI32RemS
	OpcodeI32RemU
	OpcodeI32And
	OpcodeI32Or
	OpcodeI32Xor
	OpcodeI32Shl
	OpcodeI32ShrS
	OpcodeI32ShrU
	OpcodeI32Rotl
	OpcodeI32Rotr
	OpcodeI64Clz
	OpcodeI64Ctz
	OpcodeI64Popcnt
	OpcodeI64Add
	OpcodeI64Sub
	OpcodeI64Mul
	OpcodeI64DivS
	OpcodeI64DivU
	OpcodeI64RemS
	OpcodeI64RemU
	OpcodeI64And
	OpcodeI64Or
	OpcodeI64Xor
	OpcodeI64Shl
	OpcodeI64ShrS
	OpcodeI64ShrU
	OpcodeI64Rotl
	OpcodeI64Rotr
	OpcodeF32Abs
	OpcodeF32Neg
	OpcodeF32Ceil
	OpcodeF32Floor
	OpcodeF32Trunc
	OpcodeF32Nearest
	OpcodeF32Sqrt
	OpcodeF32Add
	OpcodeF32Sub
	OpcodeF32Mul
	OpcodeF32Div
	OpcodeF32Min
	OpcodeF32Max
	OpcodeF32Copysign
	OpcodeF64Abs
	OpcodeF64Neg
	OpcodeF64Ceil
	OpcodeF64Floor
	OpcodeF64Trunc
	OpcodeF64Nearest
	OpcodeF64Sqrt
	OpcodeF64Add
	OpcodeF64Sub
	OpcodeF64Mul
	OpcodeF64Div
	OpcodeF64Min
	OpcodeF64Max
	OpcodeF64Copysign
	OpcodeI32WrapI64
	OpcodeI32TruncF32S
	OpcodeI32TruncF32U
	OpcodeI32TruncF64S
	OpcodeI32TruncF64U
	OpcodeI64ExtendI32S
	OpcodeI64ExtendI32U
	OpcodeI64TruncF32S
	OpcodeI64TruncF32U
	OpcodeI64TruncF64S
	OpcodeI64TruncF64U
	OpcodeF32ConvertI32S
	OpcodeF32ConvertI32U
	OpcodeF32ConvertI64S
	OpcodeF32ConvertI64U
	OpcodeF32DemoteF64
	OpcodeF64ConvertI32S
	OpcodeF64ConvertI32U
	OpcodeF64ConvertI64S
	OpcodeF64ConvertI64U
	OpcodeF64PromoteF32
	OpcodeI32ReinterpretF32
	OpcodeI64ReinterpretF64
	OpcodeF32ReinterpretI32
	OpcodeF64ReinterpretI64
	OpcodeI32Extend8S
	OpcodeI32Extend16S
	OpcodeI64Extend8S
	OpcodeI64Extend16S
	OpcodeI64Extend32S

	// 0xFC misc space.

	OpcodeI32TruncSatF32S
	OpcodeI32TruncSatF32U
	OpcodeI32TruncSatF64S
	OpcodeI32TruncSatF64U
	OpcodeI64TruncSatF32S
	OpcodeI64TruncSatF32U
	OpcodeI64TruncSatF64S
	OpcodeI64TruncSatF64U
	OpcodeMemoryInit
	OpcodeDataDrop
	OpcodeMemoryCopy
	OpcodeMemoryFill
	OpcodeTableInit
	OpcodeElemDrop
	OpcodeTableCopy
	OpcodeTableGrow
	OpcodeTableSize
	OpcodeTableFill

	// 0xFD vector space.

	OpcodeV128Load
	OpcodeV128Load8x8S
	OpcodeV128Load8x8U
	OpcodeV128Load16x4S
	OpcodeV128Load16x4U
	OpcodeV128Load32x2S
	OpcodeV128Load32x2U
	OpcodeV128Load8Splat
	OpcodeV128Load16Splat
	OpcodeV128Load32Splat
	OpcodeV128Load64Splat
	OpcodeV128Load32Zero
	OpcodeV128Load64Zero
	OpcodeV128Store
	OpcodeV128Load8Lane
	OpcodeV128Load16Lane
	OpcodeV128Load32Lane
	OpcodeV128Load64Lane
	OpcodeV128Store8Lane
	OpcodeV128Store16Lane
	OpcodeV128Store32Lane
	OpcodeV128Store64Lane
	OpcodeV128Const
	OpcodeI8x16Shuffle
	OpcodeI8x16ExtractLaneS
	OpcodeI8x16ExtractLaneU
	OpcodeI8x16ReplaceLane
	OpcodeI16x8ExtractLaneS
	OpcodeI16x8ExtractLaneU
	OpcodeI16x8ReplaceLane
	OpcodeI32x4ExtractLane
	OpcodeI32x4ReplaceLane
	OpcodeI64x2ExtractLane
	OpcodeI64x2ReplaceLane
	OpcodeF32x4ExtractLane
	OpcodeF32x4ReplaceLane
	OpcodeF64x2ExtractLane
	OpcodeF64x2ReplaceLane
	OpcodeI8x16Swizzle
	OpcodeI8x16Splat
	OpcodeI16x8Splat
	OpcodeI32x4Splat
	OpcodeI64x2Splat
	OpcodeF32x4Splat
	OpcodeF64x2Splat
	OpcodeI8x16Eq
	OpcodeI8x16Ne
	OpcodeI8x16LtS
	OpcodeI8x16LtU
	OpcodeI8x16GtS
	OpcodeI8x16GtU
	OpcodeI8x16LeS
	OpcodeI8x16LeU
	OpcodeI8x16GeS
	OpcodeI8x16GeU
	OpcodeI16x8Eq
	OpcodeI16x8Ne
	OpcodeI16x8LtS
	OpcodeI16x8LtU
	OpcodeI16x8GtS
	OpcodeI16x8GtU
	OpcodeI16x8LeS
	OpcodeI16x8LeU
	OpcodeI16x8GeS
	OpcodeI16x8GeU
	OpcodeI32x4Eq
	OpcodeI32x4Ne
	OpcodeI32x4LtS
	OpcodeI32x4LtU
	OpcodeI32x4GtS
	OpcodeI32x4GtU
	OpcodeI32x4LeS
	OpcodeI32x4LeU
	OpcodeI32x4GeS
	OpcodeI32x4GeU
	OpcodeI64x2Eq
	OpcodeI64x2Ne
	OpcodeI64x2LtS
	OpcodeI64x2GtS
	OpcodeI64x2LeS
	OpcodeI64x2GeS
	OpcodeF32x4Eq
	OpcodeF32x4Ne
	OpcodeF32x4Lt
	OpcodeF32x4Gt
	OpcodeF32x4Le
	OpcodeF32x4Ge
	OpcodeF64x2Eq
	OpcodeF64x2Ne
	OpcodeF64x2Lt
	OpcodeF64x2Gt
	OpcodeF64x2Le
	OpcodeF64x2Ge
	OpcodeV128Not
	OpcodeV128And
	OpcodeV128AndNot
	OpcodeV128Or
	OpcodeV128Xor
	OpcodeV128Bitselect
	OpcodeV128AnyTrue
	OpcodeI8x16Abs
	OpcodeI8x16Neg
	OpcodeI8x16Popcnt
	OpcodeI8x16AllTrue
	OpcodeI8x16Bitmask
	OpcodeI8x16NarrowI16x8S
	OpcodeI8x16NarrowI16x8U
	OpcodeI8x16Shl
	OpcodeI8x16ShrS
	OpcodeI8x16ShrU
	OpcodeI8x16Add
	OpcodeI8x16AddSatS
	OpcodeI8x16AddSatU
	OpcodeI8x16Sub
	OpcodeI8x16SubSatS
	OpcodeI8x16SubSatU
	OpcodeI8x16MinS
	OpcodeI8x16MinU
	OpcodeI8x16MaxS
	OpcodeI8x16MaxU
	OpcodeI8x16AvgrU
	OpcodeI16x8ExtAddPairwiseI8x16S
	OpcodeI16x8ExtAddPairwiseI8x16U
	OpcodeI16x8Abs
	OpcodeI16x8Neg
	OpcodeI16x8Q15MulrSatS
	OpcodeI16x8AllTrue
	OpcodeI16x8Bitmask
	OpcodeI16x8NarrowI32x4S
	OpcodeI16x8NarrowI32x4U
	OpcodeI16x8ExtendLowI8x16S
	OpcodeI16x8ExtendHighI8x16S
	OpcodeI16x8ExtendLowI8x16U
	OpcodeI16x8ExtendHighI8x16U
	OpcodeI16x8Shl
	OpcodeI16x8ShrS
	OpcodeI16x8ShrU
	OpcodeI16x8Add
	OpcodeI16x8AddSatS
	OpcodeI16x8AddSatU
	OpcodeI16x8Sub
	OpcodeI16x8SubSatS
	OpcodeI16x8SubSatU
	OpcodeI16x8Mul
	OpcodeI16x8MinS
	OpcodeI16x8MinU
	OpcodeI16x8MaxS
	OpcodeI16x8MaxU
	OpcodeI16x8AvgrU
	OpcodeI16x8ExtMulLowI8x16S
	OpcodeI16x8ExtMulHighI8x16S
	OpcodeI16x8ExtMulLowI8x16U
	OpcodeI16x8ExtMulHighI8x16U
	OpcodeI32x4ExtAddPairwiseI16x8S
	OpcodeI32x4ExtAddPairwiseI16x8U
	OpcodeI32x4Abs
	OpcodeI32x4Neg
	OpcodeI32x4AllTrue
	OpcodeI32x4Bitmask
	OpcodeI32x4ExtendLowI16x8S
	OpcodeI32x4ExtendHighI16x8S
	OpcodeI32x4ExtendLowI16x8U
	OpcodeI32x4ExtendHighI16x8U
	OpcodeI32x4Shl
	OpcodeI32x4ShrS
	OpcodeI32x4ShrU
	OpcodeI32x4Add
	OpcodeI32x4Sub
	OpcodeI32x4Mul
	OpcodeI32x4MinS
	OpcodeI32x4MinU
	OpcodeI32x4MaxS
	OpcodeI32x4MaxU
	OpcodeI32x4DotI16x8S
	OpcodeI32x4ExtMulLowI16x8S
	OpcodeI32x4ExtMulHighI16x8S
	OpcodeI32x4ExtMulLowI16x8U
	OpcodeI32x4ExtMulHighI16x8U
	OpcodeI64x2Abs
	OpcodeI64x2Neg
	OpcodeI64x2AllTrue
	OpcodeI64x2Bitmask
	OpcodeI64x2ExtendLowI32x4S
	OpcodeI64x2ExtendHighI32x4S
	OpcodeI64x2ExtendLowI32x4U
	OpcodeI64x2ExtendHighI32x4U
	OpcodeI64x2Shl
	OpcodeI64x2ShrS
	OpcodeI64x2ShrU
	OpcodeI64x2Add
	OpcodeI64x2Sub
	OpcodeI64x2Mul
	OpcodeI64x2ExtMulLowI32x4S
	OpcodeI64x2ExtMulHighI32x4S
	OpcodeI64x2ExtMulLowI32x4U
	OpcodeI64x2ExtMulHighI32x4U
	OpcodeF32x4Ceil
	OpcodeF32x4Floor
	OpcodeF32x4Trunc
	OpcodeF32x4Nearest
	OpcodeF32x4Abs
	OpcodeF32x4Neg
	OpcodeF32x4Sqrt
	OpcodeF32x4Add
	OpcodeF32x4Sub
	OpcodeF32x4Mul
	OpcodeF32x4Div
	OpcodeF32x4Min
	OpcodeF32x4Max
	OpcodeF32x4Pmin
	OpcodeF32x4Pmax
	OpcodeF64x2Ceil
	OpcodeF64x2Floor
	OpcodeF64x2Trunc
	OpcodeF64x2Nearest
	OpcodeF64x2Abs
	OpcodeF64x2Neg
	OpcodeF64x2Sqrt
	OpcodeF64x2Add
	OpcodeF64x2Sub
	OpcodeF64x2Mul
	OpcodeF64x2Div
	OpcodeF64x2Min
	OpcodeF64x2Max
	OpcodeF64x2Pmin
	OpcodeF64x2Pmax
	OpcodeI32x4TruncSatF32x4S
	OpcodeI32x4TruncSatF32x4U
	OpcodeF32x4ConvertI32x4S
	OpcodeF32x4ConvertI32x4U
	OpcodeI32x4TruncSatF64x2SZero
	OpcodeI32x4TruncSatF64x2UZero
	OpcodeF64x2ConvertLowI32x4S
	OpcodeF64x2ConvertLowI32x4U
	OpcodeF32x4DemoteF64x2Zero
	OpcodeF64x2PromoteLowF32x4

	opcodeSentinel
)

// OpcodeCount is the size of the operator index space. Indices between
// opcodeSentinel and OpcodeCount are reserved for proposals front-ends do
// not emit yet; the cost table covers them so the table shape never changes
// when they land.
const OpcodeCount = 448

// Synthetic cost indices live directly after the operator index space.
const (
	// LocalAllocateCostIndex prices the declaration of one metered local.
	LocalAllocateCostIndex = OpcodeCount

	// CostTableLength is the required length of an opcode cost table.
	CostTableLength = OpcodeCount + 1
)

// BlockType describes the signature of a Block/Loop/If operator: BlockTypeEmpty,
// a value type for a single result, or a non-negative function type index.
type BlockType int32

// BlockTypeEmpty is the empty block signature.
const BlockTypeEmpty BlockType = -64

// Operator is one decoded instruction together with its immediates. Only the
// fields the Opcode calls for are meaningful; the front-end fills the rest
// with zero values.
type Operator struct {
	Opcode Opcode

	// U32 holds the primary index immediate: function index for Call, local
	// index for LocalGet/Set/Tee, global index for GlobalGet/Set, memory
	// index for MemorySize/Grow and the bulk-memory operators, table index
	// for the table operators, alignment for loads/stores.
	U32 uint32
	// U64 holds a secondary immediate: load/store offset, or the type index
	// of a CallIndirect (with U32 carrying the table index).
	U64 uint64

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// Depths holds the BrTable targets; the last entry is the default.
	Depths []uint32

	Block BlockType
}

// Index returns the operator's position in the cost-table index space.
func (op *Operator) Index() int {
	return int(op.Opcode)
}

func (op *Operator) String() string {
	name := op.Opcode.String()
	switch op.Opcode {
	case OpcodeI32Const:
		return fmt.Sprintf("%s %d", name, op.I32)
	case OpcodeI64Const:
		return fmt.Sprintf("%s %d", name, op.I64)
	case OpcodeF32Const:
		return fmt.Sprintf("%s %g", name, op.F32)
	case OpcodeF64Const:
		return fmt.Sprintf("%s %g", name, op.F64)
	case OpcodeBr, OpcodeBrIf, OpcodeCall, OpcodeLocalGet, OpcodeLocalSet, OpcodeLocalTee,
		OpcodeGlobalGet, OpcodeGlobalSet:
		return fmt.Sprintf("%s %d", name, op.U32)
	case OpcodeBrTable:
		return fmt.Sprintf("%s %v", name, op.Depths)
	case OpcodeCallIndirect:
		return fmt.Sprintf("%s (type %d, table %d)", name, op.U64, op.U32)
	}
	return name
}

// Helper constructors for the operators the instrumentation itself injects.

func NewI32Const(v int32) Operator { return Operator{Opcode: OpcodeI32Const, I32: v} }
func NewI64Const(v int64) Operator { return Operator{Opcode: OpcodeI64Const, I64: v} }
func NewIfEmpty() Operator         { return Operator{Opcode: OpcodeIf, Block: BlockTypeEmpty} }
func NewEnd() Operator             { return Operator{Opcode: OpcodeEnd} }
func NewOp(code Opcode) Operator   { return Operator{Opcode: code} }
