package wasm

import "strconv"

// opcodeNames maps each defined Opcode to its printed form.
var opcodeNames = [opcodeSentinel]string{
	OpcodeUnreachable: "unreachable",
	OpcodeNop: "nop",
	OpcodeBlock: "block",
	OpcodeLoop: "loop",
	OpcodeIf: "if",
	OpcodeElse: "else",
	OpcodeEnd: "end",
	OpcodeBr: "br",
	OpcodeBrIf: "br_if",
	OpcodeBrTable: "br_table",
	OpcodeReturn: "return",
	OpcodeCall: "call",
	OpcodeCallIndirect: "call_indirect",
	OpcodeReturnCall: "return_call",
	OpcodeReturnCallIndirect: "return_call_indirect",
	OpcodeDrop: "drop",
	OpcodeSelect: "select",
	OpcodeTypedSelect: "typed_select",
	OpcodeLocalGet: "local.get",
	OpcodeLocalSet: "local.set",
	OpcodeLocalTee: "local.tee",
	OpcodeGlobalGet: "global.get",
	OpcodeGlobalSet: "global.set",
	OpcodeTableGet: "table.get",
	OpcodeTableSet: "table.set",
	OpcodeI32Load: "i32.load",
	OpcodeI64Load: "i64.load",
	OpcodeF32Load: "f32.load",
	OpcodeF64Load: "f64.load",
	OpcodeI32Load8S: "i32.load8_s",
	OpcodeI32Load8U: "i32.load8_u",
	OpcodeI32Load16S: "i32.load16_s",
	OpcodeI32Load16U: "i32.load16_u",
	OpcodeI64Load8S: "i64.load8_s",
	OpcodeI64Load8U: "i64.load8_u",
	OpcodeI64Load16S: "i64.load16_s",
	OpcodeI64Load16U: "i64.load16_u",
	OpcodeI64Load32S: "i64.load32_s",
	OpcodeI64Load32U: "i64.load32_u",
	OpcodeI32Store: "i32.store",
	OpcodeI64Store: "i64.store",
	OpcodeF32Store: "f32.store",
	OpcodeF64Store: "f64.store",
	OpcodeI32Store8: "i32.store8",
	OpcodeI32Store16: "i32.store16",
	OpcodeI64Store8: "i64.store8",
	OpcodeI64Store16: "i64.store16",
	OpcodeI64Store32: "i64.store32",
	OpcodeMemorySize: "memory.size",
	OpcodeMemoryGrow: "memory.grow",
	OpcodeI32Const: "i32.const",
	OpcodeI64Const: "i64.const",
	OpcodeF32Const: "f32.const",
	OpcodeF64Const: "f64.const",
	OpcodeRefNull: "ref.null",
	OpcodeRefIsNull: "ref.is_null",
	OpcodeRefFunc: "ref.func",
	OpcodeI32Eqz: "i32.eqz",
	OpcodeI32Eq: "i32.eq",
	OpcodeI32Ne: "i32.ne",
	OpcodeI32LtS: "i32.lt_s",
	OpcodeI32LtU: "i32.lt_u",
	OpcodeI32GtS: "i32.gt_s",
	OpcodeI32GtU: "i32.gt_u",
	OpcodeI32LeS: "i32.le_s",
	OpcodeI32LeU: "i32.le_u",
	OpcodeI32GeS: "i32.ge_s",
	OpcodeI32GeU: "i32.ge_u",
	OpcodeI64Eqz: "i64.eqz",
	OpcodeI64Eq: "i64.eq",
	OpcodeI64Ne: "i64.ne",
	OpcodeI64LtS: "i64.lt_s",
	OpcodeI64LtU: "i64.lt_u",
	OpcodeI64GtS: "i64.gt_s",
	OpcodeI64GtU: "i64.gt_u",
	OpcodeI64LeS: "i64.le_s",
	OpcodeI64LeU: "i64.le_u",
	OpcodeI64GeS: "i64.ge_s",
	OpcodeI64GeU: "i64.ge_u",
	OpcodeF32Eq: "f32.eq",
	OpcodeF32Ne: "f32.ne",
	OpcodeF32Lt: "f32.lt",
	OpcodeF32Gt: "f32.gt",
	OpcodeF32Le: "f32.le",
	OpcodeF32Ge: "f32.ge",
	OpcodeF64Eq: "f64.eq",
	OpcodeF64Ne: "f64.ne",
	OpcodeF64Lt: "f64.lt",
	OpcodeF64Gt: "f64.gt",
	OpcodeF64Le: "f64.le",
	OpcodeF64Ge: "f64.ge",
	OpcodeI32Clz: "i32.clz",
	OpcodeI32Ctz: "i32.ctz",
	OpcodeI32Popcnt: "i32.popcnt",
	OpcodeI32Add: "i32.add",
	OpcodeI32Sub: "i32.sub",
	OpcodeI32Mul: "i32.mul",
	OpcodeI32DivS: "i32.div_s",
	OpcodeI32DivU: "i32.div_u",
	OpcodeI32RemS: "i32.rem_s",
	OpcodeI32RemU: "i32.rem_u",
	OpcodeI32And: "i32.and",
	OpcodeI32Or: "i32.or",
	OpcodeI32Xor: "i32.xor",
	OpcodeI32Shl: "i32.shl",
	OpcodeI32ShrS: "i32.shr_s",
	OpcodeI32ShrU: "i32.shr_u",
	OpcodeI32Rotl: "i32.rotl",
	OpcodeI32Rotr: "i32.rotr",
	OpcodeI64Clz: "i64.clz",
	OpcodeI64Ctz: "i64.ctz",
	OpcodeI64Popcnt: "i64.popcnt",
	OpcodeI64Add: "i64.add",
	OpcodeI64Sub: "i64.sub",
	OpcodeI64Mul: "i64.mul",
	OpcodeI64DivS: "i64.div_s",
	OpcodeI64DivU: "i64.div_u",
	OpcodeI64RemS: "i64.rem_s",
	OpcodeI64RemU: "i64.rem_u",
	OpcodeI64And: "i64.and",
	OpcodeI64Or: "i64.or",
	OpcodeI64Xor: "i64.xor",
	OpcodeI64Shl: "i64.shl",
	OpcodeI64ShrS: "i64.shr_s",
	OpcodeI64ShrU: "i64.shr_u",
	OpcodeI64Rotl: "i64.rotl",
	OpcodeI64Rotr: "i64.rotr",
	OpcodeF32Abs: "f32.abs",
	OpcodeF32Neg: "f32.neg",
	OpcodeF32Ceil: "f32.ceil",
	OpcodeF32Floor: "f32.floor",
	OpcodeF32Trunc: "f32.trunc",
	OpcodeF32Nearest: "f32.nearest",
	OpcodeF32Sqrt: "f32.sqrt",
	OpcodeF32Add: "f32.add",
	OpcodeF32Sub: "f32.sub",
	OpcodeF32Mul: "f32.mul",
	OpcodeF32Div: "f32.div",
	OpcodeF32Min: "f32.min",
	OpcodeF32Max: "f32.max",
	OpcodeF32Copysign: "f32.copysign",
	OpcodeF64Abs: "f64.abs",
	OpcodeF64Neg: "f64.neg",
	OpcodeF64Ceil: "f64.ceil",
	OpcodeF64Floor: "f64.floor",
	OpcodeF64Trunc: "f64.trunc",
	OpcodeF64Nearest: "f64.nearest",
	OpcodeF64Sqrt: "f64.sqrt",
	OpcodeF64Add: "f64.add",
	OpcodeF64Sub: "f64.sub",
	OpcodeF64Mul: "f64.mul",
	OpcodeF64Div: "f64.div",
	OpcodeF64Min: "f64.min",
	OpcodeF64Max: "f64.max",
	OpcodeF64Copysign: "f64.copysign",
	OpcodeI32WrapI64: "i32.wrap_i64",
	OpcodeI32TruncF32S: "i32.trunc_f32_s",
	OpcodeI32TruncF32U: "i32.trunc_f32_u",
	OpcodeI32TruncF64S: "i32.trunc_f64_s",
	OpcodeI32TruncF64U: "i32.trunc_f64_u",
	OpcodeI64ExtendI32S: "i64.extend_i32_s",
	OpcodeI64ExtendI32U: "i64.extend_i32_u",
	OpcodeI64TruncF32S: "i64.trunc_f32_s",
	OpcodeI64TruncF32U: "i64.trunc_f32_u",
	OpcodeI64TruncF64S: "i64.trunc_f64_s",
	OpcodeI64TruncF64U: "i64.trunc_f64_u",
	OpcodeF32ConvertI32S: "f32.convert_i32_s",
	OpcodeF32ConvertI32U: "f32.convert_i32_u",
	OpcodeF32ConvertI64S: "f32.convert_i64_s",
	OpcodeF32ConvertI64U: "f32.convert_i64_u",
	OpcodeF32DemoteF64: "f32.demote_f64",
	OpcodeF64ConvertI32S: "f64.convert_i32_s",
	OpcodeF64ConvertI32U: "f64.convert_i32_u",
	OpcodeF64ConvertI64S: "f64.convert_i64_s",
	OpcodeF64ConvertI64U: "f64.convert_i64_u",
	OpcodeF64PromoteF32: "f64.promote_f32",
	OpcodeI32ReinterpretF32: "i32.reinterpret_f32",
	OpcodeI64ReinterpretF64: "i64.reinterpret_f64",
	OpcodeF32ReinterpretI32: "f32.reinterpret_i32",
	OpcodeF64ReinterpretI64: "f64.reinterpret_i64",
	OpcodeI32Extend8S: "i32.extend8_s",
	OpcodeI32Extend16S: "i32.extend16_s",
	OpcodeI64Extend8S: "i64.extend8_s",
	OpcodeI64Extend16S: "i64.extend16_s",
	OpcodeI64Extend32S: "i64.extend32_s",
	OpcodeI32TruncSatF32S: "i32.trunc_sat_f32_s",
	OpcodeI32TruncSatF32U: "i32.trunc_sat_f32_u",
	OpcodeI32TruncSatF64S: "i32.trunc_sat_f64_s",
	OpcodeI32TruncSatF64U: "i32.trunc_sat_f64_u",
	OpcodeI64TruncSatF32S: "i64.trunc_sat_f32_s",
	OpcodeI64TruncSatF32U: "i64.trunc_sat_f32_u",
	OpcodeI64TruncSatF64S: "i64.trunc_sat_f64_s",
	OpcodeI64TruncSatF64U: "i64.trunc_sat_f64_u",
	OpcodeMemoryInit: "memory.init",
	OpcodeDataDrop: "data.drop",
	OpcodeMemoryCopy: "memory.copy",
	OpcodeMemoryFill: "memory.fill",
	OpcodeTableInit: "table.init",
	OpcodeElemDrop: "elem.drop",
	OpcodeTableCopy: "table.copy",
	OpcodeTableGrow: "table.grow",
	OpcodeTableSize: "table.size",
	OpcodeTableFill: "table.fill",
	OpcodeV128Load: "v128.load",
	OpcodeV128Load8x8S: "v128.load8x8_s",
	OpcodeV128Load8x8U: "v128.load8x8_u",
	OpcodeV128Load16x4S: "v128.load16x4_s",
	OpcodeV128Load16x4U: "v128.load16x4_u",
	OpcodeV128Load32x2S: "v128.load32x2_s",
	OpcodeV128Load32x2U: "v128.load32x2_u",
	OpcodeV128Load8Splat: "v128.load8_splat",
	OpcodeV128Load16Splat: "v128.load16_splat",
	OpcodeV128Load32Splat: "v128.load32_splat",
	OpcodeV128Load64Splat: "v128.load64_splat",
	OpcodeV128Load32Zero: "v128.load32_zero",
	OpcodeV128Load64Zero: "v128.load64_zero",
	OpcodeV128Store: "v128.store",
	OpcodeV128Load8Lane: "v128.load8_lane",
	OpcodeV128Load16Lane: "v128.load16_lane",
	OpcodeV128Load32Lane: "v128.load32_lane",
	OpcodeV128Load64Lane: "v128.load64_lane",
	OpcodeV128Store8Lane: "v128.store8_lane",
	OpcodeV128Store16Lane: "v128.store16_lane",
	OpcodeV128Store32Lane: "v128.store32_lane",
	OpcodeV128Store64Lane: "v128.store64_lane",
	OpcodeV128Const: "v128.const",
	OpcodeI8x16Shuffle: "i8x16.shuffle",
	OpcodeI8x16ExtractLaneS: "i8x16.extract_lane_s",
	OpcodeI8x16ExtractLaneU: "i8x16.extract_lane_u",
	OpcodeI8x16ReplaceLane: "i8x16.replace_lane",
	OpcodeI16x8ExtractLaneS: "i16x8.extract_lane_s",
	OpcodeI16x8ExtractLaneU: "i16x8.extract_lane_u",
	OpcodeI16x8ReplaceLane: "i16x8.replace_lane",
	OpcodeI32x4ExtractLane: "i32x4.extract_lane",
	OpcodeI32x4ReplaceLane: "i32x4.replace_lane",
	OpcodeI64x2ExtractLane: "i64x2.extract_lane",
	OpcodeI64x2ReplaceLane: "i64x2.replace_lane",
	OpcodeF32x4ExtractLane: "f32x4.extract_lane",
	OpcodeF32x4ReplaceLane: "f32x4.replace_lane",
	OpcodeF64x2ExtractLane: "f64x2.extract_lane",
	OpcodeF64x2ReplaceLane: "f64x2.replace_lane",
	OpcodeI8x16Swizzle: "i8x16.swizzle",
	OpcodeI8x16Splat: "i8x16.splat",
	OpcodeI16x8Splat: "i16x8.splat",
	OpcodeI32x4Splat: "i32x4.splat",
	OpcodeI64x2Splat: "i64x2.splat",
	OpcodeF32x4Splat: "f32x4.splat",
	OpcodeF64x2Splat: "f64x2.splat",
	OpcodeI8x16Eq: "i8x16.eq",
	OpcodeI8x16Ne: "i8x16.ne",
	OpcodeI8x16LtS: "i8x16.lt_s",
	OpcodeI8x16LtU: "i8x16.lt_u",
	OpcodeI8x16GtS: "i8x16.gt_s",
	OpcodeI8x16GtU: "i8x16.gt_u",
	OpcodeI8x16LeS: "i8x16.le_s",
	OpcodeI8x16LeU: "i8x16.le_u",
	OpcodeI8x16GeS: "i8x16.ge_s",
	OpcodeI8x16GeU: "i8x16.ge_u",
	OpcodeI16x8Eq: "i16x8.eq",
	OpcodeI16x8Ne: "i16x8.ne",
	OpcodeI16x8LtS: "i16x8.lt_s",
	OpcodeI16x8LtU: "i16x8.lt_u",
	OpcodeI16x8GtS: "i16x8.gt_s",
	OpcodeI16x8GtU: "i16x8.gt_u",
	OpcodeI16x8LeS: "i16x8.le_s",
	OpcodeI16x8LeU: "i16x8.le_u",
	OpcodeI16x8GeS: "i16x8.ge_s",
	OpcodeI16x8GeU: "i16x8.ge_u",
	OpcodeI32x4Eq: "i32x4.eq",
	OpcodeI32x4Ne: "i32x4.ne",
	OpcodeI32x4LtS: "i32x4.lt_s",
	OpcodeI32x4LtU: "i32x4.lt_u",
	OpcodeI32x4GtS: "i32x4.gt_s",
	OpcodeI32x4GtU: "i32x4.gt_u",
	OpcodeI32x4LeS: "i32x4.le_s",
	OpcodeI32x4LeU: "i32x4.le_u",
	OpcodeI32x4GeS: "i32x4.ge_s",
	OpcodeI32x4GeU: "i32x4.ge_u",
	OpcodeI64x2Eq: "i64x2.eq",
	OpcodeI64x2Ne: "i64x2.ne",
	OpcodeI64x2LtS: "i64x2.lt_s",
	OpcodeI64x2GtS: "i64x2.gt_s",
	OpcodeI64x2LeS: "i64x2.le_s",
	OpcodeI64x2GeS: "i64x2.ge_s",
	OpcodeF32x4Eq: "f32x4.eq",
	OpcodeF32x4Ne: "f32x4.ne",
	OpcodeF32x4Lt: "f32x4.lt",
	OpcodeF32x4Gt: "f32x4.gt",
	OpcodeF32x4Le: "f32x4.le",
	OpcodeF32x4Ge: "f32x4.ge",
	OpcodeF64x2Eq: "f64x2.eq",
	OpcodeF64x2Ne: "f64x2.ne",
	OpcodeF64x2Lt: "f64x2.lt",
	OpcodeF64x2Gt: "f64x2.gt",
	OpcodeF64x2Le: "f64x2.le",
	OpcodeF64x2Ge: "f64x2.ge",
	OpcodeV128Not: "v128.not",
	OpcodeV128And: "v128.and",
	OpcodeV128AndNot: "v128.and_not",
	OpcodeV128Or: "v128.or",
	OpcodeV128Xor: "v128.xor",
	OpcodeV128Bitselect: "v128.bitselect",
	OpcodeV128AnyTrue: "v128.any_true",
	OpcodeI8x16Abs: "i8x16.abs",
	OpcodeI8x16Neg: "i8x16.neg",
	OpcodeI8x16Popcnt: "i8x16.popcnt",
	OpcodeI8x16AllTrue: "i8x16.all_true",
	OpcodeI8x16Bitmask: "i8x16.bitmask",
	OpcodeI8x16NarrowI16x8S: "i8x16.narrow_i16x8_s",
	OpcodeI8x16NarrowI16x8U: "i8x16.narrow_i16x8_u",
	OpcodeI8x16Shl: "i8x16.shl",
	OpcodeI8x16ShrS: "i8x16.shr_s",
	OpcodeI8x16ShrU: "i8x16.shr_u",
	OpcodeI8x16Add: "i8x16.add",
	OpcodeI8x16AddSatS: "i8x16.add_sat_s",
	OpcodeI8x16AddSatU: "i8x16.add_sat_u",
	OpcodeI8x16Sub: "i8x16.sub",
	OpcodeI8x16SubSatS: "i8x16.sub_sat_s",
	OpcodeI8x16SubSatU: "i8x16.sub_sat_u",
	OpcodeI8x16MinS: "i8x16.min_s",
	OpcodeI8x16MinU: "i8x16.min_u",
	OpcodeI8x16MaxS: "i8x16.max_s",
	OpcodeI8x16MaxU: "i8x16.max_u",
	OpcodeI8x16AvgrU: "i8x16.avgr_u",
	OpcodeI16x8ExtAddPairwiseI8x16S: "i16x8.ext_add_pairwise_i8x16_s",
	OpcodeI16x8ExtAddPairwiseI8x16U: "i16x8.ext_add_pairwise_i8x16_u",
	OpcodeI16x8Abs: "i16x8.abs",
	OpcodeI16x8Neg: "i16x8.neg",
	OpcodeI16x8Q15MulrSatS: "i16x8.q15_mulr_sat_s",
	OpcodeI16x8AllTrue: "i16x8.all_true",
	OpcodeI16x8Bitmask: "i16x8.bitmask",
	OpcodeI16x8NarrowI32x4S: "i16x8.narrow_i32x4_s",
	OpcodeI16x8NarrowI32x4U: "i16x8.narrow_i32x4_u",
	OpcodeI16x8ExtendLowI8x16S: "i16x8.extend_low_i8x16_s",
	OpcodeI16x8ExtendHighI8x16S: "i16x8.extend_high_i8x16_s",
	OpcodeI16x8ExtendLowI8x16U: "i16x8.extend_low_i8x16_u",
	OpcodeI16x8ExtendHighI8x16U: "i16x8.extend_high_i8x16_u",
	OpcodeI16x8Shl: "i16x8.shl",
	OpcodeI16x8ShrS: "i16x8.shr_s",
	OpcodeI16x8ShrU: "i16x8.shr_u",
	OpcodeI16x8Add: "i16x8.add",
	OpcodeI16x8AddSatS: "i16x8.add_sat_s",
	OpcodeI16x8AddSatU: "i16x8.add_sat_u",
	OpcodeI16x8Sub: "i16x8.sub",
	OpcodeI16x8SubSatS: "i16x8.sub_sat_s",
	OpcodeI16x8SubSatU: "i16x8.sub_sat_u",
	OpcodeI16x8Mul: "i16x8.mul",
	OpcodeI16x8MinS: "i16x8.min_s",
	OpcodeI16x8MinU: "i16x8.min_u",
	OpcodeI16x8MaxS: "i16x8.max_s",
	OpcodeI16x8MaxU: "i16x8.max_u",
	OpcodeI16x8AvgrU: "i16x8.avgr_u",
	OpcodeI16x8ExtMulLowI8x16S: "i16x8.ext_mul_low_i8x16_s",
	OpcodeI16x8ExtMulHighI8x16S: "i16x8.ext_mul_high_i8x16_s",
	OpcodeI16x8ExtMulLowI8x16U: "i16x8.ext_mul_low_i8x16_u",
	OpcodeI16x8ExtMulHighI8x16U: "i16x8.ext_mul_high_i8x16_u",
	OpcodeI32x4ExtAddPairwiseI16x8S: "i32x4.ext_add_pairwise_i16x8_s",
	OpcodeI32x4ExtAddPairwiseI16x8U: "i32x4.ext_add_pairwise_i16x8_u",
	OpcodeI32x4Abs: "i32x4.abs",
	OpcodeI32x4Neg: "i32x4.neg",
	OpcodeI32x4AllTrue: "i32x4.all_true",
	OpcodeI32x4Bitmask: "i32x4.bitmask",
	OpcodeI32x4ExtendLowI16x8S: "i32x4.extend_low_i16x8_s",
	OpcodeI32x4ExtendHighI16x8S: "i32x4.extend_high_i16x8_s",
	OpcodeI32x4ExtendLowI16x8U: "i32x4.extend_low_i16x8_u",
	OpcodeI32x4ExtendHighI16x8U: "i32x4.extend_high_i16x8_u",
	OpcodeI32x4Shl: "i32x4.shl",
	OpcodeI32x4ShrS: "i32x4.shr_s",
	OpcodeI32x4ShrU: "i32x4.shr_u",
	OpcodeI32x4Add: "i32x4.add",
	OpcodeI32x4Sub: "i32x4.sub",
	OpcodeI32x4Mul: "i32x4.mul",
	OpcodeI32x4MinS: "i32x4.min_s",
	OpcodeI32x4MinU: "i32x4.min_u",
	OpcodeI32x4MaxS: "i32x4.max_s",
	OpcodeI32x4MaxU: "i32x4.max_u",
	OpcodeI32x4DotI16x8S: "i32x4.dot_i16x8_s",
	OpcodeI32x4ExtMulLowI16x8S: "i32x4.ext_mul_low_i16x8_s",
	OpcodeI32x4ExtMulHighI16x8S: "i32x4.ext_mul_high_i16x8_s",
	OpcodeI32x4ExtMulLowI16x8U: "i32x4.ext_mul_low_i16x8_u",
	OpcodeI32x4ExtMulHighI16x8U: "i32x4.ext_mul_high_i16x8_u",
	OpcodeI64x2Abs: "i64x2.abs",
	OpcodeI64x2Neg: "i64x2.neg",
	OpcodeI64x2AllTrue: "i64x2.all_true",
	OpcodeI64x2Bitmask: "i64x2.bitmask",
	OpcodeI64x2ExtendLowI32x4S: "i64x2.extend_low_i32x4_s",
	OpcodeI64x2ExtendHighI32x4S: "i64x2.extend_high_i32x4_s",
	OpcodeI64x2ExtendLowI32x4U: "i64x2.extend_low_i32x4_u",
	OpcodeI64x2ExtendHighI32x4U: "i64x2.extend_high_i32x4_u",
	OpcodeI64x2Shl: "i64x2.shl",
	OpcodeI64x2ShrS: "i64x2.shr_s",
	OpcodeI64x2ShrU: "i64x2.shr_u",
	OpcodeI64x2Add: "i64x2.add",
	OpcodeI64x2Sub: "i64x2.sub",
	OpcodeI64x2Mul: "i64x2.mul",
	OpcodeI64x2ExtMulLowI32x4S: "i64x2.ext_mul_low_i32x4_s",
	OpcodeI64x2ExtMulHighI32x4S: "i64x2.ext_mul_high_i32x4_s",
	OpcodeI64x2ExtMulLowI32x4U: "i64x2.ext_mul_low_i32x4_u",
	OpcodeI64x2ExtMulHighI32x4U: "i64x2.ext_mul_high_i32x4_u",
	OpcodeF32x4Ceil: "f32x4.ceil",
	OpcodeF32x4Floor: "f32x4.floor",
	OpcodeF32x4Trunc: "f32x4.trunc",
	OpcodeF32x4Nearest: "f32x4.nearest",
	OpcodeF32x4Abs: "f32x4.abs",
	OpcodeF32x4Neg: "f32x4.neg",
	OpcodeF32x4Sqrt: "f32x4.sqrt",
	OpcodeF32x4Add: "f32x4.add",
	OpcodeF32x4Sub: "f32x4.sub",
	OpcodeF32x4Mul: "f32x4.mul",
	OpcodeF32x4Div: "f32x4.div",
	OpcodeF32x4Min: "f32x4.min",
	OpcodeF32x4Max: "f32x4.max",
	OpcodeF32x4Pmin: "f32x4.pmin",
	OpcodeF32x4Pmax: "f32x4.pmax",
	OpcodeF64x2Ceil: "f64x2.ceil",
	OpcodeF64x2Floor: "f64x2.floor",
	OpcodeF64x2Trunc: "f64x2.trunc",
	OpcodeF64x2Nearest: "f64x2.nearest",
	OpcodeF64x2Abs: "f64x2.abs",
	OpcodeF64x2Neg: "f64x2.neg",
	OpcodeF64x2Sqrt: "f64x2.sqrt",
	OpcodeF64x2Add: "f64x2.add",
	OpcodeF64x2Sub: "f64x2.sub",
	OpcodeF64x2Mul: "f64x2.mul",
	OpcodeF64x2Div: "f64x2.div",
	OpcodeF64x2Min: "f64x2.min",
	OpcodeF64x2Max: "f64x2.max",
	OpcodeF64x2Pmin: "f64x2.pmin",
	OpcodeF64x2Pmax: "f64x2.pmax",
	OpcodeI32x4TruncSatF32x4S: "i32x4.trunc_sat_f32x4_s",
	OpcodeI32x4TruncSatF32x4U: "i32x4.trunc_sat_f32x4_u",
	OpcodeF32x4ConvertI32x4S: "f32x4.convert_i32x4_s",
	OpcodeF32x4ConvertI32x4U: "f32x4.convert_i32x4_u",
	OpcodeI32x4TruncSatF64x2SZero: "i32x4.trunc_sat_f64x2_s_zero",
	OpcodeI32x4TruncSatF64x2UZero: "i32x4.trunc_sat_f64x2_u_zero",
	OpcodeF64x2ConvertLowI32x4S: "f64x2.convert_low_i32x4_s",
	OpcodeF64x2ConvertLowI32x4U: "f64x2.convert_low_i32x4_u",
	OpcodeF32x4DemoteF64x2Zero: "f32x4.demote_f64x2_zero",
	OpcodeF64x2PromoteLowF32x4: "f64x2.promote_low_f32x4",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}

