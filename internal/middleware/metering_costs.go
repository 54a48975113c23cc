package middleware

import (
	"fmt"
	"sync/atomic"

	"github.com/multiversx/wasmer/internal/wasm"
)

// The process-global opcode cost table. It is installed once, before any
// module is compiled, and never changes afterwards; readers therefore take
// no locks.
var (
	opcodeCostsInstalled uint32
	opcodeCosts          atomic.Value // []uint32 of length wasm.CostTableLength
)

// SetOpcodeCosts installs the process-global cost table. The table must have
// exactly wasm.CostTableLength entries; a second install is rejected.
func SetOpcodeCosts(costs []uint32) error {
	if len(costs) != wasm.CostTableLength {
		return fmt.Errorf("opcode cost table must have %d entries, got %d", wasm.CostTableLength, len(costs))
	}
	if !atomic.CompareAndSwapUint32(&opcodeCostsInstalled, 0, 1) {
		return fmt.Errorf("opcode cost table already installed")
	}
	owned := make([]uint32, len(costs))
	copy(owned, costs)
	opcodeCosts.Store(owned)
	return nil
}

// OpcodeCosts returns the installed cost table, or nil when none was set.
func OpcodeCosts() []uint32 {
	if v := opcodeCosts.Load(); v != nil {
		return v.([]uint32)
	}
	return nil
}

// GetCostsTable returns a named preset cost table, useful for tests and
// benchmarking hosts. Unknown names resolve to the all-zero table.
func GetCostsTable(name string) []uint32 {
	switch name {
	case "uniform_one":
		return buildCostsTable(func(wasm.Opcode) uint32 { return 1 })
	case "expensive_loop_else_one":
		return buildCostsTable(func(op wasm.Opcode) uint32 {
			if op == wasm.OpcodeLoop {
				return 12
			}
			return 1
		})
	case "expensive_branching_else_one":
		return buildCostsTable(func(op wasm.Opcode) uint32 {
			switch op {
			case wasm.OpcodeLoop, wasm.OpcodeBr, wasm.OpcodeBrTable, wasm.OpcodeBrIf,
				wasm.OpcodeCall, wasm.OpcodeCallIndirect, wasm.OpcodeReturn:
				return 12
			}
			return 1
		})
	}
	return buildCostsTable(func(wasm.Opcode) uint32 { return 0 })
}

// buildCostsTable densifies a per-opcode rule, pricing the synthetic
// local-allocation index like an ordinary cheap operator.
func buildCostsTable(cost func(wasm.Opcode) uint32) []uint32 {
	table := make([]uint32, wasm.CostTableLength)
	for i := 0; i < wasm.OpcodeCount; i++ {
		table[i] = cost(wasm.Opcode(i))
	}
	table[wasm.LocalAllocateCostIndex] = cost(wasm.OpcodeNop)
	return table
}
