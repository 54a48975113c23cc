package backendtest

import (
	"encoding/binary"
	"fmt"

	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/wasm"
)

// maxCallDepth bounds recursion the way a native stack guard would.
const maxCallDepth = 512

// vm executes decoded event programs. One vm serves one outer invocation;
// nested calls recurse on the Go stack.
type vm struct {
	rt        *moduleRuntime
	ins       *wasm.Instance
	hostFuncs []wasm.CompiledFunction
	depth     int
}

// call invokes funcIndex in the function index space: imported functions
// dispatch to the import object, local ones are interpreted.
func (v *vm) call(funcIndex uint32, args []uint64) ([]uint64, error) {
	if v.depth++; v.depth > maxCallDepth {
		return nil, wasm.NewTrap(wasm.TrapStackOverflow)
	}
	defer func() { v.depth-- }()

	numImported := v.rt.info.NumImportedFunctions()
	if funcIndex < numImported {
		return v.hostFuncs[funcIndex](v.ins, args...)
	}

	f, ok := v.rt.functions[funcIndex-numImported]
	if !ok {
		return nil, fmt.Errorf("no compiled function at index %d", funcIndex)
	}
	sig, err := v.signatureOf(funcIndex)
	if err != nil {
		return nil, err
	}

	locals := make([]uint64, len(sig.Params))
	copy(locals, args)
	return v.exec(f, sig, locals)
}

func (v *vm) signatureOf(funcIndex uint32) (*wasm.FunctionType, error) {
	assoc := v.rt.info.FuncAssoc
	if int(funcIndex) >= len(assoc) {
		return nil, fmt.Errorf("function %d outside the function index space", funcIndex)
	}
	sigIndex := assoc[funcIndex]
	if int(sigIndex) >= len(v.rt.info.Signatures) {
		return nil, fmt.Errorf("function %d has unknown signature %d", funcIndex, sigIndex)
	}
	return &v.rt.info.Signatures[sigIndex], nil
}

type ctrlFrame struct {
	opener int
	isLoop bool
}

func (v *vm) exec(f *compiledFunc, sig *wasm.FunctionType, locals []uint64) ([]uint64, error) {
	var stack []uint64
	var ctrl []ctrlFrame

	push := func(x uint64) { stack = append(stack, x) }
	pop := func() uint64 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return x
	}
	local := func(idx uint32) {
		for int(idx) >= len(locals) {
			locals = append(locals, 0)
		}
	}

	breakpointField := uint32(middleware.FieldRuntimeBreakpointValue.Index())

	for pc := 0; pc < len(f.instrs); pc++ {
		in := &f.instrs[pc]
		switch in.tag {
		case tagFunctionBegin:
			continue
		case tagFunctionEnd:
			pc = len(f.instrs)
			continue
		case tagGetInternal:
			push(v.ins.GetInternal(in.field))
			continue
		case tagSetInternal:
			v.ins.SetInternal(in.field, pop())
			continue
		case tagBreakpoint:
			return nil, &middleware.RuntimeBreakpointError{Value: v.ins.GetInternal(breakpointField)}
		}

		op := &in.op
		switch op.Opcode {
		case wasm.OpcodeNop:
		case wasm.OpcodeUnreachable:
			return nil, wasm.NewTrap(wasm.TrapUnreachable)

		case wasm.OpcodeBlock:
			ctrl = append(ctrl, ctrlFrame{opener: pc})
		case wasm.OpcodeLoop:
			ctrl = append(ctrl, ctrlFrame{opener: pc, isLoop: true})
		case wasm.OpcodeIf:
			ctrl = append(ctrl, ctrlFrame{opener: pc})
			if pop() == 0 {
				if e := f.elseOf[pc]; e >= 0 {
					pc = e
				} else {
					pc = f.match[pc]
					// The matching End pops the frame on the next
					// iteration only when reached in sequence, so drop
					// it here.
					ctrl = ctrl[:len(ctrl)-1]
				}
			}
		case wasm.OpcodeElse:
			// Reached from the then-branch: skip to the matching End.
			pc = f.match[pc]
			ctrl = ctrl[:len(ctrl)-1]
		case wasm.OpcodeEnd:
			if len(ctrl) > 0 && f.match[ctrl[len(ctrl)-1].opener] == pc {
				ctrl = ctrl[:len(ctrl)-1]
			}

		case wasm.OpcodeBr:
			var err error
			pc, ctrl, err = v.branch(f, ctrl, op.U32)
			if err != nil {
				return nil, err
			}
		case wasm.OpcodeBrIf:
			if pop() != 0 {
				var err error
				pc, ctrl, err = v.branch(f, ctrl, op.U32)
				if err != nil {
					return nil, err
				}
			}
		case wasm.OpcodeBrTable:
			i := pop()
			depths := op.Depths
			var depth uint32
			if int(i) < len(depths)-1 {
				depth = depths[i]
			} else {
				depth = depths[len(depths)-1]
			}
			var err error
			pc, ctrl, err = v.branch(f, ctrl, depth)
			if err != nil {
				return nil, err
			}
		case wasm.OpcodeReturn:
			pc = len(f.instrs)

		case wasm.OpcodeCall:
			results, err := v.callWithPoppedArgs(op.U32, &stack)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)
		case wasm.OpcodeCallIndirect:
			elem := pop()
			if len(v.ins.Tables) == 0 {
				return nil, wasm.NewTrap(wasm.TrapOutOfBoundsTableAccess)
			}
			table := v.ins.Tables[op.U32]
			if elem >= uint64(len(table.Refs)) {
				return nil, wasm.NewTrap(wasm.TrapOutOfBoundsTableAccess)
			}
			ref := table.Refs[elem]
			if ref == wasm.RefNull {
				return nil, wasm.NewTrap(wasm.TrapIndirectCallTypeMismatch)
			}
			results, err := v.callWithPoppedArgs(ref, &stack)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)

		case wasm.OpcodeDrop:
			pop()
		case wasm.OpcodeSelect:
			c := pop()
			b := pop()
			a := pop()
			if c != 0 {
				push(a)
			} else {
				push(b)
			}

		case wasm.OpcodeLocalGet:
			local(op.U32)
			push(locals[op.U32])
		case wasm.OpcodeLocalSet:
			local(op.U32)
			locals[op.U32] = pop()
		case wasm.OpcodeLocalTee:
			local(op.U32)
			locals[op.U32] = stack[len(stack)-1]
		case wasm.OpcodeGlobalGet:
			push(v.ins.Globals[op.U32].Val)
		case wasm.OpcodeGlobalSet:
			v.ins.Globals[op.U32].Val = pop()

		case wasm.OpcodeI32Const:
			push(uint64(uint32(op.I32)))
		case wasm.OpcodeI64Const:
			push(uint64(op.I64))

		case wasm.OpcodeI32Eqz:
			push(b2i(uint32(pop()) == 0))
		case wasm.OpcodeI64Eqz:
			push(b2i(pop() == 0))
		case wasm.OpcodeI32Eq:
			b, a := uint32(pop()), uint32(pop())
			push(b2i(a == b))
		case wasm.OpcodeI32Ne:
			b, a := uint32(pop()), uint32(pop())
			push(b2i(a != b))
		case wasm.OpcodeI64Eq:
			b, a := pop(), pop()
			push(b2i(a == b))
		case wasm.OpcodeI64Ne:
			b, a := pop(), pop()
			push(b2i(a != b))
		case wasm.OpcodeI32LtU:
			b, a := uint32(pop()), uint32(pop())
			push(b2i(a < b))
		case wasm.OpcodeI32GtU:
			b, a := uint32(pop()), uint32(pop())
			push(b2i(a > b))
		case wasm.OpcodeI32LeU:
			b, a := uint32(pop()), uint32(pop())
			push(b2i(a <= b))
		case wasm.OpcodeI32GeU:
			b, a := uint32(pop()), uint32(pop())
			push(b2i(a >= b))
		case wasm.OpcodeI64LtU:
			b, a := pop(), pop()
			push(b2i(a < b))
		case wasm.OpcodeI64GtU:
			b, a := pop(), pop()
			push(b2i(a > b))
		case wasm.OpcodeI64LeU:
			b, a := pop(), pop()
			push(b2i(a <= b))
		case wasm.OpcodeI64GeU:
			b, a := pop(), pop()
			push(b2i(a >= b))

		case wasm.OpcodeI32Add:
			b, a := uint32(pop()), uint32(pop())
			push(uint64(a + b))
		case wasm.OpcodeI32Sub:
			b, a := uint32(pop()), uint32(pop())
			push(uint64(a - b))
		case wasm.OpcodeI32Mul:
			b, a := uint32(pop()), uint32(pop())
			push(uint64(a * b))
		case wasm.OpcodeI64Add:
			b, a := pop(), pop()
			push(a + b)
		case wasm.OpcodeI64Sub:
			b, a := pop(), pop()
			push(a - b)
		case wasm.OpcodeI64Mul:
			b, a := pop(), pop()
			push(a * b)

		case wasm.OpcodeMemorySize:
			push(uint64(v.memory().Pages()))
		case wasm.OpcodeMemoryGrow:
			delta := uint32(pop())
			prev, ok := v.memory().Grow(delta)
			if ok {
				push(uint64(prev))
			} else {
				push(uint64(uint32(0xFFFFFFFF)))
			}

		case wasm.OpcodeI32Load:
			addr := uint32(pop()) + uint32(op.U64)
			buf := v.memory().Buffer
			if uint64(addr)+4 > uint64(len(buf)) {
				return nil, wasm.NewTrap(wasm.TrapOutOfBoundsMemoryAccess)
			}
			push(uint64(binary.LittleEndian.Uint32(buf[addr:])))
		case wasm.OpcodeI32Store:
			val := uint32(pop())
			addr := uint32(pop()) + uint32(op.U64)
			buf := v.memory().Buffer
			if uint64(addr)+4 > uint64(len(buf)) {
				return nil, wasm.NewTrap(wasm.TrapOutOfBoundsMemoryAccess)
			}
			binary.LittleEndian.PutUint32(buf[addr:], val)
		case wasm.OpcodeI64Load:
			addr := uint32(pop()) + uint32(op.U64)
			buf := v.memory().Buffer
			if uint64(addr)+8 > uint64(len(buf)) {
				return nil, wasm.NewTrap(wasm.TrapOutOfBoundsMemoryAccess)
			}
			push(binary.LittleEndian.Uint64(buf[addr:]))
		case wasm.OpcodeI64Store:
			val := pop()
			addr := uint32(pop()) + uint32(op.U64)
			buf := v.memory().Buffer
			if uint64(addr)+8 > uint64(len(buf)) {
				return nil, wasm.NewTrap(wasm.TrapOutOfBoundsMemoryAccess)
			}
			binary.LittleEndian.PutUint64(buf[addr:], val)

		default:
			return nil, fmt.Errorf("unsupported operator %s", op)
		}
	}

	nResults := len(sig.Results)
	if len(stack) < nResults {
		return nil, fmt.Errorf("operand stack holds %d of %d results", len(stack), nResults)
	}
	results := make([]uint64, nResults)
	copy(results, stack[len(stack)-nResults:])
	return results, nil
}

// branch resolves a label depth against the control stack, returning the new
// pc and the unwound control stack.
func (v *vm) branch(f *compiledFunc, ctrl []ctrlFrame, depth uint32) (int, []ctrlFrame, error) {
	if int(depth) >= len(ctrl) {
		// Branching past the outermost block returns from the function.
		return len(f.instrs), ctrl[:0], nil
	}
	target := ctrl[len(ctrl)-1-int(depth)]
	if target.isLoop {
		// The loop's frame stays; execution resumes after the Loop opcode.
		return target.opener, ctrl[: len(ctrl)-int(depth) : len(ctrl)], nil
	}
	return f.match[target.opener], ctrl[: len(ctrl)-1-int(depth) : len(ctrl)], nil
}

func (v *vm) callWithPoppedArgs(funcIndex uint32, stack *[]uint64) ([]uint64, error) {
	sig, err := v.signatureOf(funcIndex)
	if err != nil {
		return nil, err
	}
	n := len(sig.Params)
	s := *stack
	if len(s) < n {
		return nil, fmt.Errorf("operand stack holds %d of %d arguments", len(s), n)
	}
	args := make([]uint64, n)
	copy(args, s[len(s)-n:])
	*stack = s[:len(s)-n]
	return v.call(funcIndex, args)
}

func (v *vm) memory() *wasm.MemoryInstance {
	return v.ins.Memories[0]
}

func b2i(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
