// Package backendtest provides the test stand-in for the external code
// generator: it "compiles" a function by recording its instrumented event
// stream into the executable region verbatim and "executes" it with a small
// stack interpreter. That keeps every contract of the real pipeline —
// artifact round-trips, protection changes, breakpoint dispatch, internal
// fields — observable in tests without a native backend.
package backendtest

import (
	"encoding/binary"
	"fmt"

	"github.com/multiversx/wasmer/internal/artifact"
	"github.com/multiversx/wasmer/internal/engine"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/platform"
	"github.com/multiversx/wasmer/internal/wasm"
)

// BackendName is recorded in artifacts this backend produces.
const BackendName = "backendtest"

// Backend implements engine.Backend.
type Backend struct{}

// New returns the test backend.
func New() *Backend { return &Backend{} }

// Name implements engine.Backend.
func (b *Backend) Name() string { return BackendName }

// NewModuleGenerator implements engine.Backend.
func (b *Backend) NewModuleGenerator(info *wasm.ModuleInfo) (engine.ModuleGenerator, error) {
	return &moduleGenerator{info: info}, nil
}

type funcRange struct {
	index uint32
	off   uint32
	end   uint32
}

type moduleGenerator struct {
	info    *wasm.ModuleInfo
	program []byte
	ranges  []funcRange
	current *funcRange
}

// Feed implements engine.ModuleGenerator by appending the encoded event.
func (g *moduleGenerator) Feed(ev middleware.Event) error {
	switch ev.Kind {
	case middleware.EventFunctionBegin:
		if g.current != nil {
			return fmt.Errorf("function %d still open", g.current.index)
		}
		g.ranges = append(g.ranges, funcRange{index: ev.FunctionIndex, off: uint32(len(g.program))})
		g.current = &g.ranges[len(g.ranges)-1]
	case middleware.EventFunctionEnd:
		if g.current == nil {
			return fmt.Errorf("function end without begin")
		}
	}
	g.program = appendEvent(g.program, ev)
	if ev.Kind == middleware.EventFunctionEnd {
		g.current.end = uint32(len(g.program))
		g.current = nil
	}
	return nil
}

// Finalize implements engine.ModuleGenerator: the program lands in a fresh
// mapping protected ReadExec, and the metadata records the function table.
func (g *moduleGenerator) Finalize() (metadata []byte, code *platform.Memory, err error) {
	if g.current != nil {
		return nil, nil, fmt.Errorf("function %d still open", g.current.index)
	}

	metadata = binary.LittleEndian.AppendUint32(nil, uint32(len(g.ranges)))
	for _, r := range g.ranges {
		metadata = binary.LittleEndian.AppendUint32(metadata, r.index)
		metadata = binary.LittleEndian.AppendUint32(metadata, r.off)
		metadata = binary.LittleEndian.AppendUint32(metadata, r.end)
	}

	code, err = platform.WithContentSizeProtect(uint32(len(g.program)), platform.ProtectReadWrite)
	if err != nil {
		return nil, nil, err
	}
	copy(code.AsSliceMut(), g.program)
	if err = code.ProtectAll(platform.ProtectReadExec); err != nil {
		_ = code.Unmap()
		return nil, nil, err
	}
	return metadata, code, nil
}

// Load implements engine.Backend: it decodes the function table from the
// metadata and the event program from the executable region.
func (b *Backend) Load(a *artifact.Artifact) (engine.ModuleRuntime, error) {
	meta := a.BackendMetadata
	if len(meta) < 4 {
		return nil, fmt.Errorf("metadata truncated")
	}
	n := binary.LittleEndian.Uint32(meta)
	if uint64(len(meta)) < 4+uint64(n)*12 {
		return nil, fmt.Errorf("metadata function table truncated")
	}

	program := a.CompiledCode.AsSliceContents()
	rt := &moduleRuntime{info: a.Info, functions: map[uint32]*compiledFunc{}}
	for i := uint32(0); i < n; i++ {
		entry := meta[4+i*12:]
		index := binary.LittleEndian.Uint32(entry)
		off := binary.LittleEndian.Uint32(entry[4:])
		end := binary.LittleEndian.Uint32(entry[8:])
		if uint64(end) > uint64(len(program)) || off > end {
			return nil, fmt.Errorf("function %d outside program", index)
		}
		f, err := decodeFunction(program[off:end])
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", index, err)
		}
		rt.functions[index] = f
	}
	return rt, nil
}

// compiledFunc is one decoded function: its instructions and the control
// matching computed once at load.
type compiledFunc struct {
	instrs []instr
	match  []int // per-instruction: End position for Block/Loop/If/Else
	elseOf []int // per-instruction: Else position for an If that has one
}

func decodeFunction(code []byte) (*compiledFunc, error) {
	d := &decoder{buf: code}
	f := &compiledFunc{}
	for d.off < len(d.buf) {
		in, err := d.instr()
		if err != nil {
			return nil, err
		}
		f.instrs = append(f.instrs, in)
	}
	return f, f.computeMatches()
}

// computeMatches pairs every structured-control operator with its End (and
// If with its Else), so branches resolve in constant time at run time.
func (f *compiledFunc) computeMatches() error {
	f.match = make([]int, len(f.instrs))
	f.elseOf = make([]int, len(f.instrs))
	for i := range f.match {
		f.match[i] = -1
		f.elseOf[i] = -1
	}
	var stack []int
	for i, in := range f.instrs {
		if in.tag != tagWasmOp {
			continue
		}
		switch in.op.Opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			stack = append(stack, i)
		case wasm.OpcodeElse:
			if len(stack) == 0 {
				return fmt.Errorf("else without if at %d", i)
			}
			f.elseOf[stack[len(stack)-1]] = i
		case wasm.OpcodeEnd:
			if len(stack) == 0 {
				// The closing End of the function body.
				continue
			}
			opener := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			f.match[opener] = i
			if e := f.elseOf[opener]; e >= 0 {
				f.match[e] = i
			}
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("unclosed block at %d", stack[len(stack)-1])
	}
	return nil
}

// moduleRuntime implements engine.ModuleRuntime.
type moduleRuntime struct {
	info      *wasm.ModuleInfo
	functions map[uint32]*compiledFunc
}

// Bind implements engine.ModuleRuntime.
func (rt *moduleRuntime) Bind(ins *wasm.Instance, imports *engine.ImportObject) error {
	hostFuncs := make([]wasm.CompiledFunction, len(rt.info.ImportedFunctions))
	for i, name := range rt.info.ImportedFunctions {
		f, ok := imports.Functions[name]
		if !ok {
			return fmt.Errorf("missing imported function %s.%s", name.Module, name.Name)
		}
		hostFuncs[i] = f
	}

	for name, e := range rt.info.Exports {
		if e.Kind != wasm.ExportFunction {
			continue
		}
		idx := e.Index
		ins.Functions[name] = func(ins *wasm.Instance, args ...uint64) ([]uint64, error) {
			v := &vm{rt: rt, ins: ins, hostFuncs: hostFuncs}
			return v.call(idx, args)
		}
	}
	return nil
}
