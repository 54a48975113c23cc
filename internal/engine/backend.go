// Package engine drives compilation and instantiation: it streams front-end
// events through the middleware chain into a pluggable code generator, keeps
// compiled modules in memory and in the artifact cache, and binds instances.
package engine

import (
	"github.com/multiversx/wasmer/internal/artifact"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/platform"
	"github.com/multiversx/wasmer/internal/wasm"
)

// Frontend parses guest bytes into module metadata and per-function operator
// streams. Implementations are external collaborators; the engine only
// depends on this interface.
type Frontend interface {
	// Parse decodes and validates wasmBytes. The returned functions are the
	// locally defined ones, in index order.
	Parse(wasmBytes []byte) (*wasm.ModuleInfo, []FunctionSource, error)
}

// FunctionSource is one local function as the front-end decoded it. Offsets
// parallels Operators with each operator's offset in the original binary.
type FunctionSource struct {
	Index     uint32
	Locals    []LocalDecl
	Operators []wasm.Operator
	Offsets   []uint32
}

// LocalDecl is one entry of a function's local declarations: count locals of
// one type.
type LocalDecl struct {
	Type  wasm.ValueType
	Count int
}

// Backend generates and later executes machine code. Implementations are
// external collaborators.
type Backend interface {
	// Name identifies the backend inside artifacts; Load refuses artifacts
	// produced by a differently named backend.
	Name() string
	// NewModuleGenerator starts generating one module.
	NewModuleGenerator(info *wasm.ModuleInfo) (ModuleGenerator, error)
	// Load reconstructs the executable form of an artifact this backend
	// produced, typically in another process or run.
	Load(a *artifact.Artifact) (ModuleRuntime, error)
}

// ModuleGenerator consumes the instrumented event stream of every function
// and produces the compiled code and the backend's opaque metadata.
type ModuleGenerator interface {
	// Feed consumes one event of the instrumented stream. Function bodies
	// arrive bracketed by FunctionBegin/FunctionEnd events.
	Feed(ev middleware.Event) error
	// Finalize completes generation. The returned Memory holds the
	// executable code with contentSize set; ownership moves to the caller.
	Finalize() (metadata []byte, code *platform.Memory, err error)
}

// ModuleRuntime is the executable form of a compiled module, shared by all
// of its instances.
type ModuleRuntime interface {
	// Bind populates ins.Functions with the module's exported entry points
	// and resolves its imports from the provided import object.
	Bind(ins *wasm.Instance, imports *ImportObject) error
}

// ImportObject resolves the imports of modules being instantiated.
type ImportObject struct {
	Functions map[wasm.ImportName]wasm.CompiledFunction
	Memories  map[wasm.ImportName]*wasm.MemoryInstance
	Tables    map[wasm.ImportName]*wasm.TableInstance
	Globals   map[wasm.ImportName]*wasm.GlobalInstance
}

// NewImportObject returns an empty import object.
func NewImportObject() *ImportObject {
	return &ImportObject{
		Functions: map[wasm.ImportName]wasm.CompiledFunction{},
		Memories:  map[wasm.ImportName]*wasm.MemoryInstance{},
		Tables:    map[wasm.ImportName]*wasm.TableInstance{},
		Globals:   map[wasm.ImportName]*wasm.GlobalInstance{},
	}
}

// RegisterFunction adds a host function under (module, name).
func (io *ImportObject) RegisterFunction(module, name string, f wasm.CompiledFunction) {
	io.Functions[wasm.ImportName{Module: module, Name: name}] = f
}
