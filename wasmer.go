// Package wasmer is the execution sandbox host surface: compile guest
// modules once with metering and memory-control instrumentation, cache the
// compiled artifact across processes, and run instances under strict
// resource accounting.
package wasmer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/multiversx/wasmer/internal/artifact"
	"github.com/multiversx/wasmer/internal/engine"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/platform"
	"github.com/multiversx/wasmer/internal/version"
	"github.com/multiversx/wasmer/internal/wasm"
)

// Reserved breakpoint values, re-exported for hosts branching on invocation
// failures.
const (
	BreakpointValueNoBreakpoint    = middleware.BreakpointValueNoBreakpoint
	BreakpointValueExecutionFailed = middleware.BreakpointValueExecutionFailed
	BreakpointValueSignalError     = middleware.BreakpointValueSignalError
	BreakpointValueOutOfGas        = middleware.BreakpointValueOutOfGas
	BreakpointValueMemoryLimit     = middleware.BreakpointValueMemoryLimit
)

// OpcodeCostTableLength is the number of entries SetOpcodeCosts requires:
// one per operator variant plus the synthetic cost indices.
const OpcodeCostTableLength = wasm.CostTableLength

// Instance is an instantiated module.
type Instance = wasm.Instance

// CompiledModule is a compiled module, shareable by many instances.
type CompiledModule = engine.CompiledModule

// ImportObject resolves guest imports at instantiation.
type ImportObject = engine.ImportObject

// NewImportObject returns an empty import object.
func NewImportObject() *ImportObject { return engine.NewImportObject() }

// SetOpcodeCosts installs the process-global opcode cost table. It must be
// called once, before any module is compiled, and the table is immutable
// afterwards.
func SetOpcodeCosts(costs []uint32) error {
	return middleware.SetOpcodeCosts(costs)
}

// SetSigsegvPassthrough makes the runtime ignore memory-fault signals and
// let them take the process down.
func SetSigsegvPassthrough() {
	platform.SetSigsegvPassthrough()
}

// ForceInstallSigHandlers installs the runtime's memory-fault signal
// handling.
func ForceInstallSigHandlers() {
	platform.ForceInstallSigHandlers()
}

// SetSerializationScheme selects the process-global artifact body encoding.
// Produced and consumed caches must use the same scheme.
func SetSerializationScheme(s artifact.Scheme) {
	artifact.SetScheme(s)
}

// The process-global import object used when instantiating from cache; the
// host installs it once at startup.
var (
	globalImportsMux sync.RWMutex
	globalImports    = engine.NewImportObject()
)

// SetGlobalImportObject installs the import object cache-loaded instances
// are bound against.
func SetGlobalImportObject(io *ImportObject) {
	globalImportsMux.Lock()
	defer globalImportsMux.Unlock()
	globalImports = io
}

func getGlobalImportObject() *ImportObject {
	globalImportsMux.RLock()
	defer globalImportsMux.RUnlock()
	return globalImports
}

// Runtime compiles and instantiates modules against one backend. A Runtime
// may be used concurrently for distinct modules.
type Runtime struct {
	config *RuntimeConfig
	eng    *engine.Engine
}

// NewRuntime returns a runtime for the given configuration.
func NewRuntime(config *RuntimeConfig) (*Runtime, error) {
	if config.Frontend == nil || config.Backend == nil {
		return nil, errors.New("runtime requires a frontend and a backend")
	}
	eng, err := engine.New(config.Frontend, config.Backend, config.fileCache(), version.GetRuntimeVersion())
	if err != nil {
		return nil, err
	}
	return &Runtime{config: config, eng: eng}, nil
}

// Close releases the runtime's compiled modules.
func (r *Runtime) Close() error {
	return r.eng.Close()
}

// Engine exposes the underlying engine to in-repo callers; hosts use the
// Runtime surface.
func (r *Runtime) Engine() *engine.Engine { return r.eng }

// CompileWithGasMetering compiles wasmBytes with the full instrumentation
// chain the options call for: metering, memory-growth control, runtime
// breakpoints and optionally the opcode tracer.
//
// The process-global opcode cost table must have been installed.
func (r *Runtime) CompileWithGasMetering(wasmBytes []byte, opts *CompilationOptions) (*CompiledModule, error) {
	if wasmBytes == nil {
		return nil, errors.New("wasm bytes are nil")
	}
	costs := middleware.OpcodeCosts()
	if costs == nil {
		return nil, errors.New("opcode cost table was not installed")
	}
	return r.eng.Compile(wasmBytes, middlewareChainFactory(costs, opts))
}

// Instantiate creates an instance bound to imports and applies the gas limit
// in opts.
func (r *Runtime) Instantiate(cm *CompiledModule, imports *ImportObject, opts *CompilationOptions) (*Instance, error) {
	ins, err := r.eng.Instantiate(cm, imports)
	if err != nil {
		return nil, err
	}
	middleware.SetPointsLimit(ins, opts.GasLimit)
	return ins, nil
}

// InstanceCache serializes the module an instance was created from; the
// returned buffer reconstructs the module in another process via
// InstanceFromCache.
func (r *Runtime) InstanceCache(cm *CompiledModule) ([]byte, error) {
	if cm == nil {
		return nil, errors.New("nil module")
	}
	return r.eng.SerializeModule(cm)
}

// InstanceFromCache reconstructs a module from cache bytes, instantiates it
// against the global import object, and applies the gas limit in opts.
func (r *Runtime) InstanceFromCache(cacheBytes []byte, opts *CompilationOptions) (*Instance, error) {
	if cacheBytes == nil {
		return nil, errors.New("cache bytes are nil")
	}
	cm, err := r.eng.LoadSerialized(cacheBytes)
	if err != nil {
		return nil, err
	}
	ins, err := r.eng.Instantiate(cm, getGlobalImportObject())
	if err != nil {
		return nil, err
	}
	middleware.SetPointsLimit(ins, opts.GasLimit)
	return ins, nil
}

// GetPointsUsed returns the points an instance has used.
func GetPointsUsed(ins *Instance) uint64 {
	return middleware.GetPointsUsed(ins)
}

// SetPointsUsed sets the points an instance has used.
func SetPointsUsed(ins *Instance, v uint64) {
	middleware.SetPointsUsed(ins, v)
}

// SetPointsLimit sets the points ceiling of an instance.
func SetPointsLimit(ins *Instance, v uint64) {
	middleware.SetPointsLimit(ins, v)
}

// GetRuntimeBreakpointValue reads the instance's breakpoint field.
func GetRuntimeBreakpointValue(ins *Instance) uint64 {
	return middleware.GetRuntimeBreakpointValue(ins)
}

// SetRuntimeBreakpointValue writes the instance's breakpoint field; the next
// outgoing call in guest code surfaces it as a typed error. Safe to call
// from any thread.
func SetRuntimeBreakpointValue(ins *Instance, v uint64) {
	middleware.SetRuntimeBreakpointValue(ins, v)
}

// BreakpointValueOf extracts the breakpoint value from an invocation error,
// or BreakpointValueNoBreakpoint when the error is not a breakpoint.
func BreakpointValueOf(err error) uint64 {
	var bp *middleware.RuntimeBreakpointError
	if errors.As(err, &bp) {
		return bp.Value
	}
	return middleware.BreakpointValueNoBreakpoint
}

// Reset rewinds an instance to its post-instantiation state; see
// wasm.Instance.Reset.
func Reset(ins *Instance) error {
	if ins == nil {
		return fmt.Errorf("nil instance")
	}
	return ins.Reset()
}
