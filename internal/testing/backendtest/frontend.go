package backendtest

import (
	"github.com/multiversx/wasmer/internal/engine"
	"github.com/multiversx/wasmer/internal/wasm"
)

// StaticFrontend implements engine.Frontend by returning a pre-built parse
// result, letting tests assemble modules programmatically instead of
// shipping binary fixtures.
type StaticFrontend struct {
	Info      *wasm.ModuleInfo
	Functions []engine.FunctionSource
}

// Parse implements engine.Frontend.
func (f *StaticFrontend) Parse([]byte) (*wasm.ModuleInfo, []engine.FunctionSource, error) {
	return f.Info, f.Functions, nil
}

// ModuleBuilder accumulates a test module: signatures, functions and
// exports, with sensible single-memory defaults.
type ModuleBuilder struct {
	info      *wasm.ModuleInfo
	functions []engine.FunctionSource
}

// NewModuleBuilder starts a module with one memory of minPages.
func NewModuleBuilder(minPages uint32) *ModuleBuilder {
	return &ModuleBuilder{
		info: &wasm.ModuleInfo{
			Memories: []wasm.MemoryDescriptor{{Minimum: minPages}},
			Exports:  map[string]wasm.Export{},
		},
	}
}

// Info exposes the module info under construction.
func (b *ModuleBuilder) Info() *wasm.ModuleInfo { return b.info }

// AddSignature appends a signature and returns its index.
func (b *ModuleBuilder) AddSignature(params, results []wasm.ValueType) uint32 {
	b.info.Signatures = append(b.info.Signatures, wasm.FunctionType{Params: params, Results: results})
	return uint32(len(b.info.Signatures) - 1)
}

// ImportFunction declares an imported function with the given signature.
func (b *ModuleBuilder) ImportFunction(module, name string, sig uint32) uint32 {
	b.info.ImportedFunctions = append(b.info.ImportedFunctions, wasm.ImportName{Module: module, Name: name})
	b.info.FuncAssoc = append(b.info.FuncAssoc, sig)
	return uint32(len(b.info.ImportedFunctions) - 1)
}

// AddFunction appends a local function with the given signature and body,
// returning its index in the function index space.
func (b *ModuleBuilder) AddFunction(sig uint32, locals []LocalDecl, body []wasm.Operator) uint32 {
	localIndex := uint32(len(b.functions))
	var decls []engine.LocalDecl
	for _, l := range locals {
		decls = append(decls, engine.LocalDecl{Type: l.Type, Count: l.Count})
	}
	offsets := make([]uint32, len(body))
	for i := range offsets {
		offsets[i] = uint32(i)
	}
	b.functions = append(b.functions, engine.FunctionSource{
		Index:     localIndex,
		Locals:    decls,
		Operators: body,
		Offsets:   offsets,
	})
	b.info.FuncAssoc = append(b.info.FuncAssoc, sig)
	return b.info.NumImportedFunctions() + localIndex
}

// LocalDecl aliases engine.LocalDecl for brevity in tests.
type LocalDecl = engine.LocalDecl

// Export names a function index.
func (b *ModuleBuilder) Export(name string, funcIndex uint32) {
	b.info.Exports[name] = wasm.Export{Kind: wasm.ExportFunction, Index: funcIndex}
}

// Frontend returns the finished frontend.
func (b *ModuleBuilder) Frontend() *StaticFrontend {
	return &StaticFrontend{Info: b.info, Functions: b.functions}
}
