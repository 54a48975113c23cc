package wasmer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/testing/backendtest"
	"github.com/multiversx/wasmer/internal/wasm"
)

func installCosts(t *testing.T) {
	t.Helper()
	// The table is process-global and write-once; the first test installs
	// it and later ones observe the rejection.
	err := SetOpcodeCosts(middleware.GetCostsTable("uniform_one"))
	if err != nil {
		require.Contains(t, err.Error(), "already installed")
	}
}

func loopRuntime(t *testing.T) *Runtime {
	t.Helper()
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature(nil, nil)
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeLoop, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeBr, U32: 0},
		wasm.NewEnd(),
		wasm.NewEnd(),
	})
	b.Export("run", idx)

	r, err := NewRuntime(NewRuntimeConfig(b.Frontend(), backendtest.New()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	return r
}

func TestSetOpcodeCosts_WriteOnce(t *testing.T) {
	installCosts(t)
	err := SetOpcodeCosts(middleware.GetCostsTable("uniform_one"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "already installed")
}

func TestCompileWithGasMetering_EndToEnd(t *testing.T) {
	installCosts(t)
	r := loopRuntime(t)

	opts := &CompilationOptions{GasLimit: 1000}
	cm, err := r.CompileWithGasMetering([]byte("loop-module"), opts)
	require.NoError(t, err)

	ins, err := r.Instantiate(cm, NewImportObject(), opts)
	require.NoError(t, err)

	_, err = ins.Call("run")
	require.Equal(t, BreakpointValueOutOfGas, BreakpointValueOf(err))
	require.GreaterOrEqual(t, GetPointsUsed(ins), uint64(1000))
	require.Equal(t, BreakpointValueOutOfGas, GetRuntimeBreakpointValue(ins))
}

func TestCompileWithGasMetering_NilBytes(t *testing.T) {
	installCosts(t)
	r := loopRuntime(t)
	_, err := r.CompileWithGasMetering(nil, &CompilationOptions{})
	require.Error(t, err)
}

func TestInstanceCache_RoundTripAppliesGasLimit(t *testing.T) {
	installCosts(t)
	r := loopRuntime(t)

	opts := &CompilationOptions{GasLimit: 500}
	cm, err := r.CompileWithGasMetering([]byte("loop-module"), opts)
	require.NoError(t, err)

	cacheBytes, err := r.InstanceCache(cm)
	require.NoError(t, err)

	SetGlobalImportObject(NewImportObject())
	ins, err := r.InstanceFromCache(cacheBytes, &CompilationOptions{GasLimit: 700})
	require.NoError(t, err)

	_, err = ins.Call("run")
	require.Equal(t, BreakpointValueOutOfGas, BreakpointValueOf(err))
	used := GetPointsUsed(ins)
	require.GreaterOrEqual(t, used, uint64(700))
	require.Less(t, used, uint64(1000))
}

func TestSetRuntimeBreakpointValue_ReadBack(t *testing.T) {
	installCosts(t)
	r := loopRuntime(t)

	cm, err := r.CompileWithGasMetering([]byte("loop-module"), &CompilationOptions{})
	require.NoError(t, err)
	ins, err := r.Instantiate(cm, NewImportObject(), &CompilationOptions{})
	require.NoError(t, err)

	SetRuntimeBreakpointValue(ins, 42)
	require.Equal(t, uint64(42), GetRuntimeBreakpointValue(ins))
	SetRuntimeBreakpointValue(ins, BreakpointValueNoBreakpoint)
	require.Equal(t, BreakpointValueNoBreakpoint, GetRuntimeBreakpointValue(ins))
}

func TestPointsAccessors(t *testing.T) {
	installCosts(t)
	r := loopRuntime(t)

	cm, err := r.CompileWithGasMetering([]byte("loop-module"), &CompilationOptions{})
	require.NoError(t, err)
	ins, err := r.Instantiate(cm, NewImportObject(), &CompilationOptions{})
	require.NoError(t, err)

	SetPointsUsed(ins, 123)
	require.Equal(t, uint64(123), GetPointsUsed(ins))
	SetPointsLimit(ins, 456)
	require.Equal(t, uint64(456), middleware.GetPointsLimit(ins))
}

func TestCompilationOptions_OpcodeTrace(t *testing.T) {
	installCosts(t)
	r := loopRuntime(t)

	path := filepath.Join(t.TempDir(), "run.trace")
	_, err := r.CompileWithGasMetering([]byte("traced-module"), &CompilationOptions{
		OpcodeTrace:     true,
		OpcodeTracePath: path,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "FUNCTION BEGIN: 0")
}

func TestRuntimeCache_PersistsAcrossRuntimes(t *testing.T) {
	installCosts(t)

	dir := t.TempDir()
	c := NewCache()
	require.NoError(t, c.WithArtifactCacheDirName(dir))

	build := func() *Runtime {
		b := backendtest.NewModuleBuilder(1)
		sig := b.AddSignature(nil, nil)
		idx := b.AddFunction(sig, nil, []wasm.Operator{wasm.NewEnd()})
		b.Export("noop", idx)
		r, err := NewRuntime(NewRuntimeConfig(b.Frontend(), backendtest.New()).WithCache(c))
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, r.Close()) })
		return r
	}

	r1 := build()
	_, err := r1.CompileWithGasMetering([]byte("cached-module"), &CompilationOptions{})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A second runtime compiles nothing: the artifact comes from disk.
	r2 := build()
	cm, err := r2.CompileWithGasMetering([]byte("cached-module"), &CompilationOptions{GasLimit: 10})
	require.NoError(t, err)
	ins, err := r2.Instantiate(cm, NewImportObject(), &CompilationOptions{GasLimit: 10})
	require.NoError(t, err)
	_, err = ins.Call("noop")
	require.NoError(t, err)
}

func TestBreakpointValueOf_NonBreakpointError(t *testing.T) {
	require.Equal(t, BreakpointValueNoBreakpoint, BreakpointValueOf(os.ErrNotExist))
}
