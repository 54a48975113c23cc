package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/multiversx/wasmer/internal/artifact"
	"github.com/multiversx/wasmer/internal/engine"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/testing/backendtest"
	"github.com/multiversx/wasmer/internal/wasm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// meteredChain mirrors the production chain: metering, memory-growth
// control, breakpoint checks.
func meteredChain(costs []uint32, maxGrow, maxGrowDelta uint64) engine.ChainFactory {
	return func() (*middleware.Chain, error) {
		chain := middleware.NewChain()
		chain.Push(middleware.NewMetering(costs, 0))
		chain.Push(middleware.NewOpcodeControl(maxGrow, maxGrowDelta))
		chain.Push(middleware.NewRuntimeBreakpointHandler())
		return chain, nil
	}
}

func newEngine(t *testing.T, frontend engine.Frontend) *engine.Engine {
	t.Helper()
	e, err := engine.New(frontend, backendtest.New(), nil, "test-version")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

// loopModule is one exported function looping forever: (func (loop br 0)).
func loopModule() *backendtest.StaticFrontend {
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature(nil, nil)
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeLoop, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeBr, U32: 0},
		wasm.NewEnd(),
		wasm.NewEnd(),
	})
	b.Export("run", idx)
	return b.Frontend()
}

// growModule exports (func (param i32) (result i32) local.get 0 memory.grow).
func growModule() *backendtest.StaticFrontend {
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		wasm.NewOp(wasm.OpcodeMemoryGrow),
		wasm.NewEnd(),
	})
	b.Export("grow", idx)
	return b.Frontend()
}

func compileAndInstantiate(t *testing.T, frontend engine.Frontend, factory engine.ChainFactory, wasmBytes []byte) (*engine.Engine, *wasm.Instance) {
	t.Helper()
	e := newEngine(t, frontend)
	cm, err := e.Compile(wasmBytes, factory)
	require.NoError(t, err)
	ins, err := e.Instantiate(cm, engine.NewImportObject())
	require.NoError(t, err)
	return e, ins
}

func TestOutOfGas_LoopExhaustsLimit(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")
	_, ins := compileAndInstantiate(t, loopModule(), meteredChain(costs, 0, 0), []byte("loop-module"))

	middleware.SetPointsLimit(ins, 1000)
	_, err := ins.Call("run")

	require.Equal(t, middleware.BreakpointValueOutOfGas, breakpointValue(t, err))
	require.GreaterOrEqual(t, middleware.GetPointsUsed(ins), uint64(1000))
	require.Equal(t, middleware.BreakpointValueOutOfGas, middleware.GetRuntimeBreakpointValue(ins))
}

func TestOutOfGas_ZeroLimitTripsImmediately(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")
	_, ins := compileAndInstantiate(t, loopModule(), meteredChain(costs, 0, 0), []byte("loop-module"))

	middleware.SetPointsLimit(ins, 0)
	_, err := ins.Call("run")

	require.Equal(t, middleware.BreakpointValueOutOfGas, breakpointValue(t, err))
	// The very first checkpoint trips: only the loop's and the br's own
	// single-operator blocks, one point each, were charged.
	require.LessOrEqual(t, middleware.GetPointsUsed(ins), uint64(2))
}

func TestUsedPoints_DeterministicAcrossRuns(t *testing.T) {
	costs := middleware.GetCostsTable("expensive_branching_else_one")
	e := newEngine(t, loopModule())
	cm, err := e.Compile([]byte("loop-module"), meteredChain(costs, 0, 0))
	require.NoError(t, err)

	observe := func() uint64 {
		ins, err := e.Instantiate(cm, engine.NewImportObject())
		require.NoError(t, err)
		middleware.SetPointsLimit(ins, 5000)
		_, callErr := ins.Call("run")
		require.Error(t, callErr)
		return middleware.GetPointsUsed(ins)
	}
	first := observe()
	for i := 0; i < 3; i++ {
		require.Equal(t, first, observe())
	}
}

func TestMemoryGrow_CountLimit(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")

	t.Run("max_memory_grow=0 rejects any grow", func(t *testing.T) {
		_, ins := compileAndInstantiate(t, growModule(), meteredChain(costs, 0, 100), []byte("grow-module"))
		middleware.SetPointsLimit(ins, 1_000_000)

		_, err := ins.Call("grow", 1)
		require.Equal(t, middleware.BreakpointValueMemoryLimit, breakpointValue(t, err))
	})

	t.Run("delta above cap rejected, below cap counted", func(t *testing.T) {
		_, ins := compileAndInstantiate(t, growModule(), meteredChain(costs, 10, 5), []byte("grow-module"))
		middleware.SetPointsLimit(ins, 1_000_000)

		_, err := ins.Call("grow", 6)
		require.Equal(t, middleware.BreakpointValueMemoryLimit, breakpointValue(t, err))

		// A fresh instance: the failed attempt left the old one undefined.
		_, ins = compileAndInstantiate(t, growModule(), meteredChain(costs, 10, 5), []byte("grow-module-2"))
		middleware.SetPointsLimit(ins, 1_000_000)

		results, err := ins.Call("grow", 5)
		require.NoError(t, err)
		require.Equal(t, uint64(1), results[0], "memory.grow returns the previous page count")
		require.Equal(t, uint64(1), middleware.GetMemoryGrowCount(ins))
		require.Equal(t, uint32(6), ins.Memories[0].Pages())
	})
}

func TestHostCancellation_SurfacesAfterCall(t *testing.T) {
	// Guest: (func call $interrupt) — the host import writes the breakpoint
	// value, and the injected post-call check surfaces it.
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature(nil, nil)
	b.ImportFunction("env", "interrupt", sig)
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeCall, U32: 0},
		wasm.NewEnd(),
	})
	b.Export("run", idx)

	costs := middleware.GetCostsTable("uniform_one")
	e := newEngine(t, b.Frontend())
	cm, err := e.Compile([]byte("cancel-module"), meteredChain(costs, 0, 0))
	require.NoError(t, err)

	imports := engine.NewImportObject()
	imports.RegisterFunction("env", "interrupt", func(ins *wasm.Instance, _ ...uint64) ([]uint64, error) {
		middleware.SetRuntimeBreakpointValue(ins, middleware.BreakpointValueExecutionFailed)
		return nil, nil
	})
	ins, err := e.Instantiate(cm, imports)
	require.NoError(t, err)
	middleware.SetPointsLimit(ins, 1_000_000)

	_, err = ins.Call("run")
	require.Equal(t, middleware.BreakpointValueExecutionFailed, breakpointValue(t, err))
}

func TestCompile_UsesInMemoryRegistry(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")
	e := newEngine(t, loopModule())

	cm1, err := e.Compile([]byte("loop-module"), meteredChain(costs, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 1, e.CompiledModuleCount())

	cm2, err := e.Compile([]byte("loop-module"), meteredChain(costs, 0, 0))
	require.NoError(t, err)
	require.Same(t, cm1, cm2)
	require.Equal(t, 1, e.CompiledModuleCount())
}

func TestSerializeModule_RoundTripKeepsBehavior(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")
	e := newEngine(t, loopModule())
	cm, err := e.Compile([]byte("loop-module"), meteredChain(costs, 0, 0))
	require.NoError(t, err)

	buf, err := e.SerializeModule(cm)
	require.NoError(t, err)

	// A second engine with a frontend that must not be consulted: the
	// artifact alone carries everything.
	e2 := newEngine(t, nil)
	cm2, err := e2.LoadSerialized(buf)
	require.NoError(t, err)

	run := func(eng *engine.Engine, m *engine.CompiledModule) uint64 {
		ins, err := eng.Instantiate(m, engine.NewImportObject())
		require.NoError(t, err)
		middleware.SetPointsLimit(ins, 1000)
		_, callErr := ins.Call("run")
		require.Equal(t, middleware.BreakpointValueOutOfGas, breakpointValue(t, callErr))
		return middleware.GetPointsUsed(ins)
	}
	require.Equal(t, run(e, cm), run(e2, cm2))
}

func TestLoadSerialized_RejectsForeignBackend(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")
	e := newEngine(t, loopModule())
	cm, err := e.Compile([]byte("loop-module"), meteredChain(costs, 0, 0))
	require.NoError(t, err)

	cm.Artifact.Info.Backend = "native-backend"
	buf, err := e.SerializeModule(cm)
	require.NoError(t, err)
	cm.Artifact.Info.Backend = backendtest.BackendName

	_, err = e.LoadSerialized(buf)
	var ub *artifact.UnsupportedBackendError
	require.ErrorAs(t, err, &ub)
	require.Equal(t, "native-backend", ub.Backend)
}

func TestInstanceReset_AfterGuestRun(t *testing.T) {
	costs := middleware.GetCostsTable("uniform_one")
	_, ins := compileAndInstantiate(t, growModule(), meteredChain(costs, 100, 100), []byte("grow-module"))
	middleware.SetPointsLimit(ins, 1_000_000)

	_, err := ins.Call("grow", 10)
	require.NoError(t, err)
	require.Equal(t, uint32(11), ins.Memories[0].Pages())
	mem := ins.Memories[0].Buffer
	for i := 0; i < 10*wasm.MemoryPageSize; i += 4096 {
		mem[wasm.MemoryPageSize+i] = 0xAB
	}

	require.NoError(t, ins.Reset())

	require.Equal(t, uint32(1), ins.Memories[0].Pages())
	for i, b := range ins.Memories[0].Buffer {
		require.Zero(t, b, "byte %d", i)
	}
}

func breakpointValue(t *testing.T, err error) uint64 {
	t.Helper()
	require.Error(t, err)
	var bp *middleware.RuntimeBreakpointError
	require.ErrorAs(t, err, &bp)
	return bp.Value
}
