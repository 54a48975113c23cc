package backendtest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiversx/wasmer/internal/engine"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/testing/backendtest"
	"github.com/multiversx/wasmer/internal/wasm"
)

func plainChain() (*middleware.Chain, error) {
	return middleware.NewChain(), nil
}

func instantiate(t *testing.T, b *backendtest.ModuleBuilder, name string, imports *engine.ImportObject) *wasm.Instance {
	t.Helper()
	e, err := engine.New(b.Frontend(), backendtest.New(), nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	cm, err := e.Compile([]byte(name), plainChain)
	require.NoError(t, err)
	if imports == nil {
		imports = engine.NewImportObject()
	}
	ins, err := e.Instantiate(cm, imports)
	require.NoError(t, err)
	return ins
}

func TestInterp_IfElse(t *testing.T) {
	// (func (param i32) (result i64) (if (local.get 0) (then 10) (else 20)))
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI64})
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		wasm.NewIfEmpty(),
		wasm.NewI64Const(10),
		{Opcode: wasm.OpcodeElse},
		wasm.NewI64Const(20),
		wasm.NewEnd(),
		wasm.NewEnd(),
	})
	b.Export("choose", idx)
	ins := instantiate(t, b, "if-else", nil)

	results, err := ins.Call("choose", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(10), results[0])

	results, err = ins.Call("choose", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(20), results[0])
}

func TestInterp_CountdownLoop(t *testing.T) {
	// (func (param i64) (result i64) — counts the param down to zero and
	// returns the number of iterations in local 1.
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature([]wasm.ValueType{wasm.ValueTypeI64}, []wasm.ValueType{wasm.ValueTypeI64})
	idx := b.AddFunction(sig, []backendtest.LocalDecl{{Type: wasm.ValueTypeI64, Count: 1}}, []wasm.Operator{
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeLoop, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		wasm.NewOp(wasm.OpcodeI64Eqz),
		{Opcode: wasm.OpcodeBrIf, U32: 1},
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		wasm.NewI64Const(1),
		wasm.NewOp(wasm.OpcodeI64Sub),
		{Opcode: wasm.OpcodeLocalSet, U32: 0},
		{Opcode: wasm.OpcodeLocalGet, U32: 1},
		wasm.NewI64Const(1),
		wasm.NewOp(wasm.OpcodeI64Add),
		{Opcode: wasm.OpcodeLocalSet, U32: 1},
		{Opcode: wasm.OpcodeBr, U32: 0},
		wasm.NewEnd(),
		wasm.NewEnd(),
		{Opcode: wasm.OpcodeLocalGet, U32: 1},
		wasm.NewEnd(),
	})
	b.Export("countdown", idx)
	ins := instantiate(t, b, "countdown", nil)

	results, err := ins.Call("countdown", 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), results[0])
}

func TestInterp_BrTable(t *testing.T) {
	// br_table over three nested blocks returns which arm was taken.
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI64})
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		{Opcode: wasm.OpcodeBrTable, Depths: []uint32{0, 1, 1}},
		wasm.NewEnd(),
		wasm.NewI64Const(100),
		{Opcode: wasm.OpcodeReturn},
		wasm.NewEnd(),
		wasm.NewI64Const(200),
		{Opcode: wasm.OpcodeReturn},
		wasm.NewEnd(),
	})
	b.Export("dispatch", idx)
	ins := instantiate(t, b, "br-table", nil)

	results, err := ins.Call("dispatch", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(100), results[0])

	results, err = ins.Call("dispatch", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(200), results[0])

	// Out-of-range selector takes the default arm.
	results, err = ins.Call("dispatch", 9)
	require.NoError(t, err)
	require.Equal(t, uint64(200), results[0])
}

func TestInterp_CallBetweenLocalFunctions(t *testing.T) {
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature([]wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64}, []wasm.ValueType{wasm.ValueTypeI64})
	addIdx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		{Opcode: wasm.OpcodeLocalGet, U32: 1},
		wasm.NewOp(wasm.OpcodeI64Add),
		wasm.NewEnd(),
	})
	mainIdx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeLocalGet, U32: 0},
		{Opcode: wasm.OpcodeLocalGet, U32: 1},
		{Opcode: wasm.OpcodeCall, U32: addIdx},
		wasm.NewI64Const(1),
		wasm.NewOp(wasm.OpcodeI64Add),
		wasm.NewEnd(),
	})
	b.Export("add1", mainIdx)
	ins := instantiate(t, b, "call", nil)

	results, err := ins.Call("add1", 20, 22)
	require.NoError(t, err)
	require.Equal(t, uint64(43), results[0])
}

func TestInterp_UnreachableTraps(t *testing.T) {
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature(nil, nil)
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		wasm.NewOp(wasm.OpcodeUnreachable),
		wasm.NewEnd(),
	})
	b.Export("boom", idx)
	ins := instantiate(t, b, "unreachable", nil)

	_, err := ins.Call("boom")
	var trap *wasm.Trap
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapUnreachable, trap.Code)
}

func TestInterp_RecursionOverflowTraps(t *testing.T) {
	b := backendtest.NewModuleBuilder(1)
	sig := b.AddSignature(nil, nil)
	idx := b.AddFunction(sig, nil, []wasm.Operator{
		{Opcode: wasm.OpcodeCall, U32: 0},
		wasm.NewEnd(),
	})
	b.Export("recurse", idx)
	ins := instantiate(t, b, "recurse", nil)

	_, err := ins.Call("recurse")
	var trap *wasm.Trap
	require.ErrorAs(t, err, &trap)
	require.Equal(t, wasm.TrapStackOverflow, trap.Code)
}
