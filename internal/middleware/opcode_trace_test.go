package middleware

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiversx/wasmer/internal/wasm"
)

func TestOpcodeTracer_WritesTraceLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opcode.trace")
	tracer, err := NewOpcodeTracer(path)
	require.NoError(t, err)

	sink := &EventSink{}
	require.NoError(t, tracer.FeedEvent(FunctionBegin(3), nil, sink, 0))
	add := wasm.NewOp(wasm.OpcodeI64Add)
	require.NoError(t, tracer.FeedEvent(Wasm(&add), nil, sink, 17))
	require.NoError(t, tracer.FeedEvent(FunctionEnd(), nil, sink, 0))
	require.NoError(t, tracer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "FUNCTION BEGIN: 3")
	require.Contains(t, string(content), "[fn: 3, operator: 0]\t17:\ti64.add")
	require.Contains(t, string(content), "FUNCTION END")
}

func TestOpcodeTracer_MirrorsLastLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opcode.trace")
	tracer, err := NewOpcodeTracer(path)
	require.NoError(t, err)
	defer tracer.Close()

	sink := &EventSink{}
	op := wasm.NewOp(wasm.OpcodeNop)
	require.NoError(t, tracer.FeedEvent(Wasm(&op), nil, sink, 42))

	events := describe(sink.Drain())
	require.Equal(t, []string{
		"op:i64.const 42",
		fmt.Sprintf("set:%d", FieldOpcodeLastLocation.Index()),
		"op:nop",
	}, events)
}

func TestLastLocation_Accessors(t *testing.T) {
	ins := wasm.NewInstance(&wasm.ModuleInfo{}, FieldCount())
	ins.SetInternal(uint32(FieldOpcodeLastLocation.Index()), 99)
	require.Equal(t, uint64(99), GetLastLocation(ins))
	ResetLastLocation(ins)
	require.Equal(t, uint64(0), GetLastLocation(ins))
}
