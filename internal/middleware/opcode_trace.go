package middleware

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/multiversx/wasmer/internal/wasm"
)

// OpcodeTracer writes one line per observed operator to a trace file:
// function index, operator position, source offset and the printed operator.
// It also mirrors the last seen source offset into an internal field, so on
// a trap the host can read where the guest last was. It never changes the
// semantics of the traced code.
type OpcodeTracer struct {
	out    *logrus.Logger
	closer io.Closer

	localFunctionIndex uint32
	counter            uint32
}

// NewOpcodeTracer returns a tracer writing to path.
func NewOpcodeTracer(path string) (*OpcodeTracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	out := logrus.New()
	out.SetOutput(f)
	out.SetLevel(logrus.InfoLevel)
	out.SetFormatter(&traceFormatter{})
	return &OpcodeTracer{out: out, closer: f}, nil
}

// traceFormatter emits the bare message: the tracer's lines are a fixed
// format of their own, not host logs.
type traceFormatter struct{}

func (f *traceFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return append([]byte(e.Message), '\n'), nil
}

// Close flushes and closes the trace file.
func (t *OpcodeTracer) Close() error {
	return t.closer.Close()
}

// FeedEvent implements FunctionMiddleware.
func (t *OpcodeTracer) FeedEvent(ev Event, _ *wasm.ModuleInfo, sink *EventSink, sourceLoc uint32) error {
	switch ev.Kind {
	case EventFunctionBegin:
		t.localFunctionIndex = ev.FunctionIndex
		t.counter = 0
		t.out.Infof("FUNCTION BEGIN: %d", ev.FunctionIndex)
	case EventFunctionEnd:
		t.out.Info("FUNCTION END")
	case EventWasmOp:
		t.out.Infof("[fn: %d, operator: %d]\t%d:\t%s",
			t.localFunctionIndex, t.counter, sourceLoc, ev.Op)
		t.counter++
		t.pushLastLocation(sink, sourceLoc)
	}

	sink.Push(ev)
	return nil
}

// FeedLocal implements FunctionMiddleware.
func (t *OpcodeTracer) FeedLocal(wasm.ValueType, int, uint32) error {
	return nil
}

// pushLastLocation mirrors sourceLoc into the last-location field.
func (t *OpcodeTracer) pushLastLocation(sink *EventSink, sourceLoc uint32) {
	sink.Push(WasmOwned(wasm.NewI64Const(int64(sourceLoc))))
	sink.Push(SetInternal(FieldOpcodeLastLocation.Index()))
}

// TraceModuleExports writes the module's export table to the trace file.
func (t *OpcodeTracer) TraceModuleExports(info *wasm.ModuleInfo) {
	for name, e := range info.Exports {
		t.out.Infof("EXPORT %q: kind %d index %d", name, e.Kind, e.Index)
	}
}

// GetLastLocation returns the source offset of the last traced operator the
// instance executed.
func GetLastLocation(ins *wasm.Instance) uint64 {
	return ins.GetInternal(uint32(FieldOpcodeLastLocation.Index()))
}

// ResetLastLocation clears the mirrored source offset.
func ResetLastLocation(ins *wasm.Instance) {
	ins.SetInternal(uint32(FieldOpcodeLastLocation.Index()), 0)
}
