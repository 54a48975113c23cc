// Package middleware implements the compile-time instrumentation pipeline:
// a streaming front-end feeds events through an ordered chain of function
// middlewares, each of which may inject additional events before forwarding
// the original to the code generator.
package middleware

import (
	"github.com/multiversx/wasmer/internal/wasm"
)

// EventKind tags an Event.
type EventKind uint8

const (
	// EventFunctionBegin opens the body of one local function.
	EventFunctionBegin EventKind = iota
	// EventFunctionEnd closes it.
	EventFunctionEnd
	// EventWasmOp carries one guest operator.
	EventWasmOp
	// EventGetInternal makes generated code push an internal field onto the
	// operand stack.
	EventGetInternal
	// EventSetInternal makes generated code pop the operand stack into an
	// internal field.
	EventSetInternal
	// EventBreakpoint makes generated code invoke a host-provided handler.
	EventBreakpoint
)

// BreakpointHandler runs at trap time and returns the error surfaced to the
// host. It is invoked at most once per trap.
type BreakpointHandler func(ins *wasm.Instance) error

// Event is the sole interface between middlewares and the code generator.
type Event struct {
	Kind EventKind

	// FunctionIndex is set for EventFunctionBegin.
	FunctionIndex uint32
	// Field is set for EventGetInternal/EventSetInternal.
	Field FieldIndex
	// Op is set for EventWasmOp. Injected operators own their Operator;
	// forwarded ones borrow the front-end's.
	Op *wasm.Operator
	// Handler is set for EventBreakpoint.
	Handler BreakpointHandler
}

// FunctionBegin returns the event opening local function index.
func FunctionBegin(index uint32) Event {
	return Event{Kind: EventFunctionBegin, FunctionIndex: index}
}

// FunctionEnd returns the event closing the current function.
func FunctionEnd() Event {
	return Event{Kind: EventFunctionEnd}
}

// Wasm returns the event carrying a borrowed operator.
func Wasm(op *wasm.Operator) Event {
	return Event{Kind: EventWasmOp, Op: op}
}

// WasmOwned returns the event carrying an injected operator.
func WasmOwned(op wasm.Operator) Event {
	o := op
	return Event{Kind: EventWasmOp, Op: &o}
}

// GetInternal returns the event reading field onto the operand stack.
func GetInternal(field FieldIndex) Event {
	return Event{Kind: EventGetInternal, Field: field}
}

// SetInternal returns the event popping the operand stack into field.
func SetInternal(field FieldIndex) Event {
	return Event{Kind: EventSetInternal, Field: field}
}

// Breakpoint returns the event invoking handler at runtime.
func Breakpoint(handler BreakpointHandler) Event {
	return Event{Kind: EventBreakpoint, Handler: handler}
}

// Sink receives the events a middleware emits.
type Sink interface {
	Push(Event)
}

// EventSink is the buffering Sink the chain hands each middleware.
type EventSink struct {
	events []Event
}

// Push implements Sink.
func (s *EventSink) Push(ev Event) {
	s.events = append(s.events, ev)
}

// Drain returns the buffered events and resets the sink.
func (s *EventSink) Drain() []Event {
	evs := s.events
	s.events = nil
	return evs
}

// FunctionMiddleware rewrites the event stream of one function. FeedEvent
// may push zero or more events and must finally push the event it was given;
// an error aborts compilation. FeedLocal observes one local declaration of
// the function about to begin.
//
// A middleware instance is used for one module compilation at a time and
// needs no internal synchronization.
type FunctionMiddleware interface {
	FeedEvent(ev Event, info *wasm.ModuleInfo, sink *EventSink, sourceLoc uint32) error
	FeedLocal(ty wasm.ValueType, count int, sourceLoc uint32) error
}

// Chain is an ordered sequence of middlewares. Events cascade: what the
// first middleware pushes is fed to the second, and so on; the final
// middleware's output reaches the generator sink.
type Chain struct {
	middlewares []FunctionMiddleware
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Push appends a middleware to the chain.
func (c *Chain) Push(m FunctionMiddleware) {
	c.middlewares = append(c.middlewares, m)
}

// Len returns the number of middlewares in the chain.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// FeedEvent runs one event through the whole chain into out.
func (c *Chain) FeedEvent(ev Event, info *wasm.ModuleInfo, out Sink, sourceLoc uint32) error {
	pending := []Event{ev}
	for _, m := range c.middlewares {
		var next EventSink
		for _, p := range pending {
			if err := m.FeedEvent(p, info, &next, sourceLoc); err != nil {
				return err
			}
		}
		pending = next.Drain()
	}
	for _, p := range pending {
		out.Push(p)
	}
	return nil
}

// FeedLocal announces one local declaration to every middleware.
func (c *Chain) FeedLocal(ty wasm.ValueType, count int, sourceLoc uint32) error {
	for _, m := range c.middlewares {
		if err := m.FeedLocal(ty, count, sourceLoc); err != nil {
			return err
		}
	}
	return nil
}
