package engine

import (
	"fmt"

	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/wasm"
)

// generatorSink adapts a ModuleGenerator to the middleware Sink, capturing
// the first error so the chain can keep its push-only contract.
type generatorSink struct {
	gen ModuleGenerator
	err error
}

func (s *generatorSink) Push(ev middleware.Event) {
	if s.err == nil {
		s.err = s.gen.Feed(ev)
	}
}

// streamFunction pushes one function through the chain into the generator:
// local declarations first, then FunctionBegin, the operators with their
// source offsets, and FunctionEnd. Locals precede FunctionBegin so the
// metering middleware can seed the first basic block with the prologue cost.
func streamFunction(chain *middleware.Chain, fn *FunctionSource, info *wasm.ModuleInfo, gen ModuleGenerator) error {
	sink := &generatorSink{gen: gen}

	for _, l := range fn.Locals {
		if err := chain.FeedLocal(l.Type, l.Count, 0); err != nil {
			return fmt.Errorf("function %d: %w", fn.Index, err)
		}
	}

	if err := chain.FeedEvent(middleware.FunctionBegin(fn.Index), info, sink, 0); err != nil {
		return fmt.Errorf("function %d: %w", fn.Index, err)
	}
	for i := range fn.Operators {
		var loc uint32
		if i < len(fn.Offsets) {
			loc = fn.Offsets[i]
		}
		if err := chain.FeedEvent(middleware.Wasm(&fn.Operators[i]), info, sink, loc); err != nil {
			return fmt.Errorf("function %d: %w", fn.Index, err)
		}
		if sink.err != nil {
			return fmt.Errorf("function %d: %w", fn.Index, sink.err)
		}
	}
	if err := chain.FeedEvent(middleware.FunctionEnd(), info, sink, 0); err != nil {
		return fmt.Errorf("function %d: %w", fn.Index, err)
	}
	return sink.err
}
