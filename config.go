package wasmer

import (
	"github.com/multiversx/wasmer/internal/artifactcache"
	"github.com/multiversx/wasmer/internal/engine"
	"github.com/multiversx/wasmer/internal/middleware"
)

// RuntimeConfig carries the collaborators and cache wiring of a Runtime.
type RuntimeConfig struct {
	Frontend engine.Frontend
	Backend  engine.Backend

	cache Cache
}

// NewRuntimeConfig returns a config with the given collaborators.
func NewRuntimeConfig(frontend engine.Frontend, backend engine.Backend) *RuntimeConfig {
	return &RuntimeConfig{Frontend: frontend, Backend: backend}
}

// WithCache attaches an artifact cache shared across runtimes.
func (c *RuntimeConfig) WithCache(cache Cache) *RuntimeConfig {
	c.cache = cache
	return c
}

func (c *RuntimeConfig) fileCache() artifactcache.Cache {
	if c.cache == nil {
		return nil
	}
	return c.cache.fileCache()
}

// CompilationOptions mirror the per-invocation limits a host passes when
// compiling or reviving a module.
type CompilationOptions struct {
	// GasLimit is the points ceiling applied to instances.
	GasLimit uint64
	// UnmeteredLocals is how many locals each function declares for free.
	UnmeteredLocals int
	// MaxMemoryGrow caps successful memory.grow operations per invocation.
	MaxMemoryGrow uint64
	// MaxMemoryGrowDelta caps the pages one memory.grow may request.
	MaxMemoryGrowDelta uint64
	// OpcodeTrace writes a per-operator trace file during compilation.
	OpcodeTrace bool
	// OpcodeTracePath overrides the tracer's default output path.
	OpcodeTracePath string
}

// DefaultOpcodeTracePath is where the tracer writes when no override is
// configured.
const DefaultOpcodeTracePath = "opcode.trace"

// middlewareChainFactory assembles the instrumentation chain for one
// function: metering first so injected instructions of later middlewares are
// never charged to the guest, then memory-growth control, then the
// breakpoint check after outgoing calls, and the tracer last so it observes
// the stream the generator receives.
func middlewareChainFactory(costs []uint32, opts *CompilationOptions) engine.ChainFactory {
	// One tracer serves the whole compilation: chains are per function, but
	// the trace file covers the module.
	var tracer *middleware.OpcodeTracer
	return func() (*middleware.Chain, error) {
		chain := middleware.NewChain()
		chain.Push(middleware.NewMetering(costs, opts.UnmeteredLocals))
		chain.Push(middleware.NewOpcodeControl(opts.MaxMemoryGrow, opts.MaxMemoryGrowDelta))
		chain.Push(middleware.NewRuntimeBreakpointHandler())
		if opts.OpcodeTrace {
			if tracer == nil {
				path := opts.OpcodeTracePath
				if path == "" {
					path = DefaultOpcodeTracePath
				}
				var err error
				if tracer, err = middleware.NewOpcodeTracer(path); err != nil {
					return nil, err
				}
			}
			chain.Push(tracer)
		}
		return chain, nil
	}
}
