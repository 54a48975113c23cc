package engine

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/multiversx/wasmer/internal/artifact"
	"github.com/multiversx/wasmer/internal/artifactcache"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/wasm"
)

// DefaultModuleCacheSize bounds the in-memory compiled-module registry.
// Hosts whose working set exceeds it re-load evicted modules from the
// artifact cache.
const DefaultModuleCacheSize = 256

// ChainFactory builds a fresh middleware chain for one function compilation.
// Middlewares are stateful per function, so every function gets new ones.
type ChainFactory func() (*middleware.Chain, error)

// CompiledModule pairs an artifact with its executable form.
type CompiledModule struct {
	ID       artifactcache.Key
	Artifact *artifact.Artifact
	Runtime  ModuleRuntime
}

// Engine compiles, caches and instantiates modules against one backend.
// Compilation and cache access are safe for concurrent use for distinct
// modules.
type Engine struct {
	frontend Frontend
	backend  Backend

	mux     sync.Mutex
	modules *lru.Cache

	fileCache artifactcache.Cache
	version   string

	log *logrus.Entry
}

// New returns an engine. fileCache may be nil to disable persistence.
func New(frontend Frontend, backend Backend, fileCache artifactcache.Cache, version string) (*Engine, error) {
	e := &Engine{
		frontend:  frontend,
		backend:   backend,
		fileCache: fileCache,
		version:   version,
		log:       logrus.WithField("component", "engine"),
	}
	modules, err := lru.NewWithEvict(DefaultModuleCacheSize, func(_, v interface{}) {
		cm := v.(*CompiledModule)
		if err := cm.Artifact.Close(); err != nil {
			logrus.WithError(err).Warn("releasing evicted compiled module")
		}
	})
	if err != nil {
		return nil, err
	}
	e.modules = modules
	return e, nil
}

// Close releases every in-memory compiled module.
func (e *Engine) Close() error {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.modules.Purge()
	return nil
}

// CompiledModuleCount returns the number of in-memory compiled modules.
func (e *Engine) CompiledModuleCount() int {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.modules.Len()
}

// Compile returns the compiled form of wasmBytes, going through the
// in-memory registry, then the artifact cache, then a fresh compilation with
// chains built by chainFactory.
func (e *Engine) Compile(wasmBytes []byte, chainFactory ChainFactory) (*CompiledModule, error) {
	key := artifactcache.HashWasm(wasmBytes)

	if cm, ok := e.getFromMemory(key); ok {
		return cm, nil
	}
	cm, hit, err := e.getFromFileCache(key)
	if err != nil {
		e.log.WithError(err).Warn("artifact cache read failed, recompiling")
	} else if hit {
		e.addToMemory(key, cm)
		return cm, nil
	}

	cm, err = e.compile(wasmBytes, key, chainFactory)
	if err != nil {
		return nil, err
	}
	e.addToMemory(key, cm)
	if err := e.addToFileCache(key, cm); err != nil {
		e.log.WithError(err).Warn("artifact cache write failed")
	}
	return cm, nil
}

func (e *Engine) compile(wasmBytes []byte, key artifactcache.Key, chainFactory ChainFactory) (*CompiledModule, error) {
	info, functions, err := e.frontend.Parse(wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid module: %w", err)
	}
	info.Backend = e.backend.Name()

	gen, err := e.backend.NewModuleGenerator(info)
	if err != nil {
		return nil, fmt.Errorf("backend failure: %w", err)
	}
	for i := range functions {
		chain, err := chainFactory()
		if err != nil {
			return nil, err
		}
		if err = streamFunction(chain, &functions[i], info, gen); err != nil {
			return nil, err
		}
	}
	metadata, code, err := gen.Finalize()
	if err != nil {
		return nil, fmt.Errorf("backend failure: %w", err)
	}

	a := artifact.FromParts(info, metadata, code)
	runtime, err := e.backend.Load(a)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("backend failure: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"functions": len(functions),
		"code":      code.ContentSize(),
	}).Debug("compiled module")
	return &CompiledModule{ID: key, Artifact: a, Runtime: runtime}, nil
}

// LoadSerialized reconstructs a compiled module from cache bytes produced by
// SerializeModule (or any conforming producer).
func (e *Engine) LoadSerialized(buffer []byte) (*CompiledModule, error) {
	a, err := artifact.Deserialize(buffer)
	if err != nil {
		return nil, err
	}
	if a.Info.Backend != e.backend.Name() {
		_ = a.Close()
		return nil, &artifact.UnsupportedBackendError{Backend: a.Info.Backend}
	}
	runtime, err := e.backend.Load(a)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("backend failure: %w", err)
	}
	return &CompiledModule{Artifact: a, Runtime: runtime}, nil
}

// SerializeModule returns the artifact bytes of a compiled module.
func (e *Engine) SerializeModule(cm *CompiledModule) ([]byte, error) {
	return cm.Artifact.Serialize()
}

// Instantiate creates an instance of cm bound to imports. The internal-field
// array is sized to the process-global field registry.
func (e *Engine) Instantiate(cm *CompiledModule, imports *ImportObject) (*wasm.Instance, error) {
	info := cm.Artifact.Info
	ins := wasm.NewInstance(info, middleware.FieldCount())

	for _, imp := range info.ImportedMemories {
		m, ok := imports.Memories[imp.Name]
		if !ok {
			return nil, fmt.Errorf("missing imported memory %s.%s", imp.Name.Module, imp.Name.Name)
		}
		ins.Memories = append(ins.Memories, m)
	}
	for _, desc := range info.Memories {
		ins.Memories = append(ins.Memories, wasm.NewMemoryInstance(desc))
	}

	for _, imp := range info.ImportedTables {
		t, ok := imports.Tables[imp.Name]
		if !ok {
			return nil, fmt.Errorf("missing imported table %s.%s", imp.Name.Module, imp.Name.Name)
		}
		ins.Tables = append(ins.Tables, t)
	}
	for _, desc := range info.Tables {
		ins.Tables = append(ins.Tables, wasm.NewTableInstance(desc))
	}

	for _, imp := range info.ImportedGlobals {
		g, ok := imports.Globals[imp.Name]
		if !ok {
			return nil, fmt.Errorf("missing imported global %s.%s", imp.Name.Module, imp.Name.Name)
		}
		ins.Globals = append(ins.Globals, g)
	}
	for i := range info.Globals {
		v, err := info.Globals[i].Init.Evaluate(ins)
		if err != nil {
			return nil, err
		}
		ins.Globals = append(ins.Globals, &wasm.GlobalInstance{Desc: info.Globals[i].Desc, Val: v})
	}

	for i := range info.ElemInitializers {
		seg := &info.ElemInitializers[i]
		if seg.Passive {
			ins.PassiveElements[uint32(i)] = seg.FuncIndices
			continue
		}
		if err := ins.ApplyElemInitializer(seg); err != nil {
			return nil, err
		}
	}
	for i := range info.DataInitializers {
		seg := &info.DataInitializers[i]
		if seg.Passive {
			ins.PassiveData[uint32(i)] = seg.Data
			continue
		}
		base, err := seg.Base.Evaluate(ins)
		if err != nil {
			return nil, err
		}
		if err = ins.Memories[seg.MemoryIndex].Write(uint32(base), seg.Data); err != nil {
			return nil, err
		}
	}

	if err := cm.Runtime.Bind(ins, imports); err != nil {
		return nil, err
	}
	return ins, nil
}

func (e *Engine) getFromMemory(key artifactcache.Key) (*CompiledModule, bool) {
	e.mux.Lock()
	defer e.mux.Unlock()
	if v, ok := e.modules.Get(key); ok {
		return v.(*CompiledModule), true
	}
	return nil, false
}

func (e *Engine) addToMemory(key artifactcache.Key, cm *CompiledModule) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.modules.Add(key, cm)
}

// File-cache entries carry a version envelope ahead of the artifact bytes so
// caches written by another runtime version are purged rather than loaded.

func (e *Engine) addToFileCache(key artifactcache.Key, cm *CompiledModule) error {
	if e.fileCache == nil {
		return nil
	}
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(byte(len(e.version)))
	buf.WriteString(e.version)
	artifactBytes, err := cm.Artifact.Serialize()
	if err != nil {
		return err
	}
	buf.Write(artifactBytes)
	return e.fileCache.Add(key, bytes.NewReader(buf.Bytes()))
}

func (e *Engine) getFromFileCache(key artifactcache.Key) (cm *CompiledModule, hit bool, err error) {
	if e.fileCache == nil {
		return nil, false, nil
	}
	content, hit, err := e.fileCache.Get(key)
	if !hit || err != nil {
		return nil, false, err
	}
	defer content.Close()

	all, err := io.ReadAll(content)
	if err != nil {
		return nil, false, err
	}
	if len(all) < 1 || len(all) < 1+int(all[0]) {
		return nil, false, e.fileCache.Delete(key)
	}
	if string(all[1:1+all[0]]) != e.version {
		// Stale cache from another runtime version.
		return nil, false, e.fileCache.Delete(key)
	}
	cm, err = e.LoadSerialized(all[1+all[0]:])
	if err != nil {
		return nil, false, err
	}
	cm.ID = key
	e.log.Debug("artifact cache hit")
	return cm, true, nil
}
