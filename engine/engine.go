package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per plugin in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Engine compiles and instantiates plugins. One engine serves one isolate.
type Engine struct {
	runtime wazero.Runtime
	mu      sync.Mutex
	closed  bool
}

// New creates an engine.
func New(ctx context.Context, cfg *Config) *Engine {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

// Close releases the runtime and every plugin loaded from it.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.runtime.Close(ctx)
}

func isComponent(data []byte) bool {
	if len(data) < 8 || string(data[:4]) != "\x00asm" {
		return false
	}
	return binary.LittleEndian.Uint32(data[4:8]) > 1
}

// Load compiles and instantiates a plugin. name is only used in errors
// and logs.
func (e *Engine) Load(ctx context.Context, name string, wasm []byte) (*Plugin, error) {
	if isComponent(wasm) {
		return nil, errors.NotSupported(errors.PhasePlugin, "component binaries are not supported as plugins")
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.Generic(errors.PhasePlugin, "engine closed", nil)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhasePlugin, errors.KindInvalidInput, err, "compile "+name)
	}
	if imports := compiled.ImportedFunctions(); len(imports) > 0 {
		mod, fn, _ := imports[0].Import()
		compiled.Close(ctx)
		return nil, errors.NotSupported(errors.PhasePlugin, fmt.Sprintf("plugin %s imports %s.%s; plugins cannot import host functions", name, mod, fn))
	}

	// anonymous, so one plugin can be loaded more than once
	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhasePlugin, errors.KindGeneric, err, "instantiate "+name)
	}

	p := &Plugin{name: name, compiled: compiled, module: mod, exports: make(map[string]Export)}
	for fnName, def := range compiled.ExportedFunctions() {
		exp, ok := describe(fnName, def)
		if !ok {
			continue
		}
		p.exports[fnName] = exp
	}

	Logger().Debug("plugin loaded", zap.String("plugin", name), zap.Int("exports", len(p.exports)))
	return p, nil
}

// Export describes one callable export.
type Export struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

// Signature renders the export in WIT syntax, e.g. "func(s32, s32) -> s32".
func (x Export) Signature() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range x.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(witTypeStr(p))
	}
	b.WriteByte(')')
	switch len(x.Results) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(witTypeStr(x.Results[0]))
	default:
		b.WriteString(" -> tuple<")
		for i, r := range x.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(witTypeStr(r))
		}
		b.WriteByte('>')
	}
	return b.String()
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func witType(vt api.ValueType) (wit.Type, bool) {
	switch vt {
	case api.ValueTypeI32:
		return wit.S32{}, true
	case api.ValueTypeI64:
		return wit.S64{}, true
	case api.ValueTypeF32:
		return wit.F32{}, true
	case api.ValueTypeF64:
		return wit.F64{}, true
	}
	return nil, false
}

func describe(name string, def api.FunctionDefinition) (Export, bool) {
	exp := Export{Name: name}
	for _, vt := range def.ParamTypes() {
		t, ok := witType(vt)
		if !ok {
			return Export{}, false
		}
		exp.Params = append(exp.Params, t)
	}
	for _, vt := range def.ResultTypes() {
		t, ok := witType(vt)
		if !ok {
			return Export{}, false
		}
		exp.Results = append(exp.Results, t)
	}
	return exp, true
}

// Plugin is an instantiated plugin.
type Plugin struct {
	compiled wazero.CompiledModule
	module   api.Module
	exports  map[string]Export
	name     string
	mu       sync.Mutex
}

// Name returns the name the plugin was loaded under.
func (p *Plugin) Name() string { return p.name }

// Exports returns the callable exports sorted by name.
func (p *Plugin) Exports() []Export {
	out := make([]Export, 0, len(p.exports))
	for _, e := range p.exports {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes an export. A cancelled ctx aborts a running call and
// leaves the plugin closed.
func (p *Plugin) Call(ctx context.Context, fn string, args ...uint64) ([]uint64, error) {
	exp, ok := p.exports[fn]
	if !ok {
		return nil, errors.NotFound(errors.PhasePlugin, "export", fn)
	}
	if len(args) != len(exp.Params) {
		return nil, errors.TypeMismatch(errors.PhasePlugin, []string{"args"},
			fmt.Sprintf("%s expects %d arguments, got %d", exp.Signature(), len(exp.Params), len(args)))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.module == nil {
		return nil, errors.Generic(errors.PhasePlugin, "plugin "+p.name+" is closed", nil)
	}
	res, err := p.module.ExportedFunction(fn).Call(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(errors.PhasePlugin, errors.KindGeneric, err, "call "+p.name+"."+fn)
	}
	return res, nil
}

// Close releases the instance and its compiled code.
func (p *Plugin) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.module == nil {
		return nil
	}
	err := p.module.Close(ctx)
	if cerr := p.compiled.Close(ctx); err == nil {
		err = cerr
	}
	p.module = nil
	return err
}
