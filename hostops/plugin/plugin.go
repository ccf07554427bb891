// Package plugin loads WebAssembly plugins from disk and calls their
// exports. Loading requires both the plugin permission and read access to
// the file.
package plugin

import (
	"context"
	"os"
	"path/filepath"

	"github.com/wippyai/opcore/engine"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/hostops"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/resource"
)

// Plugin is a loaded plugin in the resource table. Its context ends when
// the rid is closed and aborts any running call.
type Plugin struct {
	p      *engine.Plugin
	ctx    context.Context
	cancel context.CancelFunc
}

func newPlugin(p *engine.Plugin) *Plugin {
	ctx, cancel := context.WithCancel(context.Background())
	return &Plugin{p: p, ctx: ctx, cancel: cancel}
}

func (p *Plugin) Name() string { return "plugin" }

func (p *Plugin) Close() error {
	p.cancel()
	return p.p.Close(context.Background())
}

// CancelPending aborts a running call.
func (p *Plugin) CancelPending() { p.cancel() }

// Extension provides the plugin ops. It owns the engine every plugin of
// the isolate runs on.
type Extension struct {
	engine *engine.Engine
}

// New creates the extension and its engine.
func New(cfg *engine.Config) *Extension {
	return &Extension{engine: engine.New(context.Background(), cfg)}
}

func (*Extension) Name() string { return "plugin" }

// Close shuts the engine down.
func (e *Extension) Close() error {
	return e.engine.Close(context.Background())
}

func (e *Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Sync("openPlugin", e.open),
		ops.Async("pluginCall", call),
	}
}

// OpenArgs names the plugin file.
type OpenArgs struct {
	Path string `json:"path" cbor:"path"`
}

// ExportInfo describes one callable export.
type ExportInfo struct {
	Name      string `json:"name" cbor:"name"`
	Signature string `json:"signature" cbor:"signature"`
}

// Opened is the result of openPlugin.
type Opened struct {
	Exports []ExportInfo `json:"exports" cbor:"exports"`
	RID     resource.ID  `json:"rid" cbor:"rid"`
}

func (e *Extension) open(st *opstate.State, in OpenArgs) (Opened, error) {
	if in.Path == "" {
		return Opened{}, errors.TypeMismatch(errors.PhaseDecode, []string{"path"}, "path is required")
	}
	path, err := filepath.Abs(in.Path)
	if err != nil {
		return Opened{}, hostops.OSError("openPlugin", err)
	}
	perms := st.Permissions()
	if err := perms.CheckKind(permission.Plugin, "openPlugin"); err != nil {
		return Opened{}, err
	}
	if err := perms.CheckRead(path, "openPlugin"); err != nil {
		return Opened{}, err
	}

	wasm, err := os.ReadFile(path)
	if err != nil {
		return Opened{}, hostops.OSError("openPlugin", err)
	}
	p, err := e.engine.Load(context.Background(), filepath.Base(path), wasm)
	if err != nil {
		return Opened{}, err
	}

	rid, err := hostops.Add(st, newPlugin(p))
	if err != nil {
		p.Close(context.Background())
		return Opened{}, err
	}

	out := Opened{RID: rid}
	for _, x := range p.Exports() {
		out.Exports = append(out.Exports, ExportInfo{Name: x.Name, Signature: x.Signature()})
	}
	return out, nil
}

// CallArgs invokes Fn with raw numeric arguments.
type CallArgs struct {
	Fn   string      `json:"fn" cbor:"fn"`
	Args []uint64    `json:"args" cbor:"args"`
	RID  resource.ID `json:"rid" cbor:"rid"`
}

// Results is the result of pluginCall.
type Results struct {
	Results []uint64 `json:"results" cbor:"results"`
}

func call(st *opstate.State, in CallArgs) (ops.TypedFuture[Results], error) {
	lease, err := hostops.Lease[*Plugin](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, _ *opstate.Cell) (Results, error) {
		defer lease.Release()

		pl := lease.Value
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(pl.ctx, cancel)
		defer stop()

		res, err := pl.p.Call(ctx, in.Fn, in.Args...)
		if err != nil {
			if pl.ctx.Err() != nil {
				return Results{}, errors.New(errors.PhaseResource, errors.KindBadResource).
					Op("pluginCall").
					Value(uint32(in.RID)).
					Detail("plugin %d closed during call to %s", in.RID, in.Fn).
					Cause(err).
					Build()
			}
			return Results{}, err
		}
		return Results{Results: res}, nil
	}, nil
}
