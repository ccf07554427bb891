// Package builtins provides the administrative ops every isolate carries:
// permission inspection, resource listing and closing, and metrics.
package builtins

import (
	"github.com/wippyai/opcore/metrics"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/resource"
)

// Extension registers the administrative ops.
type Extension struct {
	// Unstable exposes the per-op metrics breakdown.
	Unstable bool
}

// New creates the extension.
func New(unstable bool) *Extension {
	return &Extension{Unstable: unstable}
}

func (e *Extension) Name() string { return "builtins" }

func (e *Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Sync("queryPermission", permissionOp(func(p *permission.Permissions, d permission.Descriptor) permission.State {
			return p.Query(d)
		})),
		ops.Sync("requestPermission", permissionOp(func(p *permission.Permissions, d permission.Descriptor) permission.State {
			return p.Request(d)
		})),
		ops.Sync("revokePermission", permissionOp(func(p *permission.Permissions, d permission.Descriptor) permission.State {
			return p.Revoke(d)
		})),
		ops.Sync("listResources", listResources),
		ops.Sync("resources", listResources),
		ops.Sync("close", closeResource),
		ops.Sync("metrics", e.metrics),
	}
}

// PermissionArgs names a descriptor the way scripts do.
type PermissionArgs struct {
	Name string `json:"name" cbor:"name"`
	URL  string `json:"url,omitempty" cbor:"url,omitempty"`
	Path string `json:"path,omitempty" cbor:"path,omitempty"`
}

// PermissionResult reports a descriptor state.
type PermissionResult struct {
	State string `json:"state" cbor:"state"`
}

func permissionOp(fn func(*permission.Permissions, permission.Descriptor) permission.State) func(*opstate.State, PermissionArgs) (PermissionResult, error) {
	return func(st *opstate.State, in PermissionArgs) (PermissionResult, error) {
		d, err := permission.Parse(in.Name, in.URL, in.Path)
		if err != nil {
			return PermissionResult{}, err
		}
		return PermissionResult{State: fn(st.Permissions(), d).String()}, nil
	}
}

func listResources(st *opstate.State, _ ops.Empty) (map[resource.ID]string, error) {
	entries := st.Resources().Entries()
	out := make(map[resource.ID]string, len(entries))
	for _, e := range entries {
		out[e.ID] = e.Name
	}
	return out, nil
}

// CloseArgs names the resource to close.
type CloseArgs struct {
	RID resource.ID `json:"rid" cbor:"rid"`
}

func closeResource(st *opstate.State, in CloseArgs) (ops.Empty, error) {
	return ops.Empty{}, st.Resources().Close(in.RID)
}

// MetricsResult is the metrics op result. Ops is only filled when the
// extension is unstable.
type MetricsResult struct {
	metrics.Snapshot
	Ops []metrics.OpSnapshot `json:"ops,omitempty" cbor:"ops,omitempty"`
}

func (e *Extension) metrics(st *opstate.State, _ ops.Empty) (MetricsResult, error) {
	m := st.Metrics()
	res := MetricsResult{Snapshot: m.Snapshot()}
	if e.Unstable {
		res.Ops = m.SnapshotOps()
	}
	return res, nil
}
