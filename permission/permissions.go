package permission

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/errors"
)

// Options pre-authorizes capabilities. A scope list containing "" or "*"
// grants the kind for every scope.
type Options struct {
	AllowRead   []string
	AllowWrite  []string
	AllowNet    []string
	AllowAll    bool
	AllowEnv    bool
	AllowRun    bool
	AllowHrtime bool
	AllowPlugin bool
}

// unit is the state machine for one capability kind. The global state
// answers unscoped descriptors; granted and denied hold narrower scopes.
// For a scoped query the most specific matching scope decides, a denial
// winning ties, and the global state answers when nothing matches.
type unit struct {
	granted []string
	denied  []string
	global  State
}

func (u *unit) query(kind Kind, scope string) State {
	if !kind.Scoped() || scope == "" {
		return u.global
	}

	best := -1
	state := u.global
	for _, g := range u.granted {
		if covers(kind, g, scope) && len(g) > best {
			best, state = len(g), Granted
		}
	}
	for _, d := range u.denied {
		if covers(kind, d, scope) && len(d) >= best {
			best, state = len(d), Denied
		}
	}
	return state
}

func (u *unit) grant(kind Kind, scope string) {
	if !kind.Scoped() || scope == "" {
		u.global = Granted
		u.granted = nil
		u.denied = nil
		return
	}
	u.denied = dropCovered(kind, u.denied, scope)
	for _, g := range u.granted {
		if covers(kind, g, scope) {
			return
		}
	}
	u.granted = append(dropCovered(kind, u.granted, scope), scope)
}

func (u *unit) deny(kind Kind, scope string) {
	if !kind.Scoped() || scope == "" {
		u.global = Denied
		u.granted = nil
		u.denied = nil
		return
	}
	u.granted = dropCovered(kind, u.granted, scope)
	for _, d := range u.denied {
		if covers(kind, d, scope) {
			return
		}
	}
	u.denied = append(dropCovered(kind, u.denied, scope), scope)
}

func (u *unit) clone() unit {
	return unit{
		global:  u.global,
		granted: append([]string(nil), u.granted...),
		denied:  append([]string(nil), u.denied...),
	}
}

// dropCovered removes every entry that scope covers.
func dropCovered(kind Kind, list []string, scope string) []string {
	out := list[:0]
	for _, s := range list {
		if !covers(kind, scope, s) {
			out = append(out, s)
		}
	}
	return out
}

// Permissions is the permission gate for one isolate. States only move
// Prompt→Granted through Grant or an accepted prompt, and only move to
// Denied through Revoke or a rejected prompt.
type Permissions struct {
	prompter Prompter
	units    [numKinds]unit
	mu       sync.Mutex
	promptMu sync.Mutex
}

// New creates a gate with every kind in Prompt state, then applies opts.
func New(opts Options, prompter Prompter) *Permissions {
	if prompter == nil {
		prompter = NoPrompt{}
	}
	p := &Permissions{prompter: prompter}
	for i := range p.units {
		p.units[i].global = Prompt
	}
	p.apply(opts)
	return p
}

// AllowAll creates a gate with every capability granted.
func AllowAll() *Permissions {
	return New(Options{AllowAll: true}, nil)
}

func (p *Permissions) apply(opts Options) {
	if opts.AllowAll {
		for i := range p.units {
			p.units[i].grant(Kind(i), "")
		}
		return
	}
	scoped := []struct {
		kind  Kind
		list  []string
		build func(string) Descriptor
	}{
		{Read, opts.AllowRead, ReadPath},
		{Write, opts.AllowWrite, WritePath},
		{Net, opts.AllowNet, NetHost},
	}
	for _, s := range scoped {
		for _, scope := range s.list {
			if scope == "*" {
				scope = ""
			}
			d := s.build(scope)
			p.units[d.Kind].grant(d.Kind, d.Scope)
		}
	}
	flags := []struct {
		kind Kind
		on   bool
	}{
		{Env, opts.AllowEnv},
		{Run, opts.AllowRun},
		{Hrtime, opts.AllowHrtime},
		{Plugin, opts.AllowPlugin},
	}
	for _, f := range flags {
		if f.on {
			p.units[f.kind].grant(f.kind, "")
		}
	}
}

// Query returns the current state of d without side effects.
func (p *Permissions) Query(d Descriptor) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.units[d.Kind].query(d.Kind, d.Scope)
}

// Request resolves d, prompting when the state is Prompt and the prompter
// is interactive. Without an interactive prompter a Prompt state resolves
// to Denied immediately and nothing is recorded.
func (p *Permissions) Request(d Descriptor) State {
	return p.request(d, "")
}

func (p *Permissions) request(d Descriptor, api string) State {
	if st := p.Query(d); st != Prompt {
		return st
	}
	if !p.prompter.Interactive() {
		return Denied
	}

	// One prompt at a time; re-check after waiting since an earlier prompt
	// may have settled this descriptor.
	p.promptMu.Lock()
	defer p.promptMu.Unlock()
	if st := p.Query(d); st != Prompt {
		return st
	}

	allowed := p.prompter.Prompt(d, api)

	p.mu.Lock()
	defer p.mu.Unlock()
	u := &p.units[d.Kind]
	if allowed {
		u.grant(d.Kind, d.Scope)
		Logger().Info("permission granted by prompt", zap.Stringer("descriptor", d))
		return Granted
	}
	u.deny(d.Kind, d.Scope)
	Logger().Info("permission denied by prompt", zap.Stringer("descriptor", d))
	return Denied
}

// Grant pre-authorizes d and every narrower scope under it.
func (p *Permissions) Grant(d Descriptor) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units[d.Kind].grant(d.Kind, d.Scope)
	Logger().Info("permission granted", zap.Stringer("descriptor", d))
	return p.units[d.Kind].query(d.Kind, d.Scope)
}

// Revoke forces d to Denied, together with every narrower grant under it.
// Grants for unrelated scopes are kept.
func (p *Permissions) Revoke(d Descriptor) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units[d.Kind].deny(d.Kind, d.Scope)
	Logger().Info("permission revoked", zap.Stringer("descriptor", d))
	return p.units[d.Kind].query(d.Kind, d.Scope)
}

// Check is used by ops before touching the native world. It prompts when
// allowed to and returns a PermissionDenied error naming api otherwise.
func (p *Permissions) Check(d Descriptor, api string) error {
	if p.request(d, api) == Granted {
		return nil
	}
	target := api
	if target == "" {
		target = d.Scope
	}
	return errors.PermissionDenied(d.Kind.String(), target)
}

// CheckRead checks read access to path.
func (p *Permissions) CheckRead(path, api string) error {
	return p.Check(ReadPath(path), api)
}

// CheckWrite checks write access to path.
func (p *Permissions) CheckWrite(path, api string) error {
	return p.Check(WritePath(path), api)
}

// CheckNet checks network access to host:port.
func (p *Permissions) CheckNet(hostport, api string) error {
	return p.Check(NetHost(hostport), api)
}

// CheckKind checks an unscoped capability.
func (p *Permissions) CheckKind(kind Kind, api string) error {
	return p.Check(Of(kind), api)
}

// Clone returns an independent copy sharing the prompter.
func (p *Permissions) Clone() *Permissions {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &Permissions{prompter: p.prompter}
	for i := range p.units {
		c.units[i] = p.units[i].clone()
	}
	return c
}

// Narrow builds a child gate from opts for a sub-context. Every grant in
// opts must already be granted here; a child can never escalate. The child
// cannot prompt.
func (p *Permissions) Narrow(opts Options) (*Permissions, error) {
	child := New(opts, NoPrompt{})
	for _, kind := range Kinds() {
		u := &child.units[kind]
		var wanted []Descriptor
		if u.global == Granted {
			wanted = append(wanted, Of(kind))
		}
		for _, s := range u.granted {
			wanted = append(wanted, Descriptor{Kind: kind, Scope: s})
		}
		for _, d := range wanted {
			if p.Query(d) != Granted {
				return nil, errors.New(errors.PhasePermission, errors.KindPermissionDenied).
					Detail("cannot grant %s to a sub-context without holding it", d).
					Build()
			}
		}
		if u.global == Prompt {
			u.global = Denied
		}
	}
	return child, nil
}

// Snapshot returns the unscoped state of every kind, for diagnostics.
func (p *Permissions) Snapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, numKinds)
	for i := range p.units {
		out[Kind(i).String()] = p.units[i].global.String()
	}
	return out
}
