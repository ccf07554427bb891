package permission

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/wippyai/opcore/errors"
)

// Kind is a capability class.
type Kind uint8

const (
	Read Kind = iota
	Write
	Net
	Env
	Run
	Hrtime
	Plugin
	numKinds
)

var kindNames = [numKinds]string{"read", "write", "net", "env", "run", "hrtime", "plugin"}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Scoped reports whether descriptors of this kind carry a scope.
func (k Kind) Scoped() bool {
	return k == Read || k == Write || k == Net
}

// Kinds returns every capability kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind resolves a script-facing permission name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, errors.TypeMismatch(errors.PhasePermission, []string{"name"}, "unknown permission name "+quote(name))
}

// State is the outcome of a permission query.
type State uint8

const (
	Granted State = iota
	Prompt
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Prompt:
		return "prompt"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Descriptor names one capability, optionally narrowed to a path (read,
// write) or a host with optional port (net). Scope is ignored for other
// kinds. Build descriptors with the constructors so scopes are normalized.
type Descriptor struct {
	Scope string
	Kind  Kind
}

func (d Descriptor) String() string {
	if d.Scope == "" {
		return d.Kind.String()
	}
	return d.Kind.String() + " " + quote(d.Scope)
}

// ReadPath describes read access to path ("" means all paths).
func ReadPath(path string) Descriptor {
	return Descriptor{Kind: Read, Scope: normalizePath(path)}
}

// WritePath describes write access to path ("" means all paths).
func WritePath(path string) Descriptor {
	return Descriptor{Kind: Write, Scope: normalizePath(path)}
}

// NetHost describes network access to host or host:port ("" means any host).
func NetHost(host string) Descriptor {
	return Descriptor{Kind: Net, Scope: strings.ToLower(host)}
}

// Of builds an unscoped descriptor.
func Of(kind Kind) Descriptor {
	return Descriptor{Kind: kind}
}

// Parse builds a descriptor from the script-facing triple used by the
// permission ops. url is honored for net, path for read and write.
func Parse(name, rawURL, path string) (Descriptor, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return Descriptor{}, err
	}
	switch kind {
	case Read:
		return ReadPath(path), nil
	case Write:
		return WritePath(path), nil
	case Net:
		if rawURL == "" {
			return NetHost(""), nil
		}
		host, err := NetScope(rawURL)
		if err != nil {
			return Descriptor{}, err
		}
		return NetHost(host), nil
	}
	return Of(kind), nil
}

// NetScope extracts "host" or "host:port" from a URL or a bare host[:port].
func NetScope(raw string) (string, error) {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", errors.Wrap(errors.PhasePermission, errors.KindTypeMismatch, err, "invalid url")
		}
		if u.Host == "" {
			return "", errors.TypeMismatch(errors.PhasePermission, []string{"url"}, "url has no host")
		}
		return strings.ToLower(u.Host), nil
	}
	if raw == "" {
		return "", errors.TypeMismatch(errors.PhasePermission, []string{"url"}, "empty host")
	}
	return strings.ToLower(raw), nil
}

func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// covers reports whether a grant or denial on scope applies to target.
func covers(kind Kind, scope, target string) bool {
	if scope == "" {
		return true
	}
	if kind == Net {
		return coversHost(scope, target)
	}
	if scope == target {
		return true
	}
	if scope == string(filepath.Separator) {
		return strings.HasPrefix(target, scope)
	}
	return strings.HasPrefix(target, scope+string(filepath.Separator))
}

func coversHost(scope, target string) bool {
	if scope == target {
		return true
	}
	sHost, sPort := splitHost(scope)
	tHost, tPort := splitHost(target)
	if sHost != tHost {
		return false
	}
	return sPort == "" || sPort == tPort
}

func splitHost(s string) (host, port string) {
	h, p, err := net.SplitHostPort(s)
	if err != nil {
		return strings.Trim(s, "[]"), ""
	}
	return h, p
}

func quote(s string) string {
	return "\"" + s + "\""
}
