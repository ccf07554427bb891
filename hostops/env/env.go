// Package env provides access to the host process environment, gated by
// the env permission.
package env

import (
	"os"
	"strings"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/permission"
)

// Extension provides the env ops.
type Extension struct{}

// New creates the extension.
func New() *Extension { return &Extension{} }

func (*Extension) Name() string { return "env" }

func (*Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Sync("envGet", get),
		ops.Sync("envSet", set),
		ops.Sync("envDelete", unset),
		ops.Sync("envToObject", toObject),
	}
}

// KeyArgs names a variable.
type KeyArgs struct {
	Key   string `json:"key" cbor:"key"`
	Value string `json:"value,omitempty" cbor:"value,omitempty"`
}

// Value is the result of envGet.
type Value struct {
	Value string `json:"value" cbor:"value"`
	Found bool   `json:"found" cbor:"found"`
}

func checkKey(st *opstate.State, key, api string) error {
	if key == "" || strings.ContainsAny(key, "=\x00") {
		return errors.TypeMismatch(errors.PhaseDecode, []string{"key"}, "invalid environment variable name "+key)
	}
	return st.Permissions().CheckKind(permission.Env, api)
}

func get(st *opstate.State, in KeyArgs) (Value, error) {
	if err := checkKey(st, in.Key, "envGet"); err != nil {
		return Value{}, err
	}
	v, ok := os.LookupEnv(in.Key)
	return Value{Value: v, Found: ok}, nil
}

func set(st *opstate.State, in KeyArgs) (ops.Empty, error) {
	if err := checkKey(st, in.Key, "envSet"); err != nil {
		return ops.Empty{}, err
	}
	if strings.ContainsRune(in.Value, 0) {
		return ops.Empty{}, errors.TypeMismatch(errors.PhaseDecode, []string{"value"}, "value contains a NUL byte")
	}
	if err := os.Setenv(in.Key, in.Value); err != nil {
		return ops.Empty{}, errors.Wrap(errors.PhaseHost, errors.KindGeneric, err, "envSet")
	}
	return ops.Empty{}, nil
}

func unset(st *opstate.State, in KeyArgs) (ops.Empty, error) {
	if err := checkKey(st, in.Key, "envDelete"); err != nil {
		return ops.Empty{}, err
	}
	if err := os.Unsetenv(in.Key); err != nil {
		return ops.Empty{}, errors.Wrap(errors.PhaseHost, errors.KindGeneric, err, "envDelete")
	}
	return ops.Empty{}, nil
}

func toObject(st *opstate.State, _ ops.Empty) (map[string]string, error) {
	if err := st.Permissions().CheckKind(permission.Env, "envToObject"); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			out[k] = v
		}
	}
	return out, nil
}
