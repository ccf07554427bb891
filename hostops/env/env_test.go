package env

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/testbed"
)

func TestEnvOps(t *testing.T) {
	t.Setenv("OPCORE_TEST_VAR", "alpha")
	cfg := testbed.Config()
	cfg.Permissions.AllowEnv = true
	h := testbed.New(t, cfg, New())

	var v Value
	h.Call("envGet", KeyArgs{Key: "OPCORE_TEST_VAR"}, &v)
	assert.Equal(t, Value{Value: "alpha", Found: true}, v)

	h.Call("envSet", KeyArgs{Key: "OPCORE_TEST_VAR", Value: "beta"}, nil)
	assert.Equal(t, "beta", os.Getenv("OPCORE_TEST_VAR"))

	var all map[string]string
	h.Call("envToObject", nil, &all)
	assert.Equal(t, "beta", all["OPCORE_TEST_VAR"])

	h.Call("envDelete", KeyArgs{Key: "OPCORE_TEST_VAR"}, nil)
	h.Call("envGet", KeyArgs{Key: "OPCORE_TEST_VAR"}, &v)
	assert.False(t, v.Found)

	oe := h.Fail("envSet", KeyArgs{Key: "A=B", Value: "x"})
	assert.Equal(t, errors.ClassTypeMismatch, oe.Class)
}

func TestEnvDenied(t *testing.T) {
	h := testbed.New(t, nil, New())

	for _, op := range []string{"envGet", "envSet", "envDelete"} {
		oe := h.Fail(op, KeyArgs{Key: "HOME"})
		assert.Equal(t, errors.ClassPermissionDenied, oe.Class, op)
	}
	oe := h.Fail("envToObject", nil)
	assert.Equal(t, errors.ClassPermissionDenied, oe.Class)
}
