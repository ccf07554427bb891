package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/permission"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "json", cfg.ControlCodec().Name())
	assert.Equal(t, zapcore.InfoLevel, cfg.Level())
	assert.False(t, cfg.Unstable)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
codec = "cbor"
unstable = true
log_level = "debug"

[permissions]
allow_read = ["/tmp"]
allow_net = ["example.com:443"]
allow_write_all = true
allow_hrtime = true
`))
	require.NoError(t, err)

	assert.Equal(t, "cbor", cfg.ControlCodec().Name())
	assert.True(t, cfg.Unstable)
	assert.True(t, cfg.Prompt, "unset keys keep their defaults")
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())

	perms := permission.New(cfg.PermissionOptions(), nil)
	assert.Equal(t, permission.Granted, perms.Query(permission.ReadPath("/tmp/a")))
	assert.Equal(t, permission.Prompt, perms.Query(permission.ReadPath("/etc")))
	assert.Equal(t, permission.Granted, perms.Query(permission.WritePath("/anything")))
	assert.Equal(t, permission.Granted, perms.Query(permission.NetHost("example.com:443")))
	assert.Equal(t, permission.Granted, perms.Query(permission.Of(permission.Hrtime)))
	assert.Equal(t, permission.Prompt, perms.Query(permission.Of(permission.Run)))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", `codec = `},
		{"unknown codec", `codec = "xml"`},
		{"bad level", `log_level = "loud"`},
		{"unknown key", `colour = "blue"`},
		{"unknown nested key", "[permissions]\nallow_everything = true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.PhaseConfig, e.Phase)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsh.toml")
	require.NoError(t, os.WriteFile(path, []byte("codec = \"cbor\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cbor", cfg.ControlCodec().Name())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
