// Package testbed runs ops end to end through a real isolate. Extension
// tests use it instead of wiring a bridge by hand.
package testbed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcore/bridge"
	"github.com/wippyai/opcore/config"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/runtime"
)

// Timeout bounds every async wait.
var Timeout = 5 * time.Second

// Harness owns one isolate for the duration of a test.
type Harness struct {
	t     testing.TB
	Iso   *runtime.Isolate
	stash map[uint32]bridge.Completion
}

// Config returns a non-interactive default configuration.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Prompt = false
	return cfg
}

// AllowAll returns Config with every capability granted.
func AllowAll() *config.Config {
	cfg := Config()
	cfg.Permissions.AllowAll = true
	return cfg
}

// New builds an isolate with exts. A nil cfg means Config(). Dispatch
// faults fail the test.
func New(t testing.TB, cfg *config.Config, exts ...ops.Extension) *Harness {
	t.Helper()
	if cfg == nil {
		cfg = Config()
	}
	iso, err := runtime.New(runtime.Options{
		Config:     cfg,
		Extensions: exts,
		FaultHandler: func(err *errors.Error) {
			t.Errorf("dispatch fault: %v", err)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = iso.Close() })
	return &Harness{t: t, Iso: iso, stash: make(map[uint32]bridge.Completion)}
}

func (h *Harness) encode(in any) []byte {
	h.t.Helper()
	if in == nil {
		return nil
	}
	if raw, ok := in.(string); ok {
		return []byte(raw)
	}
	data, err := h.Iso.Bridge().Codec().Marshal(in)
	require.NoError(h.t, err)
	return data
}

// Decode unmarshals an op result into out.
func (h *Harness) Decode(data []byte, out any) {
	h.t.Helper()
	if out == nil {
		return
	}
	if h.Iso.Bridge().Codec().Name() == "json" {
		require.NoError(h.t, json.Unmarshal(data, out))
		return
	}
	require.NoError(h.t, h.Iso.Bridge().Codec().Unmarshal(data, out))
}

// Try runs a sync op. in may be a value to encode or a literal control
// string.
func (h *Harness) Try(op string, in any, bufs ...[]byte) ([]byte, error) {
	h.t.Helper()
	return h.Iso.Bridge().InvokeSync(op, h.encode(in), bufs)
}

// Call runs a sync op that must succeed and decodes its result into out.
func (h *Harness) Call(op string, in, out any, bufs ...[]byte) {
	h.t.Helper()
	res, err := h.Try(op, in, bufs...)
	require.NoError(h.t, err, "op %s", op)
	h.Decode(res, out)
}

// Fail runs a sync op that must fail and returns the script-visible error.
func (h *Harness) Fail(op string, in any, bufs ...[]byte) *bridge.OpError {
	h.t.Helper()
	_, err := h.Try(op, in, bufs...)
	require.Error(h.t, err, "op %s", op)
	var oe *bridge.OpError
	require.ErrorAs(h.t, err, &oe)
	return oe
}

// Start dispatches an async op and returns its token.
func (h *Harness) Start(op string, in any, bufs ...[]byte) bridge.Token {
	h.t.Helper()
	tok, err := h.Iso.Bridge().InvokeAsync(op, h.encode(in), bufs)
	require.NoError(h.t, err, "op %s", op)
	return tok
}

// Await waits for the completion of tok, keeping completions of other
// tokens for later.
func (h *Harness) Await(tok bridge.Token) bridge.Completion {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	for {
		if c, ok := h.stash[uint32(tok)]; ok {
			delete(h.stash, uint32(tok))
			return c
		}
		_, err := h.Iso.Tick(func(batch []bridge.Completion) error {
			for _, c := range batch {
				h.stash[c.Token] = c
			}
			return nil
		})
		require.NoError(h.t, err)
		if _, ok := h.stash[uint32(tok)]; ok {
			continue
		}
		require.NoError(h.t, h.Iso.Bridge().Wait(ctx), "waiting for token %d", tok)
	}
}

// Async runs an async op that must succeed and decodes its result.
func (h *Harness) Async(op string, in, out any, bufs ...[]byte) {
	h.t.Helper()
	c := h.Await(h.Start(op, in, bufs...))
	require.True(h.t, c.OK, "op %s rejected: %s", op, c.Payload)
	h.Decode(c.Payload, out)
}

// AsyncFail runs an async op that must be rejected.
func (h *Harness) AsyncFail(op string, in any, bufs ...[]byte) *bridge.OpError {
	h.t.Helper()
	c := h.Await(h.Start(op, in, bufs...))
	require.False(h.t, c.OK, "op %s unexpectedly succeeded", op)
	oe := &bridge.OpError{}
	h.Decode(c.Payload, oe)
	return oe
}
