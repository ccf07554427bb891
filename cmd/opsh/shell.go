package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/opcore/bridge"
	"github.com/wippyai/opcore/codec"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/runtime"
)

// drainTimeout bounds a drain that waits on calls which never finish.
const drainTimeout = 30 * time.Second

type command struct {
	verb    string
	op      string
	control string
	data    []byte
	hasData bool
}

// parseLine splits one script line. ok is false for blank lines and
// comments.
func parseLine(line string) (cmd command, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return command{}, false, nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	cmd.verb = verb
	switch verb {
	case "drain", "resources", "metrics":
		if strings.TrimSpace(rest) != "" {
			return command{}, false, fmt.Errorf("%s takes no arguments", verb)
		}
		return cmd, true, nil
	case "sync", "async":
	default:
		return command{}, false, fmt.Errorf("unknown command %q", verb)
	}

	op, rest, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if op == "" {
		return command{}, false, fmt.Errorf("%s needs an op name", verb)
	}
	cmd.op = op
	if i := strings.LastIndex(rest, " | "); i >= 0 {
		cmd.data = []byte(rest[i+3:])
		cmd.hasData = true
		rest = rest[:i]
	}
	cmd.control = strings.TrimSpace(rest)
	return cmd, true, nil
}

type shell struct {
	iso   *runtime.Isolate
	codec codec.Codec
}

func newShell(iso *runtime.Isolate) *shell {
	return &shell{iso: iso, codec: iso.Bridge().Codec()}
}

// exec runs one command and returns the lines it printed. A returned
// error means the script cannot continue.
func (s *shell) exec(ctx context.Context, cmd command) ([]string, error) {
	switch cmd.verb {
	case "drain":
		return s.drain(ctx)
	case "resources":
		return s.resources(), nil
	case "metrics":
		return s.metrics(), nil
	}

	control, err := encodeControl(s.codec, cmd.control)
	if err != nil {
		return nil, err
	}
	var buffers [][]byte
	if cmd.hasData {
		buffers = [][]byte{cmd.data}
	}

	b := s.iso.Bridge()
	if cmd.verb == "async" {
		tok, err := b.InvokeAsync(cmd.op, control, buffers)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("[%d] %s started", tok, cmd.op)}, nil
	}

	out, err := b.InvokeSync(cmd.op, control, buffers)
	var oe *bridge.OpError
	switch {
	case stderrors.As(err, &oe):
		return []string{fmt.Sprintf("%s: error %s", cmd.op, oe)}, nil
	case err != nil:
		return nil, err
	}
	return []string{fmt.Sprintf("%s: %s", cmd.op, display(s.codec, out))}, nil
}

// poll delivers what is ready without waiting.
func (s *shell) poll() ([]string, error) {
	var lines []string
	_, err := s.iso.Tick(s.collect(&lines))
	return lines, err
}

func (s *shell) drain(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	var lines []string
	err := s.iso.RunEventLoop(ctx, s.collect(&lines))
	return lines, err
}

func (s *shell) collect(lines *[]string) runtime.DeliverFunc {
	return func(batch []bridge.Completion) error {
		for _, c := range batch {
			status := "ok"
			if !c.OK {
				var oe bridge.OpError
				if err := s.codec.Unmarshal(c.Payload, &oe); err == nil {
					*lines = append(*lines, fmt.Sprintf("[%d] error %s", c.Token, &oe))
					continue
				}
				status = "error"
			}
			*lines = append(*lines, fmt.Sprintf("[%d] %s %s", c.Token, status, display(s.codec, c.Payload)))
		}
		return nil
	}
}

func (s *shell) resources() []string {
	entries := s.iso.Resources().Entries()
	if len(entries) == 0 {
		return []string{"no open resources"}
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%4d  %s", e.ID, e.Name))
	}
	return lines
}

func (s *shell) metrics() []string {
	m := s.iso.Metrics().Snapshot()
	lines := []string{fmt.Sprintf("dispatched %d, completed %d, pending %d",
		m.OpsDispatched, m.OpsCompleted, m.Pending())}
	for _, op := range s.iso.Metrics().SnapshotOps() {
		lines = append(lines, fmt.Sprintf("  %-16s %d/%d", op.Name, op.Completed, op.Dispatched))
	}
	return lines
}

// encodeControl converts a JSON control payload to the isolate's codec.
func encodeControl(c codec.Codec, text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	if !json.Valid([]byte(text)) {
		return nil, errors.InvalidInput(errors.PhaseDecode, "control payload is not valid JSON")
	}
	if c.Name() == "json" {
		return []byte(text), nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return c.Marshal(normalize(v))
}

// normalize turns json.Number into int64 where exact so integer fields
// decode on the op side.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
	}
	return v
}

func display(c codec.Codec, data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	if c.Name() == "cbor" {
		if diag, err := cbor.Diagnose(data); err == nil {
			return diag
		}
		return fmt.Sprintf("%x", data)
	}
	return string(data)
}
