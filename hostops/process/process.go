// Package process exposes process metadata and subprocess spawning.
package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/hostops"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/resource"
)

// waitDelay bounds how long Wait keeps copying output after the child
// exits, in case a grandchild still holds the pipes.
const waitDelay = time.Second

// Child is a spawned subprocess. Closing it kills the process if it is
// still running.
type Child struct {
	cmd      *exec.Cmd
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	err      error
	once     sync.Once
	canceled atomic.Bool
}

func (c *Child) Name() string { return "child" }

func (c *Child) wait() error {
	c.once.Do(func() { c.err = c.cmd.Wait() })
	return c.err
}

// Close kills the process and reaps it. Killing an exited process is a
// no-op.
func (c *Child) Close() error {
	_ = c.cmd.Process.Kill()
	_ = c.wait()
	return nil
}

// CancelPending kills the process so a pending runStatus returns.
func (c *Child) CancelPending() {
	c.canceled.Store(true)
	_ = c.cmd.Process.Kill()
}

// Extension provides the process ops.
type Extension struct{}

// New creates the extension.
func New() *Extension { return &Extension{} }

func (*Extension) Name() string { return "process" }

func (*Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Sync("pid", pid),
		ops.Sync("hostname", hostname),
		ops.Sync("run", run),
		ops.Async("runStatus", status),
	}
}

// PID is the result of pid.
type PID struct {
	PID int `json:"pid" cbor:"pid"`
}

func pid(*opstate.State, ops.Empty) (PID, error) {
	return PID{PID: os.Getpid()}, nil
}

// Hostname is the result of hostname.
type Hostname struct {
	Hostname string `json:"hostname" cbor:"hostname"`
}

func hostname(st *opstate.State, _ ops.Empty) (Hostname, error) {
	if err := st.Permissions().CheckKind(permission.Env, "hostname"); err != nil {
		return Hostname{}, err
	}
	name, err := os.Hostname()
	if err != nil {
		return Hostname{}, hostops.OSError("hostname", err)
	}
	return Hostname{Hostname: name}, nil
}

// RunArgs describes a subprocess. Env entries are added to the inherited
// environment.
type RunArgs struct {
	Env   map[string]string `json:"env,omitempty" cbor:"env,omitempty"`
	Cmd   string            `json:"cmd" cbor:"cmd"`
	Cwd   string            `json:"cwd,omitempty" cbor:"cwd,omitempty"`
	Stdin string            `json:"stdin,omitempty" cbor:"stdin,omitempty"`
	Args  []string          `json:"args,omitempty" cbor:"args,omitempty"`
}

// Spawned is the result of run.
type Spawned struct {
	RID resource.ID `json:"rid" cbor:"rid"`
	PID int         `json:"pid" cbor:"pid"`
}

func run(st *opstate.State, in RunArgs) (Spawned, error) {
	if in.Cmd == "" {
		return Spawned{}, errors.TypeMismatch(errors.PhaseDecode, []string{"cmd"}, "cmd is required")
	}
	if err := st.Permissions().CheckKind(permission.Run, "run"); err != nil {
		return Spawned{}, err
	}

	c := &Child{cmd: exec.Command(in.Cmd, in.Args...)}
	c.cmd.Dir = in.Cwd
	c.cmd.WaitDelay = waitDelay
	c.cmd.Stdout = &c.stdout
	c.cmd.Stderr = &c.stderr
	if in.Stdin != "" {
		c.cmd.Stdin = strings.NewReader(in.Stdin)
	}
	if len(in.Env) > 0 {
		env := os.Environ()
		for k, v := range in.Env {
			env = append(env, k+"="+v)
		}
		c.cmd.Env = env
	}

	if err := c.cmd.Start(); err != nil {
		return Spawned{}, hostops.OSError("run", err)
	}
	rid, err := hostops.Add(st, c)
	if err != nil {
		_ = c.Close()
		return Spawned{}, err
	}
	return Spawned{RID: rid, PID: c.cmd.Process.Pid}, nil
}

// Status is the result of runStatus.
type Status struct {
	Stdout  string `json:"stdout" cbor:"stdout"`
	Stderr  string `json:"stderr" cbor:"stderr"`
	Code    int    `json:"code" cbor:"code"`
	Success bool   `json:"success" cbor:"success"`
}

func status(st *opstate.State, in hostops.RID) (ops.TypedFuture[Status], error) {
	lease, err := hostops.Lease[*Child](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, _ *opstate.Cell) (Status, error) {
		defer lease.Release()

		c := lease.Value
		stop := context.AfterFunc(ctx, c.CancelPending)
		defer stop()

		err := c.wait()
		if c.canceled.Load() {
			return Status{}, errors.New(errors.PhaseResource, errors.KindBadResource).
				Op("runStatus").
				Value(uint32(in.RID)).
				Detail("child %d killed while waiting for it", in.RID).
				Build()
		}
		var exitErr *exec.ExitError
		if err != nil && !stderrors.As(err, &exitErr) {
			return Status{}, hostops.OSError("runStatus", err)
		}
		return Status{
			Stdout:  c.stdout.String(),
			Stderr:  c.stderr.String(),
			Code:    c.cmd.ProcessState.ExitCode(),
			Success: c.cmd.ProcessState.Success(),
		}, nil
	}, nil
}
