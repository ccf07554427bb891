// Package clocks provides wall and monotonic time plus timers. Sub-millisecond
// precision is only exposed when the hrtime permission is granted.
package clocks

import (
	"context"
	"time"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/permission"
)

// maxDelay caps sleeps and timers.
const maxDelay = 24 * time.Hour

type origin struct {
	start time.Time
}

// Extension provides the clock ops.
type Extension struct {
	now func() time.Time
}

// New creates the extension.
func New() *Extension {
	return &Extension{now: time.Now}
}

func (*Extension) Name() string { return "clocks" }

// Init records the isolate's monotonic origin.
func (e *Extension) Init(st *opstate.State) error {
	opstate.Put(st, origin{start: e.now()})
	return nil
}

func (e *Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Sync("now", e.nowOp),
		ops.Async("sleep", sleep),
		ops.Async("timerStart", sleep).WithUnref(),
	}
}

// Now is the result of the now op.
type Now struct {
	Seconds     int64 `json:"seconds" cbor:"seconds"`
	SubsecNanos int64 `json:"subsecNanos" cbor:"subsecNanos"`
	// Elapsed is nanoseconds since the isolate was created.
	Elapsed int64 `json:"elapsed" cbor:"elapsed"`
}

func (e *Extension) nowOp(st *opstate.State, _ ops.Empty) (Now, error) {
	t := e.now()
	elapsed := t.Sub(opstate.Borrow[origin](st).start)

	if st.Permissions().Query(permission.Of(permission.Hrtime)) != permission.Granted {
		t = t.Truncate(time.Millisecond)
		elapsed = elapsed.Truncate(time.Millisecond)
	}
	return Now{
		Seconds:     t.Unix(),
		SubsecNanos: int64(t.Nanosecond()),
		Elapsed:     int64(elapsed),
	}, nil
}

// SleepArgs is the delay of sleep and timerStart.
type SleepArgs struct {
	Millis int64 `json:"millis" cbor:"millis"`
}

func sleep(_ *opstate.State, in SleepArgs) (ops.TypedFuture[ops.Empty], error) {
	d := time.Duration(in.Millis) * time.Millisecond
	if d < 0 || d > maxDelay {
		return nil, errors.TypeMismatch(errors.PhaseDecode, []string{"millis"}, "millis must be between 0 and 86400000")
	}
	return func(ctx context.Context, _ *opstate.Cell) (ops.Empty, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return ops.Empty{}, nil
		case <-ctx.Done():
			return ops.Empty{}, ctx.Err()
		}
	}, nil
}
