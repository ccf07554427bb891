package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/codec"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/frame"
	"github.com/wippyai/opcore/metrics"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/resource"
)

// Token identifies one async call until its completion is delivered.
type Token uint32

// Completion is the delivered outcome of an async call.
type Completion = frame.Record

// FaultHandler receives dispatch faults. It is expected not to return
// control to the script that caused the fault.
type FaultHandler func(err *errors.Error)

// Option configures a Bridge.
type Option func(*Bridge)

// WithCodec sets the control payload codec.
func WithCodec(c codec.Codec) Option {
	return func(b *Bridge) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithFaultHandler replaces the default fault handler.
func WithFaultHandler(h FaultHandler) Option {
	return func(b *Bridge) {
		if h != nil {
			b.fault = h
		}
	}
}

func fatalFault(err *errors.Error) {
	Logger().Fatal("dispatch fault", zap.String("op", err.Op), zap.Error(err))
}

type job struct {
	fut   ops.Future
	op    string
	token Token
	kind  metrics.Kind
}

// Bridge is the single entry point from script code into ops. One bridge
// serves one isolate.
type Bridge struct {
	ctx      context.Context
	codec    codec.Codec
	registry *ops.Registry
	cell     *opstate.Cell
	metrics  *metrics.Collector
	table    *resource.Table
	fault    FaultHandler
	notify   chan struct{}
	cancel   context.CancelFunc

	queue        []Completion
	pendingRef   int
	pendingUnref int
	closed       bool
	nextToken    atomic.Uint32
	mu           sync.Mutex
}

// New creates a bridge over reg and cell. The cell must hold the resource
// table and metrics collector.
func New(reg *ops.Registry, cell *opstate.Cell, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		ctx:      ctx,
		cancel:   cancel,
		codec:    codec.JSON{},
		registry: reg,
		cell:     cell,
		fault:    fatalFault,
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}

	_ = cell.Borrow(func(st *opstate.State) error {
		b.metrics = st.Metrics()
		b.table = st.Resources()
		return nil
	})
	return b
}

// Codec returns the control payload codec.
func (b *Bridge) Codec() codec.Codec {
	return b.codec
}

// Registry returns the op registry.
func (b *Bridge) Registry() *ops.Registry {
	return b.registry
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bridge) resolve(name string, async bool) (ops.Decl, error) {
	d, ok := b.registry.Lookup(name)
	if !ok {
		return d, errors.UnknownOp(name)
	}
	if d.IsAsync() != async {
		want := "sync"
		if d.IsAsync() {
			want = "async"
		}
		return d, errors.DispatchFault(name, "op "+name+" must be called as "+want)
	}
	return d, nil
}

// raise hands a fatal error to the fault handler.
func (b *Bridge) raise(err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.Internal(errors.PhaseDispatch, err.Error())
	}
	b.fault(e)
}

// InvokeSync runs a sync op and returns its encoded result. Op failures
// are returned as *OpError.
func (b *Bridge) InvokeSync(name string, control []byte, buffers [][]byte) ([]byte, error) {
	if b.isClosed() {
		return nil, NewOpError(ErrClosed)
	}
	d, err := b.resolve(name, false)
	if err != nil {
		b.raise(err)
		return nil, err
	}

	args := ops.NewArgs(name, b.codec, control, buffers)
	b.metrics.RecordDispatch(name, metrics.Sync, len(control), args.DataLen())

	var res any
	err = b.cell.Borrow(func(st *opstate.State) error {
		var herr error
		res, herr = d.Sync(st, args)
		return herr
	})
	args.Expire()

	var payload []byte
	if err == nil {
		payload, err = b.encode(name, res)
	}
	if err != nil {
		b.metrics.RecordCompletion(name, metrics.Sync, 0, false)
		if errors.IsFatal(err) {
			b.raise(err)
			return nil, err
		}
		Logger().Debug("op failed", zap.String("op", name), zap.Error(err))
		return nil, NewOpError(err)
	}
	b.metrics.RecordCompletion(name, metrics.Sync, len(payload), true)
	return payload, nil
}

// InvokeAsync starts an async op and returns its token. Failures of the
// synchronous portion arrive later as a rejected completion; only a closed
// bridge or a dispatch fault is reported here.
func (b *Bridge) InvokeAsync(name string, control []byte, buffers [][]byte) (Token, error) {
	if b.isClosed() {
		return 0, NewOpError(ErrClosed)
	}
	d, err := b.resolve(name, true)
	if err != nil {
		b.raise(err)
		return 0, err
	}

	kind := metrics.Async
	if d.Unref {
		kind = metrics.AsyncUnref
	}
	token := Token(b.nextToken.Add(1))
	args := ops.NewArgs(name, b.codec, control, buffers)
	b.metrics.RecordDispatch(name, kind, len(control), args.DataLen())

	b.mu.Lock()
	if kind == metrics.AsyncUnref {
		b.pendingUnref++
	} else {
		b.pendingRef++
	}
	b.mu.Unlock()

	var fut ops.Future
	err = b.cell.Borrow(func(st *opstate.State) error {
		var herr error
		fut, herr = d.Async(st, args)
		return herr
	})
	args.Expire()

	if err != nil {
		b.complete(job{op: name, token: token, kind: kind}, nil, err)
		return token, nil
	}

	go b.run(job{fut: fut, op: name, token: token, kind: kind})
	return token, nil
}

// run drives one future on its own goroutine, so a future blocked on I/O
// or a timer never delays the others. After Shutdown ctx is already done
// and the outcome is dropped, but the future still runs to release what
// its synchronous portion acquired.
func (b *Bridge) run(j job) {
	res, err := j.fut(b.ctx, b.cell)
	if b.isClosed() {
		return
	}
	b.complete(j, res, err)
}

func (b *Bridge) complete(j job, res any, err error) {
	rec := Completion{Token: uint32(j.token)}
	if err == nil {
		rec.Payload, err = b.encode(j.op, res)
	}
	if err != nil {
		if errors.IsFatal(err) {
			b.raise(err)
		} else {
			Logger().Debug("op failed", zap.String("op", j.op), zap.Uint32("token", rec.Token), zap.Error(err))
		}
		rec.Payload = b.encodeError(err)
	} else {
		rec.OK = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if j.kind == metrics.AsyncUnref {
		b.pendingUnref--
	} else {
		b.pendingRef--
	}
	b.queue = append(b.queue, rec)
	b.mu.Unlock()

	b.metrics.RecordCompletion(j.op, j.kind, len(rec.Payload), rec.OK)
	b.signal()
}

func (b *Bridge) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Bridge) encode(op string, res any) ([]byte, error) {
	if raw, ok := res.(ops.Raw); ok {
		return raw, nil
	}
	out, err := b.codec.Marshal(res)
	if err != nil {
		return nil, errors.New(errors.PhaseEncode, errors.KindGeneric).
			Op(op).
			Detail("cannot encode result of %s", op).
			Cause(err).
			Build()
	}
	return out, nil
}

func (b *Bridge) encodeError(err error) []byte {
	oe := NewOpError(err)
	out, merr := b.codec.Marshal(oe)
	if merr != nil {
		return []byte(oe.Error())
	}
	return out
}

// Drain removes and returns every queued completion, oldest first. It
// never blocks.
func (b *Bridge) Drain() []Completion {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// Wait blocks until a completion is queued, the bridge is shut down, or
// ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		n, closed := len(b.queue), b.closed
		b.mu.Unlock()
		if n > 0 {
			return nil
		}
		if closed {
			return ErrClosed
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PendingRef reports in-flight async calls that keep the event loop alive.
func (b *Bridge) PendingRef() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingRef
}

// PendingUnref reports in-flight async calls that do not.
func (b *Bridge) PendingUnref() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingUnref
}

// Shutdown abandons in-flight work without waiting for it, drops queued
// completions and closes every resource still in the table. Futures see
// their context end; resources they hold are closed once they return.
func (b *Bridge) Shutdown() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	abandoned := b.pendingRef + b.pendingUnref
	dropped := len(b.queue)
	b.queue = nil
	b.mu.Unlock()

	b.cancel()
	b.signal()
	Logger().Info("bridge shut down",
		zap.Int("abandoned", abandoned),
		zap.Int("undelivered", dropped))
	return b.table.Shutdown()
}
