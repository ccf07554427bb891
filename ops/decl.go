package ops

import (
	"context"

	"github.com/wippyai/opcore/opstate"
)

// SyncHandler runs a synchronous op to completion.
type SyncHandler func(st *opstate.State, args *Args) (any, error)

// Future is the deferred portion of an async op. It runs on its own goroutine
// with no borrow held.
type Future func(ctx context.Context, cell *opstate.Cell) (any, error)

// AsyncHandler runs the synchronous portion of an async op.
type AsyncHandler func(st *opstate.State, args *Args) (Future, error)

// TypedFuture is the typed form of Future used by Async.
type TypedFuture[R any] func(ctx context.Context, cell *opstate.Cell) (R, error)

// Decl is an op declaration. Exactly one of Sync and Async is set.
type Decl struct {
	Sync  SyncHandler
	Async AsyncHandler
	Name  string
	// Unref ops do not keep the event loop alive while pending.
	Unref bool
}

// IsAsync reports whether the op completes through a Future.
func (d Decl) IsAsync() bool {
	return d.Async != nil
}

// WithUnref returns a copy of d marked as not keeping the event loop alive.
func (d Decl) WithUnref() Decl {
	d.Unref = true
	return d
}

// NewSync declares a synchronous op.
func NewSync(name string, h SyncHandler) Decl {
	return Decl{Name: name, Sync: h}
}

// NewAsync declares an asynchronous op.
func NewAsync(name string, h AsyncHandler) Decl {
	return Decl{Name: name, Async: h}
}

// Sync declares a synchronous op whose control payload decodes into A.
func Sync[A, R any](name string, fn func(st *opstate.State, in A) (R, error)) Decl {
	return NewSync(name, func(st *opstate.State, args *Args) (any, error) {
		var in A
		if err := args.Decode(&in); err != nil {
			return nil, err
		}
		return fn(st, in)
	})
}

// Async declares an asynchronous op whose control payload decodes into A.
func Async[A, R any](name string, fn func(st *opstate.State, in A) (TypedFuture[R], error)) Decl {
	return NewAsync(name, func(st *opstate.State, args *Args) (Future, error) {
		var in A
		if err := args.Decode(&in); err != nil {
			return nil, err
		}
		fut, err := fn(st, in)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, cell *opstate.Cell) (any, error) {
			return fut(ctx, cell)
		}, nil
	})
}
