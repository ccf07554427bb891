// Package ops declares operations and holds the registry the dispatch
// bridge resolves names against.
//
// Every op is either synchronous or asynchronous, fixed at registration:
//
//	reg := ops.NewRegistry()
//	reg.Register(ops.Sync("add", func(st *opstate.State, in AddArgs) (int, error) {
//	    return in.A + in.B, nil
//	}))
//	reg.Register(ops.Async("sleep", func(st *opstate.State, in SleepArgs) (ops.TypedFuture[struct{}], error) {
//	    d := time.Duration(in.Millis) * time.Millisecond
//	    return func(ctx context.Context, _ *opstate.Cell) (struct{}, error) {
//	        time.Sleep(d)
//	        return struct{}{}, nil
//	    }, nil
//	}).WithUnref())
//
// # Handler Contract
//
// A sync handler runs with the op state borrowed and returns the result.
// An async handler runs its synchronous portion with the op state borrowed
// and returns a Future; the borrow is released before the Future runs on its
// own goroutine. A Future that needs the op state again borrows the Cell it is
// handed.
//
// Buffers passed alongside the control payload are lent for the synchronous
// portion only. A Future must copy any bytes it needs before it is returned.
//
// # Extensions
//
// Groups of related ops are packaged as an Extension and registered in one
// call. An Extension that also implements Initializer gets to seed the op
// state once the isolate is built.
package ops
