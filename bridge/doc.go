// Package bridge dispatches op calls from script code to registered
// handlers.
//
// A call names an op, carries an encoded control payload and zero or more
// lent buffers. Sync calls return the encoded result inline. Async calls
// return a Token at once; the op's Future runs on its own goroutine and
// its outcome is queued as a Completion. The host drains the queue as one
// batch at a safe point, in completion order:
//
//	b := bridge.New(reg, cell, bridge.WithCodec(codec.CBOR{}))
//	defer b.Shutdown()
//
//	tok, _ := b.InvokeAsync("sleep", []byte(`{"millis":10}`), nil)
//	for b.PendingRef() > 0 {
//	    if err := b.Wait(ctx); err != nil {
//	        return err
//	    }
//	    for _, c := range b.Drain() {
//	        deliver(c.Token, c.OK, c.Payload)
//	    }
//	}
//
// # Errors
//
// Handler failures reach the script as an OpError carrying the error class
// and message. A call naming an unknown op, or a handler reporting an
// internal error, is a dispatch fault: the script and host disagree about
// the protocol, so the fault handler runs instead. The default handler logs
// at Fatal level, which exits the process.
package bridge
