// Package runtime assembles an isolate: the op state, the registry with
// the builtin ops and any extensions, the dispatch bridge, and the event
// loop that delivers async completions.
//
// # Quick Start
//
//	iso, err := runtime.New(runtime.Options{
//	    Config:     cfg,
//	    Extensions: []ops.Extension{fs.New(), clocks.New()},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer iso.Close()
//
//	runtime.PutState(iso, myCollaborator)
//
//	out, err := iso.Bridge().InvokeSync("fsStat", []byte(`{"path":"/tmp"}`), nil)
//
//	tok, _ := iso.Bridge().InvokeAsync("sleep", []byte(`{"millis":10}`), nil)
//	err = iso.RunEventLoop(ctx, func(batch []bridge.Completion) error {
//	    // resolve script promises by token
//	    return nil
//	})
//
// # Event Loop
//
// Completions are only handed to the script side at safe points, between
// turns of RunEventLoop, as one batch in completion order. The loop ends
// when no ref'd async call is pending; unref calls such as timers do not
// keep it running.
package runtime
