// Package opcore is the embedding layer between a sandboxed script
// runtime and the native host.
//
// Script code reaches the host only through named ops. Every call goes
// through one bridge, which decodes the control payload, runs the op
// against the isolate's op state and encodes the result. Async ops
// complete later and are delivered in batches at safe points.
//
// # Architecture Overview
//
//	opcore/
//	├── runtime/      Isolate: wiring, event loop, lifecycle
//	├── bridge/       Op dispatch, async futures, completion queue
//	├── ops/          Op declarations, argument views, registry
//	├── opstate/      Per-isolate state container and typed slots
//	├── resource/     rid-keyed table of native handles
//	├── permission/   Capability gate and interactive prompts
//	├── metrics/      Per-isolate op counters
//	├── builtins/     Ops every isolate carries
//	├── hostops/      fs, clocks, env, process, sockets, plugin
//	├── engine/       wazero host for core wasm plugins
//	├── codec/        Control payload codecs (JSON, CBOR)
//	├── frame/        Framed completion batches
//	├── config/       TOML configuration
//	├── errors/       Structured error types
//	└── testbed/      Test harness for op packages
//
// # Quick Start
//
//	iso, err := runtime.New(runtime.Options{
//		Extensions: []ops.Extension{fs.New(), clocks.New()},
//	})
//	if err != nil {
//		return err
//	}
//	defer iso.Close()
//
//	out, err := iso.Bridge().InvokeSync("cwd", nil, nil)
//	tok, err := iso.Bridge().InvokeAsync("sleep", []byte(`{"millis":10}`), nil)
//	err = iso.RunEventLoop(ctx, deliver)
//
// # Errors
//
// Op failures reach scripts as an error class and a message. Dispatch
// faults, such as an unknown op name, never do: they go to the isolate's
// fault handler.
package opcore
