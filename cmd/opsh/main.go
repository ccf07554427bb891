// Command opsh drives an isolate from a line-oriented op script.
//
// Each script line is one of:
//
//	sync <op> [control] [| data]
//	async <op> [control] [| data]
//	drain
//	resources
//	metrics
//
// Control payloads are written as JSON and re-encoded for the configured
// codec. Lines starting with # are ignored.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/bridge"
	"github.com/wippyai/opcore/config"
	"github.com/wippyai/opcore/engine"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/hostops/clocks"
	"github.com/wippyai/opcore/hostops/env"
	"github.com/wippyai/opcore/hostops/fs"
	"github.com/wippyai/opcore/hostops/plugin"
	"github.com/wippyai/opcore/hostops/process"
	"github.com/wippyai/opcore/hostops/sockets"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/runtime"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to a TOML config file")
		scriptFile  = flag.String("script", "", "Script to run (default stdin)")
		allowAll    = flag.Bool("A", false, "Grant every permission")
		memPages    = flag.Uint("plugin-pages", 0, "Memory limit for plugins in 64KiB pages")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *allowAll {
		cfg.Permissions.AllowAll = true
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	iso, err := newIsolate(cfg, log, *interactive, uint32(*memPages))
	if err != nil {
		log.Error("cannot create isolate", zap.Error(err))
		os.Exit(1)
	}

	if *interactive {
		err = runInteractive(iso)
	} else {
		err = runScript(iso, *scriptFile, os.Stdout)
	}
	if cerr := iso.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Level()
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	log, err := zc.Build()
	if err != nil {
		return nil, err
	}

	runtime.SetLogger(log.Named("runtime"))
	bridge.SetLogger(log.Named("bridge"))
	permission.SetLogger(log.Named("permission"))
	engine.SetLogger(log.Named("engine"))
	return log, nil
}

func newIsolate(cfg *config.Config, log *zap.Logger, tui bool, pages uint32) (*runtime.Isolate, error) {
	opts := runtime.Options{
		Config: cfg,
		// A fault ends the script; the shell reports it instead of exiting.
		FaultHandler: func(err *errors.Error) {
			log.Error("dispatch fault", zap.String("op", err.Op), zap.Error(err))
		},
		Extensions: []ops.Extension{
			fs.New(),
			clocks.New(),
			env.New(),
			process.New(),
			sockets.New(),
			plugin.New(&engine.Config{MemoryLimitPages: pages}),
		},
	}
	if tui {
		// The TUI owns the terminal.
		opts.Prompter = permission.NoPrompt{}
	}
	return runtime.New(opts)
}

func runScript(iso *runtime.Isolate, path string, out io.Writer) error {
	in := io.Reader(os.Stdin)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}

	sh := newShell(iso)
	ctx := context.Background()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		cmd, ok, err := parseLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if !ok {
			continue
		}
		lines, err := sh.exec(ctx, cmd)
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// Settle whatever the script left running.
	lines, err := sh.exec(ctx, command{verb: "drain"})
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return err
}
