package runtime

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/bridge"
	"github.com/wippyai/opcore/builtins"
	"github.com/wippyai/opcore/config"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/frame"
	"github.com/wippyai/opcore/metrics"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/resource"
)

// Options configures New. A nil Config means config.Default().
type Options struct {
	Config       *config.Config
	Prompter     permission.Prompter
	FaultHandler bridge.FaultHandler
	Extensions   []ops.Extension
}

// Isolate is one sandboxed execution context with its own op state.
type Isolate struct {
	id       uuid.UUID
	cfg      *config.Config
	registry *ops.Registry
	cell     *opstate.Cell
	bridge   *bridge.Bridge
	table    *resource.Table
	perms    *permission.Permissions
	metrics  *metrics.Collector
}

// New builds an isolate. Registration and extension init errors are
// returned before any op can be dispatched.
func New(opts Options) (*Isolate, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompter := opts.Prompter
	if prompter == nil {
		if cfg.Prompt {
			prompter = permission.NewTerminalPrompter()
		} else {
			prompter = permission.NoPrompt{}
		}
	}

	iso := &Isolate{
		id:       uuid.New(),
		cfg:      cfg,
		registry: ops.NewRegistry(),
		table:    resource.NewTable(),
		perms:    permission.New(cfg.PermissionOptions(), prompter),
		metrics:  metrics.New(),
	}
	iso.cell = opstate.New(iso.table, iso.perms, iso.metrics)

	exts := append([]ops.Extension{builtins.New(cfg.Unstable)}, opts.Extensions...)
	for _, ext := range exts {
		if err := iso.registry.RegisterExtension(ext); err != nil {
			return nil, err
		}
	}
	if err := iso.registry.Init(iso.cell); err != nil {
		return nil, err
	}
	iso.registry.Seal()

	iso.bridge = bridge.New(iso.registry, iso.cell,
		bridge.WithCodec(cfg.ControlCodec()),
		bridge.WithFaultHandler(opts.FaultHandler),
	)

	Logger().Info("isolate created",
		zap.Stringer("id", iso.id),
		zap.Int("ops", len(iso.registry.Names())),
		zap.String("codec", cfg.Codec))
	return iso, nil
}

// ID returns the isolate's unique identifier.
func (i *Isolate) ID() uuid.UUID { return i.id }

// Config returns the configuration the isolate was built with.
func (i *Isolate) Config() *config.Config { return i.cfg }

// Bridge returns the dispatch bridge.
func (i *Isolate) Bridge() *bridge.Bridge { return i.bridge }

// Registry returns the sealed op registry.
func (i *Isolate) Registry() *ops.Registry { return i.registry }

// Cell returns the op state cell.
func (i *Isolate) Cell() *opstate.Cell { return i.cell }

// Resources returns the resource table.
func (i *Isolate) Resources() *resource.Table { return i.table }

// Permissions returns the permission gate.
func (i *Isolate) Permissions() *permission.Permissions { return i.perms }

// Metrics returns the metrics collector.
func (i *Isolate) Metrics() *metrics.Collector { return i.metrics }

// PutState stores a collaborator value in the isolate's op state. Call it
// before script code runs.
func PutState[T any](iso *Isolate, v T) {
	_ = iso.cell.Borrow(func(st *opstate.State) error {
		opstate.Put(st, v)
		return nil
	})
}

// DeliverFunc hands one batch of completions to the script side.
type DeliverFunc func(batch []bridge.Completion) error

// FramedDelivery adapts a consumer of encoded batches.
func FramedDelivery(fn func(encoded []byte) error) DeliverFunc {
	return func(batch []bridge.Completion) error {
		return fn(frame.EncodeBatch(batch))
	}
}

// Tick runs one safe point: it drains every queued completion and delivers
// them as one batch. It never blocks and reports how many were delivered.
func (i *Isolate) Tick(deliver DeliverFunc) (int, error) {
	batch := i.bridge.Drain()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := deliver(batch); err != nil {
		return len(batch), errors.Wrap(errors.PhaseRuntime, errors.KindGeneric, err, "deliver completions")
	}
	return len(batch), nil
}

// RunEventLoop delivers completions until no ref'd async call is pending
// or ctx is done.
func (i *Isolate) RunEventLoop(ctx context.Context, deliver DeliverFunc) error {
	for {
		if _, err := i.Tick(deliver); err != nil {
			return err
		}
		if i.bridge.PendingRef() == 0 {
			return nil
		}
		if err := i.bridge.Wait(ctx); err != nil {
			return err
		}
	}
}

// Close shuts the bridge down, closing every remaining resource, then
// closes extensions that hold native state.
func (i *Isolate) Close() error {
	err := i.bridge.Shutdown()
	for _, ext := range i.registry.Extensions() {
		if c, ok := ext.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	if err != nil {
		Logger().Warn("isolate closed with errors", zap.Stringer("id", i.id), zap.Error(err))
	}
	return err
}
