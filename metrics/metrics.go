package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Kind classifies a dispatch for accounting.
type Kind uint8

const (
	Sync Kind = iota
	Async
	AsyncUnref
)

func (k Kind) String() string {
	switch k {
	case Sync:
		return "sync"
	case Async:
		return "async"
	case AsyncUnref:
		return "async_unref"
	}
	return "unknown"
}

// Snapshot is a point-in-time copy of the aggregate counters.
type Snapshot struct {
	OpsDispatched           uint64 `json:"opsDispatched" cbor:"opsDispatched"`
	OpsDispatchedSync       uint64 `json:"opsDispatchedSync" cbor:"opsDispatchedSync"`
	OpsDispatchedAsync      uint64 `json:"opsDispatchedAsync" cbor:"opsDispatchedAsync"`
	OpsDispatchedAsyncUnref uint64 `json:"opsDispatchedAsyncUnref" cbor:"opsDispatchedAsyncUnref"`
	OpsCompleted            uint64 `json:"opsCompleted" cbor:"opsCompleted"`
	OpsCompletedSync        uint64 `json:"opsCompletedSync" cbor:"opsCompletedSync"`
	OpsCompletedAsync       uint64 `json:"opsCompletedAsync" cbor:"opsCompletedAsync"`
	OpsCompletedAsyncUnref  uint64 `json:"opsCompletedAsyncUnref" cbor:"opsCompletedAsyncUnref"`
	BytesSentControl        uint64 `json:"bytesSentControl" cbor:"bytesSentControl"`
	BytesSentData           uint64 `json:"bytesSentData" cbor:"bytesSentData"`
	BytesReceived           uint64 `json:"bytesReceived" cbor:"bytesReceived"`
}

// OpSnapshot is the per-op breakdown of a Snapshot.
type OpSnapshot struct {
	Name       string `json:"name" cbor:"name"`
	Dispatched uint64 `json:"dispatched" cbor:"dispatched"`
	Completed  uint64 `json:"completed" cbor:"completed"`
	Failed     uint64 `json:"failed" cbor:"failed"`
}

// Pending reports dispatched-but-not-completed calls.
func (s Snapshot) Pending() uint64 {
	return s.OpsDispatched - s.OpsCompleted
}

type counters struct {
	dispatched [3]atomic.Uint64
	completed  [3]atomic.Uint64
	control    atomic.Uint64
	data       atomic.Uint64
	received   atomic.Uint64
}

type opCounters struct {
	dispatched uint64
	completed  uint64
	failed     uint64
}

// Collector counts dispatches and completions. The bridge is the only
// writer; everyone else reads snapshots.
type Collector struct {
	ops map[string]*opCounters
	c   counters
	mu  sync.Mutex
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{ops: make(map[string]*opCounters)}
}

// RecordDispatch counts one call entering the bridge.
func (m *Collector) RecordDispatch(op string, kind Kind, controlBytes, dataBytes int) {
	m.c.dispatched[kind].Add(1)
	m.c.control.Add(uint64(controlBytes))
	m.c.data.Add(uint64(dataBytes))

	m.mu.Lock()
	m.op(op).dispatched++
	m.mu.Unlock()
}

// RecordCompletion counts one call leaving the bridge.
func (m *Collector) RecordCompletion(op string, kind Kind, resultBytes int, ok bool) {
	m.c.completed[kind].Add(1)
	m.c.received.Add(uint64(resultBytes))

	m.mu.Lock()
	oc := m.op(op)
	oc.completed++
	if !ok {
		oc.failed++
	}
	m.mu.Unlock()
}

func (m *Collector) op(name string) *opCounters {
	oc, ok := m.ops[name]
	if !ok {
		oc = &opCounters{}
		m.ops[name] = oc
	}
	return oc
}

// Snapshot returns the aggregate counters.
func (m *Collector) Snapshot() Snapshot {
	s := Snapshot{
		OpsDispatchedSync:       m.c.dispatched[Sync].Load(),
		OpsDispatchedAsync:      m.c.dispatched[Async].Load(),
		OpsDispatchedAsyncUnref: m.c.dispatched[AsyncUnref].Load(),
		OpsCompletedSync:        m.c.completed[Sync].Load(),
		OpsCompletedAsync:       m.c.completed[Async].Load(),
		OpsCompletedAsyncUnref:  m.c.completed[AsyncUnref].Load(),
		BytesSentControl:        m.c.control.Load(),
		BytesSentData:           m.c.data.Load(),
		BytesReceived:           m.c.received.Load(),
	}
	s.OpsDispatched = s.OpsDispatchedSync + s.OpsDispatchedAsync + s.OpsDispatchedAsyncUnref
	s.OpsCompleted = s.OpsCompletedSync + s.OpsCompletedAsync + s.OpsCompletedAsyncUnref
	return s
}

// SnapshotOps returns the per-op breakdown sorted by name.
func (m *Collector) SnapshotOps() []OpSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]OpSnapshot, 0, len(m.ops))
	for name, oc := range m.ops {
		out = append(out, OpSnapshot{
			Name:       name,
			Dispatched: oc.dispatched,
			Completed:  oc.completed,
			Failed:     oc.failed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
