package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	m := New()

	m.RecordDispatch("close", Sync, 10, 0)
	m.RecordCompletion("close", Sync, 2, true)
	m.RecordDispatch("fsRead", Async, 20, 0)
	m.RecordDispatch("fsWrite", Async, 20, 100)
	m.RecordDispatch("timerStart", AsyncUnref, 5, 0)

	s := m.Snapshot()
	assert.Equal(t, uint64(4), s.OpsDispatched)
	assert.Equal(t, uint64(1), s.OpsDispatchedSync)
	assert.Equal(t, uint64(2), s.OpsDispatchedAsync)
	assert.Equal(t, uint64(1), s.OpsDispatchedAsyncUnref)
	assert.Equal(t, uint64(1), s.OpsCompleted)
	assert.Equal(t, uint64(3), s.Pending())
	assert.Equal(t, uint64(55), s.BytesSentControl)
	assert.Equal(t, uint64(100), s.BytesSentData)
	assert.Equal(t, uint64(2), s.BytesReceived)

	m.RecordCompletion("fsRead", Async, 64, false)
	m.RecordCompletion("fsWrite", Async, 8, true)
	m.RecordCompletion("timerStart", AsyncUnref, 0, true)
	s = m.Snapshot()
	assert.Equal(t, s.OpsDispatched, s.OpsCompleted)
	assert.Equal(t, uint64(2), s.OpsCompletedAsync)
}

func TestCollector_PerOp(t *testing.T) {
	m := New()
	m.RecordDispatch("b", Sync, 0, 0)
	m.RecordCompletion("b", Sync, 0, false)
	m.RecordDispatch("a", Sync, 0, 0)

	ops := m.SnapshotOps()
	require.Len(t, ops, 2)
	assert.Equal(t, "a", ops[0].Name)
	assert.Equal(t, uint64(1), ops[0].Dispatched)
	assert.Equal(t, uint64(0), ops[0].Completed)
	assert.Equal(t, uint64(1), ops[1].Failed)
}

func TestCollector_Concurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordDispatch("op", Async, 1, 1)
			m.RecordCompletion("op", Async, 1, true)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, uint64(50), s.OpsDispatchedAsync)
	assert.Equal(t, uint64(50), s.OpsCompletedAsync)
	assert.Equal(t, uint64(50), m.SnapshotOps()[0].Completed)
}
