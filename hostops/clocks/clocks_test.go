package clocks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wippyai/opcore/bridge"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/testbed"
)

func fixedClock(t time.Time) *Extension {
	return &Extension{now: func() time.Time { return t }}
}

func TestNowPrecision(t *testing.T) {
	at := time.Unix(1700000000, 123456789)

	h := testbed.New(t, nil, fixedClock(at))
	var now Now
	h.Call("now", nil, &now)
	assert.Equal(t, int64(1700000000), now.Seconds)
	assert.Equal(t, int64(123000000), now.SubsecNanos)

	cfg := testbed.Config()
	cfg.Permissions.AllowHrtime = true
	h = testbed.New(t, cfg, fixedClock(at))
	h.Call("now", nil, &now)
	assert.Equal(t, int64(123456789), now.SubsecNanos)
	assert.Zero(t, now.Elapsed)
}

func TestSleepOrdering(t *testing.T) {
	h := testbed.New(t, nil, New())

	slow := h.Start("sleep", SleepArgs{Millis: 50})
	fast := h.Start("sleep", SleepArgs{Millis: 10})

	var order []uint32
	err := h.Iso.RunEventLoop(t.Context(), func(batch []bridge.Completion) error {
		for _, c := range batch {
			order = append(order, c.Token)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []uint32{uint32(fast), uint32(slow)}, order)
}

func TestTimerIsUnref(t *testing.T) {
	h := testbed.New(t, nil, New())

	h.Start("timerStart", SleepArgs{Millis: 60_000})
	assert.Zero(t, h.Iso.Bridge().PendingRef())
	assert.Equal(t, 1, h.Iso.Bridge().PendingUnref())

	start := time.Now()
	assert.NoError(t, h.Iso.RunEventLoop(t.Context(), func([]bridge.Completion) error { return nil }))
	assert.Less(t, time.Since(start), time.Second, "unref timer must not keep the loop alive")
}

func TestPendingTimersDoNotDelaySleep(t *testing.T) {
	h := testbed.New(t, nil, New())

	for range 16 {
		h.Start("timerStart", SleepArgs{Millis: 60_000})
	}
	start := time.Now()
	h.Async("sleep", SleepArgs{Millis: 10}, nil)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 16, h.Iso.Bridge().PendingUnref())
}

func TestSleepRejectsBadDelay(t *testing.T) {
	h := testbed.New(t, nil, New())
	oe := h.AsyncFail("sleep", SleepArgs{Millis: -1})
	assert.Equal(t, errors.ClassTypeMismatch, oe.Class)
}
