package resource

import (
	stderrors "errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/wippyai/opcore/errors"
)

type otherResource struct{ stubResource }

func TestTable_AddGetClose(t *testing.T) {
	table := NewTable()
	res := &stubResource{name: "fsFile"}

	id, err := table.Add(res)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := table.Get(id)
	if err != nil || got != res {
		t.Fatalf("Get = (%v, %v)", got, err)
	}

	if err := table.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if res.closeCount() != 1 {
		t.Fatalf("native close count = %d, want 1", res.closeCount())
	}

	if _, err := table.Get(id); !stderrors.Is(err, errors.ErrBadResource) {
		t.Fatalf("Get after Close = %v, want BadResource", err)
	}
}

func TestTable_CloseTwiceIsBadResource(t *testing.T) {
	table := NewTable()
	res := &stubResource{name: "fsFile"}
	id, _ := table.Add(res)

	if err := table.Close(id); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	err := table.Close(id)
	if !stderrors.Is(err, errors.ErrBadResource) {
		t.Fatalf("second Close = %v, want BadResource", err)
	}
	if res.closeCount() != 1 {
		t.Fatalf("native close count = %d, want 1", res.closeCount())
	}
}

func TestTable_CloseError(t *testing.T) {
	table := NewTable()
	boom := stderrors.New("boom")
	id, _ := table.Add(&stubResource{name: "bad", err: boom})

	err := table.Close(id)
	if !stderrors.Is(err, boom) {
		t.Fatalf("Close = %v, want wrapped boom", err)
	}
	if _, err := table.Get(id); err == nil {
		t.Fatal("failed close must still unlink the rid")
	}
	if len(table.Failures()) != 1 {
		t.Fatalf("Failures() = %v", table.Failures())
	}
}

func TestTable_UniqueOpenIDs(t *testing.T) {
	table := NewTable()
	rng := rand.New(rand.NewSource(1))
	open := make(map[ID]bool)
	var everIssued []ID

	for i := 0; i < 2000; i++ {
		if len(open) == 0 || rng.Intn(3) != 0 {
			id, err := table.Add(&stubResource{name: "r"})
			if err != nil {
				t.Fatal(err)
			}
			if open[id] {
				t.Fatalf("id %d issued while still open", id)
			}
			for _, old := range everIssued {
				if old == id {
					t.Fatalf("id %d reused", id)
				}
			}
			open[id] = true
			everIssued = append(everIssued, id)
			continue
		}
		for id := range open {
			if err := table.Close(id); err != nil {
				t.Fatal(err)
			}
			delete(open, id)
			break
		}
	}

	if table.Len() != len(open) {
		t.Fatalf("Len() = %d, want %d", table.Len(), len(open))
	}
}

func TestTable_GetAs(t *testing.T) {
	table := NewTable()
	id, _ := table.Add(&stubResource{name: "a"})

	if _, err := GetAs[*stubResource](table, id); err != nil {
		t.Fatalf("GetAs matching type: %v", err)
	}
	if _, err := GetAs[*otherResource](table, id); !stderrors.Is(err, errors.ErrBadResource) {
		t.Fatalf("GetAs wrong type = %v, want BadResource", err)
	}
}

func TestTable_LeaseDefersClose(t *testing.T) {
	table := NewTable()
	res := &stubResource{name: "conn"}
	id, _ := table.Add(res)

	lease, err := Borrow[*stubResource](table, id)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	if err := table.Close(id); err != nil {
		t.Fatalf("Close while leased: %v", err)
	}
	if res.closeCount() != 0 {
		t.Fatal("native close must wait for the lease")
	}
	if _, err := table.Get(id); err == nil {
		t.Fatal("rid must be unlinked immediately")
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if res.closeCount() != 1 {
		t.Fatalf("native close count = %d, want 1", res.closeCount())
	}
	if err := lease.Release(); err != nil {
		t.Fatal("second Release should be a no-op")
	}
}

func TestTable_BorrowWrongTypeReturnsBorrow(t *testing.T) {
	table := NewTable()
	res := &stubResource{name: "a"}
	id, _ := table.Add(res)

	if _, err := Borrow[*otherResource](table, id); err == nil {
		t.Fatal("expected BadResource")
	}
	if err := table.Close(id); err != nil {
		t.Fatal(err)
	}
	if res.closeCount() != 1 {
		t.Fatal("failed borrow must not leave a dangling lease")
	}
}

func TestTable_Take(t *testing.T) {
	table := NewTable()
	res := &stubResource{name: "a"}
	id, _ := table.Add(res)

	got, err := table.Take(id)
	if err != nil || got != res {
		t.Fatalf("Take = (%v, %v)", got, err)
	}
	if res.closeCount() != 0 {
		t.Fatal("Take must not close")
	}
	if _, err := table.Take(id); err == nil {
		t.Fatal("second Take should fail")
	}
}

func TestTable_Entries(t *testing.T) {
	table := NewTable()
	a, _ := table.Add(&stubResource{name: "fsFile"})
	b, _ := table.Add(&stubResource{name: "tcpStream"})
	table.Add(&stubResource{name: "child"})
	table.Close(b)

	entries := table.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() = %v", entries)
	}
	if entries[0].ID != a || entries[0].Name != "fsFile" || entries[1].Name != "child" {
		t.Fatalf("Entries() = %v", entries)
	}
}

func TestTable_Shutdown(t *testing.T) {
	table := NewTable()
	good := &stubResource{name: "good"}
	bad1 := &stubResource{name: "bad1", err: stderrors.New("e1")}
	bad2 := &stubResource{name: "bad2", err: stderrors.New("e2")}
	leased := &stubResource{name: "leased"}
	table.Add(good)
	table.Add(bad1)
	leasedID, _ := table.Add(leased)
	table.Add(bad2)

	lease, err := Borrow[*stubResource](table, leasedID)
	if err != nil {
		t.Fatal(err)
	}

	err = table.Shutdown()
	if err == nil {
		t.Fatal("Shutdown should report close failures")
	}
	if !stderrors.Is(err, bad1.err) || !stderrors.Is(err, bad2.err) {
		t.Fatalf("Shutdown error %v should aggregate both failures", err)
	}
	for _, r := range []*stubResource{good, bad1, bad2} {
		if r.closeCount() != 1 {
			t.Fatalf("%s closed %d times", r.name, r.closeCount())
		}
	}
	if leased.closeCount() != 0 {
		t.Fatal("leased resource must not be force-closed")
	}
	if len(table.Failures()) != 2 {
		t.Fatalf("Failures() = %v", table.Failures())
	}

	lease.Release()
	if leased.closeCount() != 1 {
		t.Fatal("leased resource should close on release")
	}

	if _, err := table.Add(&stubResource{name: "late"}); !stderrors.Is(err, errors.ErrBadResource) {
		t.Fatalf("Add after Shutdown = %v", err)
	}
	if err := table.Shutdown(); err != nil {
		t.Fatalf("second Shutdown = %v", err)
	}
}

func TestTable_Observers(t *testing.T) {
	table := NewTable()
	var mu sync.Mutex
	var events []EventType

	stop := table.Subscribe(ObserverFunc(func(e Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	}))

	id, _ := table.Add(&stubResource{name: "a"})
	table.Close(id)
	stop()
	table.Add(&stubResource{name: "b"})

	if len(events) != 2 || events[0] != EventCreated || events[1] != EventClosed {
		t.Fatalf("events = %v", events)
	}
}

type cancelResource struct {
	stubResource
	canceled int
}

func (c *cancelResource) CancelPending() { c.canceled++ }

func TestTable_CloseCancelsLeased(t *testing.T) {
	table := NewTable()
	res := &cancelResource{stubResource: stubResource{name: "tcpListener"}}
	id, _ := table.Add(res)

	lease, err := Borrow[*cancelResource](table, id)
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if err := table.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if res.canceled != 1 {
		t.Fatalf("CancelPending calls = %d, want 1", res.canceled)
	}
	if res.closeCount() != 0 {
		t.Fatal("native close must wait for the lease")
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if res.closeCount() != 1 {
		t.Fatalf("native close count = %d, want 1", res.closeCount())
	}
}

func TestTable_ShutdownCancelsLeased(t *testing.T) {
	table := NewTable()
	res := &cancelResource{stubResource: stubResource{name: "tcpListener"}}
	id, _ := table.Add(res)

	lease, err := Borrow[*cancelResource](table, id)
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if err := table.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if res.canceled != 1 {
		t.Fatalf("CancelPending calls = %d, want 1", res.canceled)
	}
	if table.Len() != 0 {
		t.Fatalf("Len after Shutdown = %d", table.Len())
	}

	lease.Release()
	if res.closeCount() != 1 {
		t.Fatalf("native close count = %d, want 1", res.closeCount())
	}
}
