package resource

import (
	"sync"
	"testing"
)

type stubResource struct {
	name   string
	closed int
	err    error
	mu     sync.Mutex
}

func (s *stubResource) Name() string { return s.name }

func (s *stubResource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.err
}

func (s *stubResource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()
	res := &stubResource{name: "file"}

	id, err := b.Create(res)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero id")
	}

	val, ok := b.Get(id)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != res {
		t.Fatalf("Expected stored resource, got %v", val)
	}

	val, closeNow, ok := b.Remove(id)
	if !ok || !closeNow {
		t.Fatalf("Remove = (%v, %v), want (true, true)", closeNow, ok)
	}
	if val != res {
		t.Fatalf("Expected stored resource, got %v", val)
	}

	if _, ok := b.Get(id); ok {
		t.Fatal("Expected Get to fail after Remove")
	}
}

func TestLocalBackend_Borrow(t *testing.T) {
	b := NewLocalBackend()
	id, _ := b.Create(&stubResource{name: "sock"})

	if _, ok := b.Borrow(id); !ok {
		t.Fatal("Borrow failed")
	}

	// Remove while borrowed unlinks but defers the close
	_, closeNow, ok := b.Remove(id)
	if !ok || closeNow {
		t.Fatalf("Remove = (%v, %v), want (false, true)", closeNow, ok)
	}
	if _, ok := b.Get(id); ok {
		t.Fatal("removed entry should not be visible")
	}
	if _, ok := b.Borrow(id); ok {
		t.Fatal("removed entry should not be borrowable")
	}

	res, closeNow := b.ReturnBorrow(id)
	if !closeNow || res == nil {
		t.Fatal("last ReturnBorrow should hand back the resource")
	}

	if _, closeNow := b.ReturnBorrow(id); closeNow {
		t.Fatal("entry is gone, ReturnBorrow must not close twice")
	}
}

func TestLocalBackend_MultipleBorrows(t *testing.T) {
	b := NewLocalBackend()
	id, _ := b.Create(&stubResource{name: "child"})

	for i := 0; i < 5; i++ {
		if _, ok := b.Borrow(id); !ok {
			t.Fatalf("Borrow %d failed", i)
		}
	}

	b.Remove(id)

	for i := 0; i < 4; i++ {
		if _, closeNow := b.ReturnBorrow(id); closeNow {
			t.Fatalf("ReturnBorrow %d closed early", i)
		}
	}
	if _, closeNow := b.ReturnBorrow(id); !closeNow {
		t.Fatal("final ReturnBorrow should close")
	}
}

func TestLocalBackend_NoReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(&stubResource{name: "a"})
	h2, _ := b.Create(&stubResource{name: "b"})
	b.Remove(h1)
	b.Remove(h2)

	h3, _ := b.Create(&stubResource{name: "c"})
	if h3 == h1 || h3 == h2 {
		t.Fatalf("id %d reused", h3)
	}
	if h3 != 3 {
		t.Fatalf("expected monotonic id 3, got %d", h3)
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()

	b.Create(&stubResource{name: "a"})
	borrowed, _ := b.Create(&stubResource{name: "b"})
	b.Create(&stubResource{name: "c"})
	b.Borrow(borrowed)

	held, leased := b.Close()
	if len(held) != 2 {
		t.Fatalf("Close returned %d entries, want 2", len(held))
	}
	if len(leased) != 1 || leased[0].ID != borrowed {
		t.Fatalf("Close returned leased %v, want [%d]", leased, borrowed)
	}
	if held[0].ID >= held[1].ID {
		t.Fatal("Close should return entries in id order")
	}

	if _, err := b.Create(&stubResource{name: "d"}); err != ErrClosed {
		t.Fatalf("Create after Close = %v, want ErrClosed", err)
	}

	if res, closeNow := b.ReturnBorrow(borrowed); !closeNow || res.Name() != "b" {
		t.Fatal("borrowed entry should be handed back on release")
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[ID]bool)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := b.Create(&stubResource{name: "x"})
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			if seen[h] {
				t.Errorf("duplicate id %d", h)
			}
			seen[h] = true
			mu.Unlock()
			b.Borrow(h)
			b.ReturnBorrow(h)
			b.Remove(h)
		}()
	}

	wg.Wait()
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend()

	b.Create(&stubResource{name: "a"})
	b.Create(&stubResource{name: "b"})
	b.Create(&stubResource{name: "c"})

	var names []string
	b.Each(func(id ID, r Resource) bool {
		names = append(names, r.Name())
		return true
	})
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fatalf("Each visited %v", names)
	}

	count := 0
	b.Each(func(ID, Resource) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Expected early termination after 1 item, got %d", count)
	}
}

func TestLocalBackend_InvalidID(t *testing.T) {
	b := NewLocalBackend()

	if _, ok := b.Get(0); ok {
		t.Fatal("ID 0 should be invalid")
	}
	if _, ok := b.Borrow(0); ok {
		t.Fatal("ID 0 should fail Borrow")
	}
	if _, closeNow := b.ReturnBorrow(0); closeNow {
		t.Fatal("ID 0 should fail ReturnBorrow")
	}
	if _, _, ok := b.Remove(0); ok {
		t.Fatal("ID 0 should fail Remove")
	}
	if _, ok := b.Get(999); ok {
		t.Fatal("Non-existent id should be invalid")
	}
}
