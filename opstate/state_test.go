package opstate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/metrics"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/resource"
)

type collaboratorConfig struct {
	Root string
}

func TestPutBorrow(t *testing.T) {
	c := NewCell()
	err := c.Borrow(func(st *State) error {
		Put(st, collaboratorConfig{Root: "/a"})
		cfg := Borrow[collaboratorConfig](st)
		assert.Equal(t, "/a", cfg.Root)

		cfg.Root = "/b"
		assert.Equal(t, "/b", Borrow[collaboratorConfig](st).Root)

		Put(st, collaboratorConfig{Root: "/c"})
		assert.Equal(t, "/c", Borrow[collaboratorConfig](st).Root)
		return nil
	})
	require.NoError(t, err)
}

func TestBorrowMissingPanics(t *testing.T) {
	c := NewCell()
	c.Borrow(func(st *State) error {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			e, ok := r.(*errors.Error)
			require.True(t, ok)
			assert.Equal(t, errors.KindInternal, e.Kind)
		}()
		Borrow[collaboratorConfig](st)
		return nil
	})
}

func TestTryTake(t *testing.T) {
	c := NewCell()
	c.Borrow(func(st *State) error {
		_, ok := TryTake[int](st)
		assert.False(t, ok)

		Put(st, 42)
		v, ok := TryTake[int](st)
		assert.True(t, ok)
		assert.Equal(t, 42, v)
		assert.False(t, Has[int](st))
		return nil
	})
}

func TestSwapPermissionsForSubContext(t *testing.T) {
	parent := permission.New(permission.Options{AllowRead: []string{"/srv"}}, nil)
	c := New(resource.NewTable(), parent, metrics.New())

	c.Borrow(func(st *State) error {
		saved, ok := TryTake[*permission.Permissions](st)
		require.True(t, ok)
		child, err := saved.Narrow(permission.Options{AllowRead: []string{"/srv/app"}})
		require.NoError(t, err)
		Put(st, child)

		assert.Equal(t, permission.Denied, st.Permissions().Query(permission.ReadPath("/srv/other")))

		Put(st, saved)
		return nil
	})

	c.Borrow(func(st *State) error {
		assert.Same(t, parent, st.Permissions())
		return nil
	})
}

func TestStateExpiresAfterBorrow(t *testing.T) {
	c := NewCell()
	var leaked *State
	c.Borrow(func(st *State) error {
		Put(st, "x")
		leaked = st
		return nil
	})

	assert.Panics(t, func() { Has[string](leaked) })
}

func TestBorrowsNeverOverlap(t *testing.T) {
	c := NewCell()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Borrow(func(st *State) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestCoreAccessors(t *testing.T) {
	table := resource.NewTable()
	perms := permission.AllowAll()
	m := metrics.New()
	c := New(table, perms, m)

	c.Borrow(func(st *State) error {
		assert.Same(t, table, st.Resources())
		assert.Same(t, perms, st.Permissions())
		assert.Same(t, m, st.Metrics())
		return nil
	})
}
