// Package opstate holds the per-isolate state that ops read and mutate.
//
// A Cell is a type-keyed store: at most one value per Go type. The core puts
// the resource table, permission gate and metrics collector into it; host
// extensions put their own typed values at setup time.
//
// Access is scoped. Cell.Borrow runs a callback with an exclusive *State and
// invalidates it when the callback returns, so no two ops can hold the state
// at the same time and no op can keep it past its turn:
//
//	cell.Borrow(func(st *opstate.State) error {
//	    opstate.Put(st, &myConfig{})
//	    cfg := opstate.Borrow[*myConfig](st)
//	    table := st.Resources()
//	    ...
//	})
//
// Sync ops run entirely inside one borrow. Async ops run their synchronous
// part inside a borrow, then suspend without one, and may borrow again
// briefly to commit results.
//
// TryTake supports one-shot hand-off, such as swapping the permission gate
// for a narrowed one while a sub-context runs and restoring it afterwards.
package opstate
