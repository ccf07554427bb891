// Package resource provides the handle table for live native resources.
//
// Script code never touches a native object directly. Ops that acquire a
// file, socket, child process or plugin instance hand it to the Table and
// return the integer rid; later ops name the rid and look the object up again.
// The table is the only owner, so a rid can never dangle: once closed, every
// lookup fails with a BadResource error.
//
// # Handle Allocation
//
// Rids start at 1 and increase monotonically. A closed rid is never handed
// out again by the same table, so a stale rid held by a script cannot alias a
// newer resource.
//
//	table := resource.NewTable()
//	rid, err := table.Add(file)
//	res, err := table.Get(rid)
//	err = table.Close(rid) // second Close fails with BadResource
//
// # Leases
//
// Async ops that use a resource across a suspension point lease it:
//
//	lease, err := resource.Borrow[*File](table, rid)
//	defer lease.Release()
//
// Closing a leased rid unlinks it immediately, but the native close is
// deferred until the lease is released.
//
// # Teardown
//
// Shutdown closes every remaining resource exactly once, keeps going past
// individual failures and reports them aggregated. Failures are also kept in
// Failures() for later inspection.
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	stop := table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("resource %d %s", e.ID, e.Type)
//	}))
//	defer stop()
package resource
