// Package hostops holds helpers shared by the host op extensions in its
// subpackages. Each subpackage is one ops.Extension covering a slice of
// the native world: files, clocks, environment, processes, sockets and
// plugins.
package hostops

import (
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/resource"
)

// OSError wraps a native failure of op. The class is derived from the
// cause, so a missing file surfaces as NotFound.
func OSError(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Generic(errors.PhaseHost, op, err)
}

// Add registers res in the isolate's resource table.
func Add(st *opstate.State, res resource.Resource) (resource.ID, error) {
	return st.Resources().Add(res)
}

// Lease borrows a typed resource for use in a Future. The caller must
// release it once done.
func Lease[T resource.Resource](st *opstate.State, rid resource.ID) (*resource.Lease[T], error) {
	return resource.Borrow[T](st.Resources(), rid)
}

// RID is the control payload of ops that act on one resource.
type RID struct {
	RID resource.ID `json:"rid" cbor:"rid"`
}

// RIDResult is returned by ops that create a resource.
type RIDResult struct {
	RID resource.ID `json:"rid" cbor:"rid"`
}
