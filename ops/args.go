package ops

import (
	"fmt"
	"sync/atomic"

	"github.com/wippyai/opcore/codec"
	"github.com/wippyai/opcore/errors"
)

// Raw is a result that is already encoded and is delivered verbatim.
type Raw []byte

// Empty is the argument type of ops that take none.
type Empty struct{}

// Args carries the control payload and lent buffers of one call.
type Args struct {
	codec   codec.Codec
	op      string
	control []byte
	buffers [][]byte
	expired atomic.Bool
}

// NewArgs wraps one call's inputs. The bridge builds these; tests may too.
func NewArgs(op string, c codec.Codec, control []byte, buffers [][]byte) *Args {
	if c == nil {
		c = codec.JSON{}
	}
	return &Args{codec: c, op: op, control: control, buffers: buffers}
}

// Op returns the name of the op being called.
func (a *Args) Op() string {
	return a.op
}

// Decode unmarshals the control payload into v. An empty payload leaves v
// untouched.
func (a *Args) Decode(v any) error {
	a.check()
	if len(a.control) == 0 {
		return nil
	}
	if err := a.codec.Unmarshal(a.control, v); err != nil {
		return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Op(a.op).
			Detail("invalid arguments for %s: %v", a.op, err).
			Cause(err).
			Build()
	}
	return nil
}

// NumBuffers returns how many buffers were lent.
func (a *Args) NumBuffers() int {
	a.check()
	return len(a.buffers)
}

// Buffer returns lent buffer i. The slice aliases script memory and is only
// valid during the synchronous portion of the call.
func (a *Args) Buffer(i int) ([]byte, error) {
	a.check()
	if i < 0 || i >= len(a.buffers) {
		return nil, errors.TypeMismatch(errors.PhaseDecode, []string{fmt.Sprintf("buffers[%d]", i)},
			fmt.Sprintf("%s expects a buffer at position %d, got %d buffers", a.op, i, len(a.buffers)))
	}
	return a.buffers[i], nil
}

// CopyBuffer returns a private copy of buffer i, safe to keep in a Future.
func (a *Args) CopyBuffer(i int) ([]byte, error) {
	b, err := a.Buffer(i)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// DataLen returns the total size of the lent buffers.
func (a *Args) DataLen() int {
	n := 0
	for _, b := range a.buffers {
		n += len(b)
	}
	return n
}

// Expire ends the lending period. Any later access panics.
func (a *Args) Expire() {
	a.expired.Store(true)
	a.buffers = nil
}

func (a *Args) check() {
	if a.expired.Load() {
		panic(errors.Internal(errors.PhaseDispatch, fmt.Sprintf("arguments of %s used after the synchronous portion returned", a.op)))
	}
}
