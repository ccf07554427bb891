// Package sockets provides TCP client and server ops. Dialing and
// listening require the net permission for the target host and port;
// accepted connections inherit the listener's grant.
package sockets

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/hostops"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/resource"
)

const maxRead = 1 << 20

// Conn is a connected TCP stream.
type Conn struct {
	c        net.Conn
	canceled atomic.Bool
}

func (c *Conn) Name() string { return "tcpStream" }

func (c *Conn) Close() error { return c.c.Close() }

// CancelPending unblocks in-flight reads and writes.
func (c *Conn) CancelPending() {
	c.canceled.Store(true)
	_ = c.c.SetDeadline(time.Now())
}

// Listener is a bound TCP listener.
type Listener struct {
	l        *net.TCPListener
	canceled atomic.Bool
}

func (l *Listener) Name() string { return "tcpListener" }

func (l *Listener) Close() error { return l.l.Close() }

// CancelPending unblocks an in-flight accept.
func (l *Listener) CancelPending() {
	l.canceled.Store(true)
	_ = l.l.SetDeadline(time.Now())
}

type cancelable interface {
	resource.Canceler
	wasCanceled() bool
}

func (c *Conn) wasCanceled() bool     { return c.canceled.Load() }
func (l *Listener) wasCanceled() bool { return l.canceled.Load() }

// guard interrupts res when ctx ends and maps errors caused by a
// cancellation to BadResource.
func guard(ctx context.Context, res cancelable, rid resource.ID, op string) (check func(error) error, stop func() bool) {
	stop = context.AfterFunc(ctx, res.CancelPending)
	check = func(err error) error {
		if err == nil {
			return nil
		}
		if res.wasCanceled() {
			return errors.New(errors.PhaseResource, errors.KindBadResource).
				Op(op).
				Value(uint32(rid)).
				Detail("resource %d closed during %s", rid, op).
				Build()
		}
		return hostops.OSError(op, err)
	}
	return check, stop
}

// Extension provides the socket ops.
type Extension struct{}

// New creates the extension.
func New() *Extension { return &Extension{} }

func (*Extension) Name() string { return "sockets" }

func (*Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Async("dial", dial),
		ops.Sync("listen", listen),
		ops.Async("accept", accept),
		ops.Async("read", read),
		ops.NewAsync("write", write),
		ops.Sync("shutdown", shutdown),
	}
}

// AddrArgs is a host and port.
type AddrArgs struct {
	Transport string `json:"transport,omitempty" cbor:"transport,omitempty"`
	Host      string `json:"host" cbor:"host"`
	Port      uint16 `json:"port" cbor:"port"`
}

func (a AddrArgs) addr(api string) (string, error) {
	if a.Transport != "" && a.Transport != "tcp" {
		return "", errors.NotSupported(errors.PhaseHost, api+": transport "+a.Transport)
	}
	if a.Host == "" {
		return "", errors.TypeMismatch(errors.PhaseDecode, []string{"host"}, "host is required")
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port))), nil
}

// ConnInfo is returned by dial and accept.
type ConnInfo struct {
	LocalAddr  string      `json:"localAddr" cbor:"localAddr"`
	RemoteAddr string      `json:"remoteAddr" cbor:"remoteAddr"`
	RID        resource.ID `json:"rid" cbor:"rid"`
}

// register adds conn to the table from a Future.
func register(cell *opstate.Cell, conn net.Conn) (ConnInfo, error) {
	info := ConnInfo{
		LocalAddr:  conn.LocalAddr().String(),
		RemoteAddr: conn.RemoteAddr().String(),
	}
	err := cell.Borrow(func(st *opstate.State) error {
		rid, err := hostops.Add(st, &Conn{c: conn})
		info.RID = rid
		return err
	})
	if err != nil {
		conn.Close()
		return ConnInfo{}, err
	}
	return info, nil
}

func dial(st *opstate.State, in AddrArgs) (ops.TypedFuture[ConnInfo], error) {
	addr, err := in.addr("dial")
	if err != nil {
		return nil, err
	}
	if err := st.Permissions().CheckNet(addr, "dial"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, cell *opstate.Cell) (ConnInfo, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return ConnInfo{}, hostops.OSError("dial", err)
		}
		return register(cell, conn)
	}, nil
}

// ListenInfo is returned by listen.
type ListenInfo struct {
	Addr string      `json:"addr" cbor:"addr"`
	RID  resource.ID `json:"rid" cbor:"rid"`
}

func listen(st *opstate.State, in AddrArgs) (ListenInfo, error) {
	addr, err := in.addr("listen")
	if err != nil {
		return ListenInfo{}, err
	}
	if err := st.Permissions().CheckNet(addr, "listen"); err != nil {
		return ListenInfo{}, err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return ListenInfo{}, hostops.OSError("listen", err)
	}
	rid, err := hostops.Add(st, &Listener{l: l.(*net.TCPListener)})
	if err != nil {
		l.Close()
		return ListenInfo{}, err
	}
	return ListenInfo{RID: rid, Addr: l.Addr().String()}, nil
}

func accept(st *opstate.State, in hostops.RID) (ops.TypedFuture[ConnInfo], error) {
	lease, err := hostops.Lease[*Listener](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, cell *opstate.Cell) (ConnInfo, error) {
		defer lease.Release()
		check, stop := guard(ctx, lease.Value, in.RID, "accept")
		defer stop()

		conn, err := lease.Value.l.Accept()
		if err := check(err); err != nil {
			return ConnInfo{}, err
		}
		return register(cell, conn)
	}, nil
}

// ReadArgs reads up to Len bytes.
type ReadArgs struct {
	RID resource.ID `json:"rid" cbor:"rid"`
	Len int         `json:"len" cbor:"len"`
}

// ReadResult carries received bytes. EOF is set once the peer has shut
// down its side.
type ReadResult struct {
	Data []byte `json:"data" cbor:"data"`
	EOF  bool   `json:"eof" cbor:"eof"`
}

func read(st *opstate.State, in ReadArgs) (ops.TypedFuture[ReadResult], error) {
	if in.Len <= 0 || in.Len > maxRead {
		return nil, errors.TypeMismatch(errors.PhaseDecode, []string{"len"}, "len must be between 1 and 1MiB")
	}
	lease, err := hostops.Lease[*Conn](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, _ *opstate.Cell) (ReadResult, error) {
		defer lease.Release()
		check, stop := guard(ctx, lease.Value, in.RID, "read")
		defer stop()

		buf := make([]byte, in.Len)
		n, err := lease.Value.c.Read(buf)
		if stderrors.Is(err, io.EOF) {
			return ReadResult{Data: buf[:n], EOF: true}, nil
		}
		if err := check(err); err != nil {
			return ReadResult{}, err
		}
		return ReadResult{Data: buf[:n]}, nil
	}, nil
}

// WriteResult reports bytes written.
type WriteResult struct {
	N int `json:"n" cbor:"n"`
}

func write(st *opstate.State, args *ops.Args) (ops.Future, error) {
	var in hostops.RID
	if err := args.Decode(&in); err != nil {
		return nil, err
	}
	data, err := args.CopyBuffer(0)
	if err != nil {
		return nil, err
	}
	lease, err := hostops.Lease[*Conn](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, _ *opstate.Cell) (any, error) {
		defer lease.Release()
		check, stop := guard(ctx, lease.Value, in.RID, "write")
		defer stop()

		n, err := lease.Value.c.Write(data)
		if err := check(err); err != nil {
			return nil, err
		}
		return WriteResult{N: n}, nil
	}, nil
}

func shutdown(st *opstate.State, in hostops.RID) (ops.Empty, error) {
	conn, err := resource.GetAs[*Conn](st.Resources(), in.RID)
	if err != nil {
		return ops.Empty{}, err
	}
	tcp, ok := conn.c.(*net.TCPConn)
	if !ok {
		return ops.Empty{}, errors.NotSupported(errors.PhaseHost, "shutdown")
	}
	return ops.Empty{}, hostops.OSError("shutdown", tcp.CloseWrite())
}
