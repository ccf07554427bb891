package sockets

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/hostops"
	"github.com/wippyai/opcore/testbed"
)

func loopback(t *testing.T) *testbed.Harness {
	cfg := testbed.Config()
	cfg.Permissions.AllowNet = []string{"127.0.0.1"}
	return testbed.New(t, cfg, New())
}

func port(t *testing.T, addr string) uint16 {
	_, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return uint16(n)
}

func TestEcho(t *testing.T) {
	h := loopback(t)

	var ln ListenInfo
	h.Call("listen", AddrArgs{Host: "127.0.0.1"}, &ln)

	acceptTok := h.Start("accept", hostops.RID{RID: ln.RID})

	var client ConnInfo
	h.Async("dial", AddrArgs{Transport: "tcp", Host: "127.0.0.1", Port: port(t, ln.Addr)}, &client)
	assert.Equal(t, ln.Addr, client.RemoteAddr)

	c := h.Await(acceptTok)
	require.True(t, c.OK, string(c.Payload))
	var server ConnInfo
	h.Decode(c.Payload, &server)
	assert.Equal(t, client.LocalAddr, server.RemoteAddr)

	var wrote WriteResult
	h.Async("write", hostops.RID{RID: client.RID}, &wrote, []byte("ping"))
	assert.Equal(t, 4, wrote.N)

	var got ReadResult
	h.Async("read", ReadArgs{RID: server.RID, Len: 16}, &got)
	assert.Equal(t, "ping", string(got.Data))

	h.Call("shutdown", hostops.RID{RID: client.RID}, nil)
	h.Async("read", ReadArgs{RID: server.RID, Len: 16}, &got)
	assert.True(t, got.EOF)

	assert.Equal(t, 3, h.Iso.Resources().Len())
}

func TestCloseInterruptsAccept(t *testing.T) {
	h := loopback(t)

	var ln ListenInfo
	h.Call("listen", AddrArgs{Host: "127.0.0.1"}, &ln)

	tok := h.Start("accept", hostops.RID{RID: ln.RID})
	h.Call("close", hostops.RID{RID: ln.RID}, nil)

	c := h.Await(tok)
	assert.False(t, c.OK)
	oe := h.AsyncFail("accept", hostops.RID{RID: ln.RID})
	assert.Equal(t, errors.ClassBadResource, oe.Class)
}

func TestIsolateCloseReleasesPendingListener(t *testing.T) {
	h := loopback(t)

	var ln ListenInfo
	h.Call("listen", AddrArgs{Host: "127.0.0.1"}, &ln)
	h.Start("accept", hostops.RID{RID: ln.RID})

	require.NoError(t, h.Iso.Close())
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", ln.Addr, 100*time.Millisecond)
		if err != nil {
			return true
		}
		_ = conn.Close()
		return false
	}, 5*time.Second, 10*time.Millisecond, "listener still accepting after isolate close")
}

func TestPermissions(t *testing.T) {
	h := loopback(t)

	oe := h.AsyncFail("dial", AddrArgs{Host: "192.0.2.1", Port: 80})
	assert.Equal(t, errors.ClassPermissionDenied, oe.Class)

	oe = h.Fail("listen", AddrArgs{Host: "0.0.0.0"})
	assert.Equal(t, errors.ClassPermissionDenied, oe.Class)

	oe = h.AsyncFail("dial", AddrArgs{Transport: "udp", Host: "127.0.0.1", Port: 53})
	assert.Equal(t, errors.ClassNotSupported, oe.Class)
}
