// File: bridge/bridge_linux_test.go
//go:build linux

package bridge

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/localsocket"
)

func testAddr(t *testing.T) address.Addr {
	t.Helper()
	addr, err := address.Resolve(filepath.Join(t.TempDir(), "b.sock"), address.KindAuto)
	require.NoError(t, err)
	return addr
}

// asyncPair wires a listener and dialer through one bridge and returns both
// wrapped ends.
func asyncPair(t *testing.T, b *Bridge) (*AsyncConn, *AsyncConn) {
	t.Helper()
	addr := testAddr(t)

	l, err := localsocket.Listen(addr, nil)
	require.NoError(t, err)
	al, err := b.WrapListener(l)
	require.NoError(t, err)
	t.Cleanup(func() { al.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type res struct {
		conn api.Conn
		err  error
	}
	ch := make(chan res, 1)
	go func() {
		c, err := al.AcceptContext(ctx)
		ch <- res{c, err}
	}()

	client, err := b.DialContext(ctx, addr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	r := <-ch
	require.NoError(t, r.err)
	server, err := b.WrapConn(r.conn)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	return client, server
}

func TestAsyncRoundTrip(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	client, server := asyncPair(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := bytes.Repeat([]byte("async"), 4096)
	go func() {
		rest := payload
		for len(rest) > 0 {
			n, err := client.WriteContext(ctx, rest)
			if err != nil {
				return
			}
			rest = rest[n:]
		}
		client.CloseWrite()
	}()

	var got []byte
	buf := make([]byte, 8192)
	for {
		n, err := server.ReadContext(ctx, buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, payload, got)
}

func TestReadContextHonorsCancellation(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	client, _ := asyncPair(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.ReadContext(ctx, make([]byte, 16))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSecondReadFailsConcurrent(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	client, _ := asyncPair(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	released := make(chan struct{})
	go func() {
		close(started)
		client.ReadContext(ctx, make([]byte, 16))
		close(released)
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first read park

	_, err = client.ReadContext(ctx, make([]byte, 16))
	require.True(t, errors.Is(err, api.ErrConcurrentOperation), "%v", err)

	cancel()
	<-released

	// Distinct directions never contend: a write is admitted while a read
	// would have been pending.
	wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
	defer wcancel()
	_, err = client.WriteContext(wctx, []byte("ok"))
	require.NoError(t, err)
}

func TestCloseUnblocksPendingRead(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	client, _ := asyncPair(t, b)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.ReadContext(context.Background(), make([]byte, 16))
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, api.ErrClosed), "%v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending read survived Close")
	}
}

func TestAcceptContextHonorsCancellation(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	l, err := localsocket.Listen(testAddr(t), nil)
	require.NoError(t, err)
	al, err := b.WrapListener(l)
	require.NoError(t, err)
	defer al.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = al.AcceptContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialContextNoServer(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = b.DialContext(ctx, testAddr(t), nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrNotFound), "%v", err)
}

func TestDetachReturnsSynchronousConn(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	client, server := asyncPair(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Detach()
	require.NoError(t, err)
	defer conn.Close()

	// Back on the blocking path.
	require.NoError(t, localsocket.WriteAll(conn, []byte("sync")))
	buf := make([]byte, 4)
	n, err := server.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "sync", string(buf[:n]))

	// The wrapper is spent.
	_, err = client.ReadContext(ctx, buf)
	require.True(t, errors.Is(err, api.ErrClosed), "%v", err)
}

func TestBridgeCloseFailsPendingOps(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	client, _ := asyncPair(t, b)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.ReadContext(context.Background(), make([]byte, 16))
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Close())
	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, api.ErrClosed), "%v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending read survived bridge Close")
	}
}

func openFdCount(t *testing.T) int {
	t.Helper()
	ents, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(ents)
}

// Cancelling a pending read, closing the connection, and repeating against
// one listener must not leak handles, and the listener must still accept
// fresh connections afterwards.
func TestCancelCloseCyclesLeakFree(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	addr := testAddr(t)
	l, err := localsocket.Listen(addr, nil)
	require.NoError(t, err)
	al, err := b.WrapListener(l)
	require.NoError(t, err)
	defer al.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	baseline := openFdCount(t)
	for i := 0; i < 50; i++ {
		client, err := b.DialContext(ctx, addr, nil)
		require.NoError(t, err)
		conn, err := al.AcceptContext(ctx)
		require.NoError(t, err)
		server, err := b.WrapConn(conn)
		require.NoError(t, err)

		rctx, rcancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			_, err := client.ReadContext(rctx, make([]byte, 16))
			errCh <- err
		}()
		time.Sleep(time.Millisecond) // let the read park
		rcancel()
		require.ErrorIs(t, <-errCh, context.Canceled)

		require.NoError(t, client.Close())
		require.NoError(t, server.Close())
	}
	require.LessOrEqual(t, openFdCount(t), baseline+4)

	// The listener survived all of it.
	client, err := b.DialContext(ctx, addr, nil)
	require.NoError(t, err)
	defer client.Close()
	conn, err := al.AcceptContext(ctx)
	require.NoError(t, err)
	server, err := b.WrapConn(conn)
	require.NoError(t, err)
	defer server.Close()

	_, err = client.WriteContext(ctx, []byte("fresh"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := server.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(buf[:n]))
}

func TestBridgeLifecycles(t *testing.T) {
	for i := 0; i < 10; i++ {
		b, err := New()
		require.NoError(t, err)

		client, server := asyncPair(t, b)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		_, err = client.WriteContext(ctx, []byte("cycle"))
		require.NoError(t, err)
		buf := make([]byte, 5)
		n, err := server.ReadContext(ctx, buf)
		require.NoError(t, err)
		require.Equal(t, "cycle", string(buf[:n]))

		cancel()
		require.NoError(t, b.Close())
		require.NoError(t, b.Close()) // idempotent
	}
}
