// File: localsocket/localsocket_linux_test.go
//go:build linux

package localsocket

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phayes/permbits"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
)

func pathAddr(t *testing.T) address.Addr {
	t.Helper()
	addr, err := address.Resolve(filepath.Join(t.TempDir(), "l.sock"), address.KindAuto)
	require.NoError(t, err)
	return addr
}

func abstractAddr(t *testing.T) address.Addr {
	t.Helper()
	raw := fmt.Sprintf("@localsock-test-%d-%s", os.Getpid(), t.Name())
	addr, err := address.Resolve(raw, address.KindAuto)
	require.NoError(t, err)
	return addr
}

// acceptOne accepts a single connection in the background.
func acceptOne(t *testing.T, l api.Listener) <-chan api.Conn {
	t.Helper()
	ch := make(chan api.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			t.Error(err)
			close(ch)
			return
		}
		ch <- conn
	}()
	return ch
}

func TestListenDialRoundTrip(t *testing.T) {
	for _, mk := range []struct {
		name string
		addr func(*testing.T) address.Addr
	}{
		{"path", pathAddr},
		{"abstract", abstractAddr},
	} {
		t.Run(mk.name, func(t *testing.T) {
			addr := mk.addr(t)
			l, err := Listen(addr, nil)
			require.NoError(t, err)
			defer l.Close()
			require.Equal(t, addr.String(), l.Addr())

			server := acceptOne(t, l)
			client, err := Dial(addr, nil)
			require.NoError(t, err)
			defer client.Close()

			peer := <-server
			require.NotNil(t, peer)
			defer peer.Close()

			for _, payload := range [][]byte{
				{},
				{0x42},
				bytes.Repeat([]byte("localsock"), 7281), // 64 KiB+
			} {
				require.NoError(t, WriteAll(client, payload))
				got := make([]byte, len(payload))
				_, err := io.ReadFull(peer, got)
				require.NoError(t, err)
				require.Equal(t, payload, got)
			}
		})
	}
}

func TestSequentialConnects(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c api.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	msg := []byte("ping")
	for i := 0; i < 1000; i++ {
		conn, err := Dial(addr, nil)
		require.NoError(t, err)

		require.NoError(t, WriteAll(conn, msg))
		require.NoError(t, conn.CloseWrite())

		echoed, err := io.ReadAll(io.Reader(conn))
		require.NoError(t, err)
		require.Equal(t, msg, echoed)
		require.NoError(t, conn.Close())
	}

	l.Close()
	<-done
}

func TestHalfCloseDeliversBufferedDataThenEOF(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	client, err := Dial(addr, nil)
	require.NoError(t, err)
	defer client.Close()
	peer := <-server
	defer peer.Close()

	payload := bytes.Repeat([]byte("x"), 4096)
	require.NoError(t, WriteAll(client, payload))
	require.NoError(t, client.CloseWrite())

	// The peer drains everything sent before the shutdown, then sees EOF.
	got, err := io.ReadAll(io.Reader(peer))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// The reverse direction stays open.
	require.NoError(t, WriteAll(peer, []byte("reply")))
	buf := make([]byte, 5)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, "reply", string(buf))
}

func TestDialNoServerFailsPromptly(t *testing.T) {
	addr := pathAddr(t)

	_, err := Dial(addr, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrNotFound), "%v", err)
}

func TestDialStaleSocketRefused(t *testing.T) {
	addr := pathAddr(t)
	makeStaleSocket(t, addr.Name())

	_, err := Dial(addr, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrConnectionRefused), "%v", err)
}

// makeStaleSocket leaves a bound-but-unserved socket path behind, the state
// a crashed server produces.
func makeStaleSocket(t *testing.T, path string) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Bind(fd, &unix.SockaddrUnix{Name: path}))
	require.NoError(t, unix.Close(fd))
}

func TestListenAddressInUse(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	_, err = Listen(addr, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrAddressInUse), "%v", err)
}

func TestListenReclaimsStaleSocket(t *testing.T) {
	addr := pathAddr(t)
	makeStaleSocket(t, addr.Name())

	// Default policy surfaces the conflict.
	_, err := Listen(addr, nil)
	require.True(t, errors.Is(err, api.ErrAddressInUse), "%v", err)

	// Opt-in reclaim probes the path, finds nobody serving it, and rebinds.
	l, err := Listen(addr, &ListenOptions{ReclaimStale: true})
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	conn, err := Dial(addr, nil)
	require.NoError(t, err)
	conn.Close()
	(<-server).Close()
}

func TestListenReclaimRefusesLiveSocket(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	_, err = Listen(addr, &ListenOptions{ReclaimStale: true})
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrAddressInUse), "%v", err)
}

func TestListenAppliesPermissions(t *testing.T) {
	addr := pathAddr(t)
	var perms permbits.PermissionBits
	perms.SetUserRead(true)
	perms.SetUserWrite(true)

	l, err := Listen(addr, &ListenOptions{Permissions: perms})
	require.NoError(t, err)
	defer l.Close()

	got, err := permbits.Stat(addr.Name())
	require.NoError(t, err)
	require.Equal(t, perms, got)
}

func TestCloseUnlinksOwnedPath(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)

	_, err = os.Stat(addr.Name())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	_, err = os.Stat(addr.Name())
	require.True(t, os.IsNotExist(err))
}

func TestAbstractNameLeavesNoFilesystemEntry(t *testing.T) {
	addr := abstractAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(addr.Name())
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat("@" + addr.Name())
	require.True(t, os.IsNotExist(err))
}

func TestAcceptAfterCloseFailsClosed(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Accept()
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrClosed), "%v", err)
}

func TestPeerCred(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	client, err := Dial(addr, nil)
	require.NoError(t, err)
	defer client.Close()
	peer := <-server
	defer peer.Close()

	cred, err := peer.PeerCred()
	require.NoError(t, err)
	require.Equal(t, os.Getuid(), cred.UID)
	require.Equal(t, os.Getgid(), cred.GID)
	require.Equal(t, os.Getpid(), cred.PID)
}

func TestSupport(t *testing.T) {
	f := Support()
	require.Equal(t, "unix", f.OS)
	require.True(t, f.Ancillary)
	require.True(t, f.PeerCred)
	require.True(t, f.AbstractNames)
	require.True(t, f.HalfClose)
}

func TestSplitHalves(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	client, err := Dial(addr, nil)
	require.NoError(t, err)
	defer client.Close()
	peer := <-server
	defer peer.Close()

	rd, wr := Split(client)

	// Independent goroutines per direction.
	echoErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(peer, peer)
		echoErr <- err
	}()

	payload := bytes.Repeat([]byte("half"), 1024)
	require.NoError(t, WriteAll(wr, payload))
	require.NoError(t, wr.Close())

	got, err := io.ReadAll(rd)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, <-echoErr)
}

func TestReadAfterCloseReadFailsClosed(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	client, err := Dial(addr, nil)
	require.NoError(t, err)
	defer client.Close()
	peer := <-server
	defer peer.Close()

	require.NoError(t, client.CloseRead())
	_, err = client.Read(make([]byte, 1))
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrClosed), "%v", err)
}

func TestWriteToGonePeerBrokenPipe(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	client, err := Dial(addr, nil)
	require.NoError(t, err)
	defer client.Close()
	peer := <-server
	require.NoError(t, peer.Close())

	// The first write may land in the kernel buffer; keep writing until the
	// reset surfaces.
	var werr error
	for i := 0; i < 50 && werr == nil; i++ {
		_, werr = client.Write([]byte("doomed"))
		time.Sleep(time.Millisecond)
	}
	require.Error(t, werr)
	require.True(t,
		errors.Is(werr, api.ErrBrokenPipe) || errors.Is(werr, api.ErrConnectionReset),
		"%v", werr)
}

func TestConnCloseIdempotent(t *testing.T) {
	addr := pathAddr(t)
	l, err := Listen(addr, nil)
	require.NoError(t, err)
	defer l.Close()

	server := acceptOne(t, l)
	client, err := Dial(addr, nil)
	require.NoError(t, err)
	<-server

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestAdopt(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	a, err := Adopt(uintptr(fds[0]))
	require.NoError(t, err)
	defer a.Close()
	b, err := Adopt(uintptr(fds[1]))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, WriteAll(a, []byte("adopted")))
	buf := make([]byte, 7)
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, "adopted", string(buf))
}

func TestDialZeroAddr(t *testing.T) {
	_, err := Dial(address.Addr{}, nil)
	require.True(t, errors.Is(err, api.ErrInvalidName))

	_, err = Listen(address.Addr{}, nil)
	require.True(t, errors.Is(err, api.ErrInvalidName))
}

func BenchmarkRoundTrip4KiB(b *testing.B) {
	dir := b.TempDir()
	addr, err := address.Resolve(filepath.Join(dir, "bench.sock"), address.KindAuto)
	if err != nil {
		b.Fatal(err)
	}
	l, err := Listen(addr, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Writer(conn), io.Reader(conn))
	}()

	client, err := Dial(addr, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()

	payload := bytes.Repeat([]byte("b"), 4096)
	buf := make([]byte, len(payload))
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := WriteAll(client, payload); err != nil {
			b.Fatal(err)
		}
		if _, err := io.ReadFull(client, buf); err != nil {
			b.Fatal(err)
		}
	}
}
