// File: ancillary/ancillary_linux.go
//go:build linux

package ancillary

import (
	"golang.org/x/sys/unix"

	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/handle"
)

func sendInternal(conn api.Conn, payloads [][]byte, handles []*handle.Handle) (int, error) {
	if len(handles) > MaxHandlesPerMessage {
		return 0, api.NewOpError("send-handles", "", api.ErrAncillaryOverflow, nil)
	}
	fds := make([]int, 0, len(handles))
	for _, h := range handles {
		raw, ok := h.Raw()
		if !ok {
			return 0, api.NewOpError("send-handles", "", api.ErrClosed, nil)
		}
		fds = append(fds, int(raw))
	}
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	fd := int(conn.Fd())
	for {
		n, err := unix.SendmsgBuffers(fd, payloads, oob, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, wrapAncillaryErrno("send-handles", err, api.ErrBrokenPipe)
		}
		return n, nil
	}
}

func recvInternal(conn api.Conn, maxPayload, maxHandles int) (*Message, error) {
	buf := make([]byte, maxPayload)
	oob := make([]byte, unix.CmsgSpace(maxHandles*4))

	fd := int(conn.Fd())
	var n, oobn, flags int
	var err error
	for {
		// MSG_CMSG_CLOEXEC keeps received descriptors from leaking across
		// exec before the Handle wrappers exist.
		n, oobn, flags, _, err = unix.Recvmsg(fd, buf, oob, unix.MSG_CMSG_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return nil, wrapAncillaryErrno("recv-handles", err, api.ErrConnectionReset)
	}

	received, perr := parseRights(oob[:oobn])
	if perr != nil {
		closeAll(received)
		return nil, perr
	}

	// MSG_CTRUNC means the kernel clipped the control data: the sender's
	// handle set did not fit. Handing out a partial set would silently leak
	// the clipped remainder on the sender's side of the transfer, so the
	// whole receipt fails and every descriptor that did arrive is closed.
	if flags&unix.MSG_CTRUNC != 0 || len(received) > maxHandles {
		closeAll(received)
		return nil, api.NewOpError("recv-handles", "", api.ErrAncillaryOverflow, nil)
	}

	return &Message{Payload: buf[:n], Handles: received}, nil
}

func parseRights(oob []byte) ([]*handle.Handle, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, api.NewOpError("recv-handles", "", api.ErrAncillaryOverflow, err)
	}
	var out []*handle.Handle
	for _, m := range msgs {
		fds, err := unix.ParseUnixRights(&m)
		if err != nil {
			// Not SCM_RIGHTS; nothing of ours to own.
			continue
		}
		for _, fd := range fds {
			out = append(out, handle.New(uintptr(fd)))
		}
	}
	return out, nil
}

func closeAll(hs []*handle.Handle) {
	for _, h := range hs {
		_ = h.Close()
	}
}

func wrapAncillaryErrno(op string, errno error, fallback error) error {
	kind := fallback
	switch errno {
	case unix.EPIPE:
		kind = api.ErrBrokenPipe
	case unix.ECONNRESET:
		kind = api.ErrConnectionReset
	case unix.EBADF:
		kind = api.ErrClosed
	case unix.EMSGSIZE:
		kind = api.ErrAncillaryOverflow
	case unix.EOPNOTSUPP, unix.EINVAL:
		kind = api.ErrUnsupported
	}
	return api.NewOpError(op, "", kind, errno)
}
