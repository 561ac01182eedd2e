// File: reactor/epoll_reactor.go
//go:build linux

//
// Linux readiness reactor. Interest is one-shot per armed direction: Arm
// requests exactly one wake, the wake consumes the interest, and the bridge
// re-arms after every would-block. An eventfd woven into the same epoll set
// carries Wakeup.

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/osipc/localsock/api"
)

type epollReactor struct {
	epfd   int
	wakeFd int

	mu    sync.Mutex
	armed map[uintptr]uint32 // fd -> pending EPOLLIN/EPOLLOUT interest
}

func newReactorInternal() (api.EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewOpError("reactor", "", api.ErrUnsupported, err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, api.NewOpError("reactor", "", api.ErrUnsupported, err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, api.NewOpError("reactor", "", api.ErrUnsupported, err)
	}
	return &epollReactor{
		epfd:   epfd,
		wakeFd: wakeFd,
		armed:  make(map[uintptr]uint32),
	}, nil
}

func (r *epollReactor) Register(fd uintptr) error {
	// Registered with empty interest; Arm switches directions on.
	ev := unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return api.NewOpError("reactor-register", "", api.ErrBrokenListener, err)
	}
	r.mu.Lock()
	r.armed[fd] = 0
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) Arm(fd uintptr, kind api.EventKind) error {
	var bits uint32
	if kind&api.EventReadable != 0 {
		bits |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if kind&api.EventWritable != 0 {
		bits |= unix.EPOLLOUT
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	mask, ok := r.armed[fd]
	if !ok {
		return api.NewOpError("reactor-arm", "", api.ErrClosed, nil)
	}
	mask |= bits
	r.armed[fd] = mask
	ev := unix.EpollEvent{Events: mask | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return api.NewOpError("reactor-arm", "", api.ErrBrokenListener, err)
	}
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	delete(r.armed, fd)
	r.mu.Unlock()
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return api.NewOpError("reactor-unregister", "", api.ErrClosed, err)
	}
	return nil
}

func (r *epollReactor) Wait(out []api.Event) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	events := make([]unix.EpollEvent, len(out))
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, api.NewOpError("reactor-wait", "", api.ErrClosed, err)
		}

		filled := 0
		for i := 0; i < n; i++ {
			ev := events[i]
			if int(ev.Fd) == r.wakeFd {
				r.drainWakeup()
				continue
			}
			fd := uintptr(ev.Fd)
			var kind api.EventKind
			if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
				kind |= api.EventReadable
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				kind |= api.EventWritable
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				kind |= api.EventError
			}
			r.consumeInterest(fd, kind)
			out[filled] = api.Event{Fd: fd, Kind: kind}
			filled++
		}
		// A wakeup-only round returns zero events; the caller rechecks its
		// own shutdown state.
		return filled, nil
	}
}

// consumeInterest clears fired directions and re-arms any still-wanted
// remainder (the one-shot delivery dropped the whole mask).
func (r *epollReactor) consumeInterest(fd uintptr, kind api.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mask, ok := r.armed[fd]
	if !ok {
		return
	}
	if kind&(api.EventReadable|api.EventError) != 0 {
		mask &^= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if kind&(api.EventWritable|api.EventError) != 0 {
		mask &^= unix.EPOLLOUT
	}
	r.armed[fd] = mask
	if mask != 0 {
		ev := unix.EpollEvent{Events: mask | unix.EPOLLONESHOT, Fd: int32(fd)}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	}
}

func (r *epollReactor) Wakeup() error {
	var one = [8]byte{0: 1}
	_, err := unix.Write(r.wakeFd, one[:])
	if err == unix.EAGAIN {
		// Counter saturated: a wake is already pending.
		return nil
	}
	return err
}

func (r *epollReactor) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (r *epollReactor) Close() error {
	unix.Close(r.wakeFd)
	return unix.Close(r.epfd)
}
