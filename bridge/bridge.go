// File: bridge/bridge.go
//
// Bridge core: the reactor loop, per-handle waiter registry, and the
// backlog of events that raced ahead of their waiter's registration.

package bridge

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/reactor"
)

// backlogLimit caps events parked for not-yet-registered handles; beyond it
// the oldest entries are dropped.
const backlogLimit = 1024

// Bridge owns one reactor and its dispatch goroutine. Many connections and
// listeners may share a single Bridge.
type Bridge struct {
	r api.EventReactor

	mu      sync.Mutex
	waiters map[uintptr]*fdWaiter
	backlog *queue.Queue
	ops     platformOps

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// fdWaiter carries wakes to the two directions of one handle. Capacity one:
// a direction has at most one pending operation to wake.
type fdWaiter struct {
	rd chan api.Event
	wr chan api.Event
}

// New creates a bridge with a freshly created platform reactor and starts
// its dispatch loop.
func New() (*Bridge, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		r:       r,
		waiters: make(map[uintptr]*fdWaiter),
		backlog: queue.New(),
		ops:     newPlatformOps(),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b, nil
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	events := make([]api.Event, 64)
	for {
		n, err := b.r.Wait(events)
		select {
		case <-b.done:
			return
		default:
		}
		if err != nil {
			logrus.WithField("err", err).Warn("localsock: reactor wait failed")
			return
		}
		for i := 0; i < n; i++ {
			b.dispatch(events[i])
		}
	}
}

func (b *Bridge) dispatch(ev api.Event) {
	// Completion-model events are owned by a specific pending operation.
	if ev.Tag != 0 {
		if !b.ops.complete(ev) {
			// Stale completion for an operation nobody waits on anymore.
			logrus.WithField("fd", ev.Fd).Debug("localsock: dropped unmatched completion")
		}
		return
	}

	b.mu.Lock()
	w := b.waiters[ev.Fd]
	if w == nil {
		// The wake raced ahead of waiter registration; park it.
		b.backlog.Add(ev)
		for b.backlog.Length() > backlogLimit {
			b.backlog.Remove()
		}
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	w.deliver(ev)
}

func (w *fdWaiter) deliver(ev api.Event) {
	if ev.Kind&(api.EventReadable|api.EventError) != 0 {
		select {
		case w.rd <- ev:
		default:
		}
	}
	if ev.Kind&(api.EventWritable|api.EventError) != 0 {
		select {
		case w.wr <- ev:
		default:
		}
	}
}

// register attaches fd to the reactor and creates its waiter, replaying any
// parked events that arrived before registration.
func (b *Bridge) register(fd uintptr) (*fdWaiter, error) {
	if err := b.r.Register(fd); err != nil {
		return nil, err
	}
	w := &fdWaiter{
		rd: make(chan api.Event, 1),
		wr: make(chan api.Event, 1),
	}

	b.mu.Lock()
	b.waiters[fd] = w
	var replay []api.Event
	for i, n := 0, b.backlog.Length(); i < n; i++ {
		ev := b.backlog.Remove().(api.Event)
		if ev.Fd == fd {
			replay = append(replay, ev)
		} else {
			b.backlog.Add(ev)
		}
	}
	b.mu.Unlock()

	for _, ev := range replay {
		w.deliver(ev)
	}
	return w, nil
}

func (b *Bridge) unregister(fd uintptr) {
	b.mu.Lock()
	delete(b.waiters, fd)
	b.mu.Unlock()
	_ = b.r.Unregister(fd)
}

// Close stops the dispatch loop and releases the reactor. Wrapped
// connections and listeners are not closed; their pending operations fail
// with api.ErrClosed.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		_ = b.r.Wakeup()
		b.wg.Wait()
		err = b.r.Close()
	})
	return err
}
