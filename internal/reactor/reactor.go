// Copyright 2020 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reactor is a minimal edge-triggered epoll loop for driving
// gows.Connection over real sockets; nothing in this module imports it.
// The core gows package never imports it — it only declares the Stream
// interface a Connection expects, so any reactor (this one, or a
// production service's own) can drive it. The package-level protocol
// scenarios themselves are exercised in gows's own test suite against
// an in-memory Stream, not against this epoll loop.
package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Handler is what a registered file descriptor notifies on readiness.
// Read and Write return the new edge-triggered interest set; Run
// re-arms epoll with whatever they return.
type Handler interface {
	Read() (readable, writable bool)
	Write() (readable, writable bool)
}

// Reactor is a single-threaded epoll(7) event loop. It is not safe for
// concurrent use by more than one goroutine — matching the
// single-owner discipline gows.Connection itself assumes.
type Reactor struct {
	epfd int

	mu       sync.Mutex
	handlers map[int]Handler

	closed bool
}

// New creates an epoll instance.
func New() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Reactor{epfd: fd, handlers: make(map[int]Handler)}, nil
}

// Register arms fd for edge-triggered read and/or write readiness and
// associates h with it.
func (r *Reactor) Register(fd int, h Handler, readable, writable bool) error {
	r.mu.Lock()
	r.handlers[fd] = h
	r.mu.Unlock()
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: edgeTriggeredMask(readable, writable),
		Fd:     int32(fd),
	})
}

// Rearm updates fd's interest set without changing its Handler.
func (r *Reactor) Rearm(fd int, readable, writable bool) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: edgeTriggeredMask(readable, writable),
		Fd:     int32(fd),
	})
}

// Deregister removes fd from the epoll set.
func (r *Reactor) Deregister(fd int) error {
	r.mu.Lock()
	delete(r.handlers, fd)
	r.mu.Unlock()
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func edgeTriggeredMask(readable, writable bool) uint32 {
	mask := uint32(unix.EPOLLET | unix.EPOLLRDHUP)
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Run blocks, dispatching readiness until Close is called or epoll_wait
// returns a fatal error.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, 128)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			r.mu.Lock()
			h, ok := r.handlers[fd]
			r.mu.Unlock()
			if !ok {
				continue
			}
			readable := ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0
			writable := ev.Events&unix.EPOLLOUT != 0
			var wantR, wantW bool
			if readable {
				wantR, wantW = h.Read()
			}
			if writable {
				wantR, wantW = h.Write()
			}
			if wantR || wantW {
				_ = r.Rearm(fd, wantR, wantW)
			} else {
				_ = r.Deregister(fd)
			}
		}
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return nil
		}
	}
}

// Close stops a running Run loop and releases the epoll descriptor.
func (r *Reactor) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return unix.Close(r.epfd)
}
