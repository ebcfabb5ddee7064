//go:build linux

// File: internal/reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) reactor. Level-triggered: an fd keeps being reported on
// every Wait for as long as a registered readiness condition holds,
// matching the socket-readiness model spec.md §4.1 assumes (no manual
// re-arming between poll ticks).

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type epollReactor struct {
	epfd int
}

// New creates a Linux epoll-backed Reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

func toEpollEvents(m Mask) uint32 {
	var ev uint32
	if m&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if m&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) Add(fd int, mask Mask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Modify(fd int, mask Mask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Remove(fd int) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("reactor: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Wait(timeout time.Duration) ([]Ready, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	var raw [256]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, raw[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	out := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		var m Mask
		if raw[i].Events&unix.EPOLLIN != 0 {
			m |= Readable
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			m |= Writable
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			m |= ErrorFlag
		}
		out = append(out, Ready{Fd: int(raw[i].Fd), Mask: m})
	}
	return out, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
