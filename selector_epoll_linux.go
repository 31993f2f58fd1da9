// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// EpollSelector implements Selector using epoll(7), level-triggered.
//
// Interest is kept registered between calls; each Select applies the
// difference between the handles it was given and those registered by the
// previous call. Regular files are not supported by epoll. Detach a handle
// before closing its descriptor: a descriptor closed and reopened between
// two calls with unchanged interest is not re-registered. At most 256
// descriptors are reported per call; since interest is level-triggered, any
// others still ready are reported by a later call.
type EpollSelector struct {
	interest map[int]uint32
	want     map[int]int
	entries  []epollEntry
	eventBuf [256]unix.EpollEvent
	epfd     int
	closed   bool
}

type epollEntry struct {
	pollEntry
	fd     int
	events uint32
}

// NewEpollSelector creates the epoll instance.
func NewEpollSelector() (*EpollSelector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll create: %w", err)
	}
	return &EpollSelector{
		interest: make(map[int]uint32),
		want:     make(map[int]int),
		epfd:     epfd,
	}, nil
}

// Select implements Selector.
func (p *EpollSelector) Select(read, write, except []Handle, timeout time.Duration, ready *ReadySet) error {
	if p.closed {
		return ErrClosed
	}

	ready.Reset()
	clear(p.want)
	clear(p.entries)
	p.entries = p.entries[:0]

	if err := p.add(ModeRead, read, unix.EPOLLIN); err != nil {
		return err
	}
	if err := p.add(ModeWrite, write, unix.EPOLLOUT); err != nil {
		return err
	}
	if err := p.add(ModeError, except, unix.EPOLLPRI); err != nil {
		return err
	}
	if err := p.sync(); err != nil {
		return err
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("reactor: epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		j, ok := p.want[int(p.eventBuf[i].Fd)]
		if !ok {
			continue
		}
		e := &p.entries[j]
		events := p.eventBuf[i].Events
		if e.set[0] && events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0 {
			ready.Read = append(ready.Read, e.handles[0])
		}
		if e.set[1] && events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
			ready.Write = append(ready.Write, e.handles[1])
		}
		if e.set[2] && events&(unix.EPOLLPRI|unix.EPOLLERR) != 0 {
			ready.Error = append(ready.Error, e.handles[2])
		}
	}

	return nil
}

func (p *EpollSelector) add(mode Mode, handles []Handle, events uint32) error {
	slot := int(mode - ModeRead)
	for _, h := range handles {
		fd, err := handleFD(h)
		if err != nil {
			return fmt.Errorf("reactor: epoll %s handle %v: %w", mode, h, err)
		}
		i, ok := p.want[fd]
		if !ok {
			i = len(p.entries)
			p.want[fd] = i
			p.entries = append(p.entries, epollEntry{fd: fd})
		}
		p.entries[i].events |= events
		p.entries[i].handles[slot] = h
		p.entries[i].set[slot] = true
	}
	return nil
}

// sync applies the wanted interest set to the epoll instance.
func (p *EpollSelector) sync() error {
	for fd, current := range p.interest {
		if _, ok := p.want[fd]; ok {
			continue
		}
		delete(p.interest, fd)
		// the descriptor may already be closed, which removed it from the set
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil &&
			!errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("reactor: epoll ctl del fd %d (events %#x): %w", fd, current, err)
		}
	}

	for i := range p.entries {
		e := &p.entries[i]
		ev := unix.EpollEvent{Events: e.events, Fd: int32(e.fd)}
		current, ok := p.interest[e.fd]
		switch {
		case !ok:
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, e.fd, &ev); err != nil {
				return fmt.Errorf("reactor: epoll ctl add fd %d: %w", e.fd, err)
			}
		case current != e.events:
			err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, e.fd, &ev)
			if errors.Is(err, unix.ENOENT) {
				// closed and reopened since the last call
				err = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, e.fd, &ev)
			}
			if err != nil {
				return fmt.Errorf("reactor: epoll ctl mod fd %d: %w", e.fd, err)
			}
		default:
			continue
		}
		p.interest[e.fd] = e.events
	}

	return nil
}

// ValidateHandle implements HandleValidator.
func (p *EpollSelector) ValidateHandle(h Handle) error { return validateFD(h) }

// Close implements Selector, closing the epoll instance.
func (p *EpollSelector) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	clear(p.interest)
	return unix.Close(p.epfd)
}
