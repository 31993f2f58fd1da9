// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// POLLNVAL is reported regardless of the requested events, once the
	// descriptor is closed under a registered handle
	pollReadReady  = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	pollWriteReady = unix.POLLOUT | unix.POLLERR | unix.POLLNVAL
	pollErrorReady = unix.POLLPRI | unix.POLLERR | unix.POLLNVAL
)

// pollEntry maps one descriptor back to the handle registered per mode.
type pollEntry struct {
	handles [3]Handle
	set     [3]bool
}

// PollSelector implements Selector using poll(2). It is stateless between
// calls: the descriptor set is rebuilt from the given handles every time,
// reusing its buffers.
//
// If two handles share a descriptor within the same mode, the last one wins.
type PollSelector struct {
	index   map[int]int
	fds     []unix.PollFd
	entries []pollEntry
	closed  bool
}

// NewPollSelector returns a ready to use poll(2) selector.
func NewPollSelector() *PollSelector {
	return &PollSelector{index: make(map[int]int)}
}

func newDefaultSelector() (Selector, error) {
	return NewPollSelector(), nil
}

// Select implements Selector.
func (p *PollSelector) Select(read, write, except []Handle, timeout time.Duration, ready *ReadySet) error {
	if p.closed {
		return ErrClosed
	}

	ready.Reset()
	clear(p.index)
	clear(p.entries)
	p.entries = p.entries[:0]
	p.fds = p.fds[:0]

	if err := p.add(ModeRead, read, unix.POLLIN); err != nil {
		return err
	}
	if err := p.add(ModeWrite, write, unix.POLLOUT); err != nil {
		return err
	}
	if err := p.add(ModeError, except, unix.POLLPRI); err != nil {
		return err
	}

	n, err := unix.Poll(p.fds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("reactor: poll: %w", err)
	}
	if n <= 0 {
		return nil
	}

	for i := range p.fds {
		revents := p.fds[i].Revents
		if revents == 0 {
			continue
		}
		e := &p.entries[i]
		if e.set[0] && revents&pollReadReady != 0 {
			ready.Read = append(ready.Read, e.handles[0])
		}
		if e.set[1] && revents&pollWriteReady != 0 {
			ready.Write = append(ready.Write, e.handles[1])
		}
		if e.set[2] && revents&pollErrorReady != 0 {
			ready.Error = append(ready.Error, e.handles[2])
		}
	}

	return nil
}

func (p *PollSelector) add(mode Mode, handles []Handle, events int16) error {
	slot := int(mode - ModeRead)
	for _, h := range handles {
		fd, err := handleFD(h)
		if err != nil {
			return fmt.Errorf("reactor: poll %s handle %v: %w", mode, h, err)
		}
		i, ok := p.index[fd]
		if !ok {
			i = len(p.fds)
			p.index[fd] = i
			p.fds = append(p.fds, unix.PollFd{Fd: int32(fd)})
			p.entries = append(p.entries, pollEntry{})
		}
		p.fds[i].Events |= events
		p.entries[i].handles[slot] = h
		p.entries[i].set[slot] = true
	}
	return nil
}

// ValidateHandle implements HandleValidator.
func (p *PollSelector) ValidateHandle(h Handle) error { return validateFD(h) }

// Close implements Selector. Handles are owned by the application, and are
// left open.
func (p *PollSelector) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	return nil
}
