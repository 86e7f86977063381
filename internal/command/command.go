// SPDX-License-Identifier: MIT

// Package command implements the unbounded, non-blocking multi-producer
// single-consumer queue that carries user commands (such as "refetch
// now") from the HTTP surface to the manifest poller.
package command

import "sync"

// Command is a message accepted on the channel. FetchManifest is the only
// variant currently defined.
type Command int

const (
	FetchManifest Command = iota
)

// Channel is an unbounded queue: Post never blocks, regardless of how far
// behind the consumer is. A small buffered channel absorbs the common
// case without an allocation; a mutex-guarded overflow slice absorbs any
// burst beyond that, preserving FIFO order across both.
type Channel struct {
	mu       sync.Mutex
	buffered chan Command
	overflow []Command
}

const bufferedCapacity = 16

// New constructs an empty command channel.
func New() *Channel {
	return &Channel{buffered: make(chan Command, bufferedCapacity)}
}

// Post enqueues cmd without blocking the caller. Posts are serialized under
// mu so that, once the overflow slice holds anything, later commands keep
// appending to it rather than slipping into a freshly-drained buffered
// channel ahead of commands still waiting in overflow.
func (c *Channel) Post(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.overflow) == 0 {
		select {
		case c.buffered <- cmd:
			return
		default:
		}
	}
	c.overflow = append(c.overflow, cmd)
}

// Receive returns the next command, in FIFO order: the buffered channel
// always holds the oldest commands, since Post only starts filling overflow
// once buffered is full and keeps using it thereafter. Receive returns
// (Command, true) if one is available without blocking the caller beyond a
// single channel receive, or (zero, false) if none is queued.
func (c *Channel) Receive() (Command, bool) {
	select {
	case cmd := <-c.buffered:
		return cmd, true
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.overflow) > 0 {
		cmd := c.overflow[0]
		c.overflow = c.overflow[1:]
		return cmd, true
	}
	return Command(0), false
}

// Chan exposes the buffered channel for use in a select alongside a timer,
// per §4.F's poller loop. Callers that select on this channel MUST also
// call Receive (or check Chan's result) after waking, because a command
// may have landed in the overflow slice instead.
func (c *Channel) Chan() <-chan Command {
	return c.buffered
}
