// Package sim provides in-process stand-ins for the controller's status and
// error channels. They implement the machine channel interfaces exactly,
// so watchers built over them behave the same against a live backend.
package sim

import (
	"sync"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
)

// StatChannel is a machine.StatChannel backed by an in-memory status
// record. Update mutates the record and marks it changed; the next Poll
// reports the change once. Safe for concurrent use.
type StatChannel struct {
	mu      sync.Mutex
	status  machine.Status
	changed bool
	closed  bool
}

// NewStatChannel creates a channel with the given initial status. At least
// one joint and one spindle keep the record shaped like a real machine.
func NewStatChannel(initial machine.Status) *StatChannel {
	if len(initial.Motion.Joint) == 0 {
		initial.Motion.Joint = make([]machine.JointStatus, 3)
	}
	if len(initial.Motion.Spindle) == 0 {
		initial.Motion.Spindle = make([]machine.SpindleStatus, 1)
	}
	return &StatChannel{status: initial, changed: true}
}

// Update applies fn to the status record under the channel lock and marks
// the record changed. EchoSerialNumber advances per update.
func (c *StatChannel) Update(fn func(*machine.Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn(&c.status)
	c.status.EchoSerialNumber++
	c.changed = true
}

// Poll reports whether the record changed since the previous poll.
func (c *StatChannel) Poll() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, machine.ErrChannelClosed
	}
	changed := c.changed
	c.changed = false
	return changed, nil
}

// Status returns the current record. The pointer is stable across polls;
// callers must not retain it across Update calls.
func (c *StatChannel) Status() *machine.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	return &st
}

// Close shuts the channel; further polls fail.
func (c *StatChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ErrorChannel is a machine.ErrorChannel backed by an in-memory queue.
// Push enqueues a message; Poll pops the oldest one.
type ErrorChannel struct {
	mu     sync.Mutex
	queue  []machine.Message
	closed bool
}

// NewErrorChannel creates an empty channel.
func NewErrorChannel() *ErrorChannel {
	return &ErrorChannel{}
}

// Push enqueues a message of the given kind.
func (c *ErrorChannel) Push(kind machine.MessageKind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, machine.Message{
		Kind: kind,
		Text: text,
		Time: time.Now(),
	})
}

// Poll returns the oldest queued message, or nil when the queue is empty.
func (c *ErrorChannel) Poll() (*machine.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, machine.ErrChannelClosed
	}
	if len(c.queue) == 0 {
		return nil, nil
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return &msg, nil
}

// Close shuts the channel; further polls fail.
func (c *ErrorChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
