package machine

import (
	"errors"
	"time"
)

// ErrChannelClosed is returned by Poll on a channel that has been closed.
var ErrChannelClosed = errors.New("machine: channel closed")

// MessageKind classifies an operator message read from the error channel.
type MessageKind string

const (
	// KindError is an operator error (program aborts, limit trips).
	KindError MessageKind = "error"
	// KindText is informational operator text.
	KindText MessageKind = "text"
	// KindDisplay asks the operator interface to display a file or screen.
	KindDisplay MessageKind = "display"
)

// Message is one operator message drained from the error channel.
type Message struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
	Time time.Time   `json:"time"`
}

// StatChannel is the full-snapshot shaped backend source. Poll reports
// whether the status record changed since the previous poll; Status returns
// the most recently observed record. Both are synchronous and expected to be
// fast by contract.
type StatChannel interface {
	// Poll refreshes the channel's internal status copy and reports whether
	// anything changed since the previous poll.
	Poll() (bool, error)

	// Status returns the status record captured by the last successful Poll.
	// Returns nil before the first poll.
	Status() *Status

	// Close releases the backend connection. Safe to call more than once.
	Close() error
}

// ErrorChannel is the message-queue shaped backend source. Each Poll drains
// at most one pending operator message; nil means the queue was empty.
type ErrorChannel interface {
	Poll() (*Message, error)
	Close() error
}
