// Package event defines the messages every component sends to the single
// output sink, and the handle components use to send them.
package event

import (
	"fmt"
	"time"

	"github.com/prsync/prsync/internal/queue"
)

// Type identifies the kind of message.
type Type int

const (
	// Progress replaces the current status line.
	Progress Type = iota + 1
	// Info is a line for standard output.
	Info
	// Error is a line for standard error.
	Error
	// Stop tells the sink that no more messages follow.
	Stop
)

var typeNames = [...]string{
	Progress: "Progress",
	Info:     "Info",
	Error:    "Error",
	Stop:     "Stop",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is one message for the sink.
type Event struct {
	Type      Type
	Timestamp time.Time
	Text      string
}

// Queue is the shared message queue drained by the sink.
type Queue = queue.Queue[Event]

// NewQueue returns an empty message queue.
func NewQueue() *Queue {
	return queue.New[Event]()
}

// Emitter is the handle components use to send messages. A nil *Emitter
// discards everything, which keeps components usable without a sink.
type Emitter struct {
	q *Queue
}

// NewEmitter returns an Emitter that appends to q.
func NewEmitter(q *Queue) *Emitter {
	return &Emitter{q: q}
}

func (e *Emitter) emit(t Type, text string) {
	if e == nil || e.q == nil {
		return
	}
	e.q.Put(Event{Type: t, Timestamp: time.Now(), Text: text})
}

// Progress sends a status line that overwrites the previous one.
func (e *Emitter) Progress(text string) { e.emit(Progress, text) }

// Info sends a line to standard output.
func (e *Emitter) Info(text string) { e.emit(Info, text) }

// Infof formats and sends a line to standard output.
func (e *Emitter) Infof(format string, args ...any) { e.emit(Info, fmt.Sprintf(format, args...)) }

// Errorf formats and sends a line to standard error.
func (e *Emitter) Errorf(format string, args ...any) { e.emit(Error, fmt.Sprintf(format, args...)) }

// Close sends the Stop marker. Messages sent after Close are never printed.
func (e *Emitter) Close() { e.emit(Stop, "") }
