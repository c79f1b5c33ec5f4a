package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prsync/prsync/internal/event"
)

// clearLine returns the cursor to column 0 and erases the line.
const clearLine = "\r\x1b[K"

// SinkConfig configures a Sink.
type SinkConfig struct {
	Out    io.Writer
	Err    io.Writer
	Logger *slog.Logger // optional; receives every message as a structured record
	Width  int          // terminal width; progress lines are cut to fit when > 0
	Inline bool         // rewrite progress in place (a terminal); otherwise one line each
}

// Sink is the single consumer of the message queue. Every component writes
// through it, so output from concurrent workers never interleaves.
type Sink struct {
	cfg  SinkConfig
	last event.Type
}

// NewSink creates a Sink.
func NewSink(cfg SinkConfig) *Sink {
	return &Sink{cfg: cfg}
}

// Run prints messages from q until it receives event.Stop.
func (s *Sink) Run(q *event.Queue) error {
	for {
		ev, err := q.Get(context.Background())
		if err != nil {
			return err
		}
		if ev.Type == event.Stop {
			s.finish()
			return nil
		}
		s.handleEvent(ev)
	}
}

func (s *Sink) handleEvent(ev event.Event) {
	s.log(ev)

	// A log line must never land on top of the status line.
	newline := ""
	if s.last == event.Progress && s.cfg.Inline {
		newline = "\n"
	}

	switch ev.Type {
	case event.Progress:
		if s.cfg.Inline {
			fmt.Fprint(s.cfg.Out, clearLine+s.fit(ev.Text))
		} else {
			fmt.Fprintln(s.cfg.Out, ev.Text)
		}
	case event.Info:
		fmt.Fprint(s.cfg.Out, newline+ev.Text+"\n")
	case event.Error:
		fmt.Fprint(s.cfg.Err, newline+ev.Text+"\n")
	default:
		fmt.Fprintf(s.cfg.Err, "%sunknown message type %s: %s\n", newline, ev.Type, ev.Text)
	}
	s.last = ev.Type
}

func (s *Sink) finish() {
	if s.last == event.Progress && s.cfg.Inline {
		fmt.Fprintln(s.cfg.Out)
	}
}

func (s *Sink) fit(text string) string {
	if s.cfg.Width <= 1 {
		return text
	}
	r := []rune(text)
	if len(r) < s.cfg.Width {
		return text
	}
	return string(r[:s.cfg.Width-1])
}

func (s *Sink) log(ev event.Event) {
	if s.cfg.Logger == nil {
		return
	}
	level := slog.LevelInfo
	switch ev.Type {
	case event.Progress:
		level = slog.LevelDebug
	case event.Error:
		level = slog.LevelError
	}
	s.cfg.Logger.LogAttrs(context.Background(), level, "prsync.message",
		slog.String("type", ev.Type.String()),
		slog.String("text", ev.Text),
		slog.Time("at", ev.Timestamp),
	)
}
