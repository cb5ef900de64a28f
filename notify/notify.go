// Package notify delivers transient success and error messages to the user.
// Notifications are fire-and-forget.
package notify

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Kind is the flavour of a notification.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
)

// Notifier displays a message to the user.
type Notifier interface {
	Notify(message string, kind Kind)
}

// Func adapts a function to Notifier.
type Func func(message string, kind Kind)

// Notify implements Notifier.
func (f Func) Notify(message string, kind Kind) {
	f(message, kind)
}

// Discard drops every notification.
var Discard Notifier = Func(func(string, Kind) {})

// Console writes notifications as single lines, "✓ msg" or "✗ msg".
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console notifier writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Notify implements Notifier.
func (c *Console) Notify(message string, kind Kind) {
	marker := "✓"
	if kind == Error {
		marker = "✗"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s\n", marker, message)
}

// Log records notifications in a structured log.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a notifier that logs through logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(message string, kind Kind) {
	if kind == Error {
		l.logger.Warn("Notification", zap.String("kind", string(kind)), zap.String("message", message))
		return
	}
	l.logger.Info("Notification", zap.String("kind", string(kind)), zap.String("message", message))
}

// Multi fans notifications out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(message string, kind Kind) {
	for _, n := range m {
		n.Notify(message, kind)
	}
}

// Message is a recorded notification.
type Message struct {
	Text string
	Kind Kind
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify implements Notifier.
func (r *Recorder) Notify(message string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: message, Kind: kind})
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
