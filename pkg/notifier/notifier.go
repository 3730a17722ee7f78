// Package notifier models user-facing notifications as explicit events so
// the data-synchronization core stays testable without a presentation layer.
package notifier

import (
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Event is one user-visible notification.
type Event struct {
	Level   Level
	Message string
}

func Success(message string) Event {
	return Event{Level: LevelSuccess, Message: message}
}

func Error(message string) Event {
	return Event{Level: LevelError, Message: message}
}

// Notifier is the sink notifications are pushed into.
type Notifier interface {
	Notify(Event)
}

// Log writes notifications to the client log.
type Log struct {
	logger *zerolog.Logger
}

func NewLog(logger *zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(e Event) {
	switch e.Level {
	case LevelError:
		l.logger.Error().Str("notification", string(e.Level)).Msg(e.Message)
	default:
		l.logger.Info().Str("notification", string(e.Level)).Msg(e.Message)
	}
}

// Recorder collects notifications for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
